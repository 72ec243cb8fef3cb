package zmqctx_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/pebbe/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evbridge/internal/errors"
	"evbridge/internal/zmqctx"
	"evbridge/internal/zmqctx/zmqtest"
)

func TestProvider_LazyCreateAndLastReleaseTerminates(t *testing.T) {
	net := zmqtest.NewNetwork()
	p := zmqctx.NewProvider(zmqctx.WithBackend(net.Factory()))

	assert.False(t, p.Live(), "no context before first acquire")

	h1, err := p.Acquire()
	require.NoError(t, err)
	h2, err := p.Acquire()
	require.NoError(t, err)

	assert.True(t, p.Live())
	assert.Equal(t, 2, p.Refs())

	require.NoError(t, h1.Release())
	assert.True(t, p.Live(), "context survives while a handle remains")
	assert.Equal(t, 0, net.Terms())

	require.NoError(t, h2.Release())
	assert.False(t, p.Live())
	assert.Equal(t, 1, net.Terms())
}

func TestProvider_ReleaseIsIdempotent(t *testing.T) {
	net := zmqtest.NewNetwork()
	p := zmqctx.NewProvider(zmqctx.WithBackend(net.Factory()))

	h1, err := p.Acquire()
	require.NoError(t, err)
	h2, err := p.Acquire()
	require.NoError(t, err)

	require.NoError(t, h1.Release())
	require.NoError(t, h1.Release())
	assert.Equal(t, 1, p.Refs(), "double release must not drop another holder's reference")

	require.NoError(t, h2.Release())
	assert.Equal(t, 1, net.Terms())
}

func TestProvider_RecreatesAfterTeardown(t *testing.T) {
	net := zmqtest.NewNetwork()
	p := zmqctx.NewProvider(zmqctx.WithBackend(net.Factory()))

	h, err := p.Acquire()
	require.NoError(t, err)
	require.NoError(t, h.Release())

	h, err = p.Acquire()
	require.NoError(t, err)
	assert.True(t, p.Live())
	require.NoError(t, h.Release())
	assert.Equal(t, 2, net.Terms())
}

func TestProvider_ConstructionFailure(t *testing.T) {
	net := zmqtest.NewNetwork()
	net.FailContext(fmt.Errorf("too many open files"))
	p := zmqctx.NewProvider(zmqctx.WithBackend(net.Factory()))

	h, err := p.Acquire()
	require.Error(t, err)
	assert.Nil(t, h)
	assert.True(t, errors.IsFatal(err), "context failure must surface as a construction error")
	assert.False(t, p.Live())
	assert.Equal(t, 0, p.Refs())
}

func TestHandle_NewSocketAfterRelease(t *testing.T) {
	net := zmqtest.NewNetwork()
	p := zmqctx.NewProvider(zmqctx.WithBackend(net.Factory()))

	h, err := p.Acquire()
	require.NoError(t, err)

	s, err := h.NewSocket(zmq4.REP)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.NoError(t, h.Release())
	_, err = h.NewSocket(zmq4.REP)
	assert.ErrorIs(t, err, errors.ErrContextReleased)
}

func TestProvider_ConcurrentAcquireRelease(t *testing.T) {
	net := zmqtest.NewNetwork()
	p := zmqctx.NewProvider(zmqctx.WithBackend(net.Factory()))

	keep, err := p.Acquire()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := p.Acquire()
			if err != nil {
				t.Error(err)
				return
			}
			_ = h.Release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, p.Refs())
	assert.Equal(t, 0, net.Terms(), "context must stay alive while one holder remains")
	require.NoError(t, keep.Release())
	assert.Equal(t, 1, net.Terms())
}
