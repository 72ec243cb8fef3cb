// Package capability defines what a send-mode run does with its
// requester.  Each Capability encapsulates a single behaviour (relay
// stdin lines, send a fixed script) and operates on a Session rather
// than a raw socket, which keeps capabilities testable and decoupled
// from transport details.
package capability

import (
	"context"
	"fmt"
	"io"
	"time"

	"evbridge/internal/errors"
	"evbridge/internal/retry"
	"evbridge/internal/session"
)

// Capability handles a single run according to a specific behaviour.
type Capability interface {
	// Handle runs the capability against the given session.  It
	// blocks until the input is exhausted or the context is
	// cancelled.
	Handle(ctx context.Context, sess *session.Session) error
}

// Sender delivers one message with retries.  The zero value sends
// once with a two second timeout.
type Sender struct {
	Timeout time.Duration
	Backoff *retry.Backoff
}

// Send delivers msg and writes the reply to the session's stdout.
// Timeouts and refused connections are retried; anything else fails
// at once.
func (s Sender) Send(ctx context.Context, sess *session.Session, msg string) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	b := s.Backoff
	if b == nil {
		b = &retry.Backoff{MaxAttempts: 1}
	}

	var reply string
	err := b.Do(ctx, func(attempt int) error {
		if attempt > 1 {
			sess.Logger.Verbose("retrying %q (attempt %d)", msg, attempt)
		}
		rctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		r, err := sess.Requester.Request(rctx, msg)
		if err != nil {
			if errors.IsRetryable(err) {
				return err
			}
			return retry.Permanent(err)
		}
		reply = r
		return nil
	})
	if err != nil {
		return fmt.Errorf("request %q: %w", msg, err)
	}
	_, err = io.WriteString(sess.Stdout, reply+"\n")
	return err
}
