package capability

import (
	"bufio"
	"context"
	"strings"

	"evbridge/internal/session"
)

// Relay sends every non-empty stdin line as one request and prints
// each reply, the default interactive / pipe mode.  Lines starting
// with '#' are skipped.
type Relay struct {
	Sender Sender
}

// Handle reads until stdin closes or the context is cancelled.
func (r *Relay) Handle(ctx context.Context, sess *session.Session) error {
	sc := bufio.NewScanner(sess.Stdin)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := r.Sender.Send(ctx, sess, line); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Script sends a fixed list of messages in order.
type Script struct {
	Messages []string
	Sender   Sender
}

// Handle sends each message, stopping at the first failure.
func (s *Script) Handle(ctx context.Context, sess *session.Session) error {
	for _, msg := range s.Messages {
		if err := s.Sender.Send(ctx, sess, msg); err != nil {
			return err
		}
	}
	return nil
}
