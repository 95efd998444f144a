package research

import (
	"context"
	"time"

	"github.com/quillhq/quill/internal/logging"
)

// SessionPool hands out page sessions to research runs. The pool is bounded:
// a checkout blocks until a session is free or the caller's context expires,
// so concurrent research actions never share a session's page state.
type SessionPool struct {
	sessions chan Session
	log      *logging.Logger
}

// NewSessionPool creates a pool of size sessions produced by factory.
func NewSessionPool(size int, factory func() Session, log *logging.Logger) *SessionPool {
	if size < 1 {
		size = 1
	}
	p := &SessionPool{
		sessions: make(chan Session, size),
		log:      log.Sub("research"),
	}
	for i := 0; i < size; i++ {
		p.sessions <- factory()
	}
	return p
}

// NewHTTPSessionPool creates a pool of HTTP-backed sessions.
func NewHTTPSessionPool(size int, fetchTimeout time.Duration, log *logging.Logger) *SessionPool {
	return NewSessionPool(size, func() Session {
		return NewHTTPSession(fetchTimeout)
	}, log)
}

// Checkout borrows a session for one research run. The caller must hand it
// back with Return.
func (p *SessionPool) Checkout(ctx context.Context) (Session, error) {
	select {
	case s := <-p.sessions:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Return resets a session and puts it back in the pool.
func (p *SessionPool) Return(s Session) {
	if s == nil {
		return
	}
	s.Reset()
	select {
	case p.sessions <- s:
	default:
		// Returning a session the pool didn't issue
		p.log.Warn().Msg("discarding surplus session")
	}
}

// Size returns how many sessions are currently available.
func (p *SessionPool) Size() int {
	return len(p.sessions)
}
