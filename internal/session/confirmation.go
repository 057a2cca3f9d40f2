package session

import (
	"context"
	"sync"

	"github.com/loomhq/loom/internal/errs"
)

// ConfirmationSlot is a single-shot rendezvous: at most one outstanding
// request_confirmation per session, created when that command is emitted
// and consumed by the resumed loop.
type ConfirmationSlot struct {
	mu    sync.Mutex
	armed bool
	ch    chan bool
}

// NewConfirmationSlot builds an unarmed slot.
func NewConfirmationSlot() *ConfirmationSlot {
	return &ConfirmationSlot{}
}

// Arm prepares the slot to receive exactly one answer. It returns
// SessionConflict if a confirmation is already outstanding — only one is
// permitted per session at a time.
func (s *ConfirmationSlot) Arm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed {
		return errs.Wrap(errs.SessionConflict, "session: confirmation already outstanding")
	}
	s.armed = true
	s.ch = make(chan bool, 1)
	return nil
}

// Await blocks until Resolve is called or ctx is canceled. Confirmation
// waits are unbounded, so callers typically pass a cancelable, not a
// deadlined, context.
func (s *ConfirmationSlot) Await(ctx context.Context) (bool, error) {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	if ch == nil {
		return false, errs.Wrap(errs.Unknown, "session: confirmation slot not armed")
	}

	select {
	case yes := <-ch:
		s.disarm()
		return yes, nil
	case <-ctx.Done():
		s.disarm()
		return false, ctx.Err()
	}
}

// Resolve delivers the user's answer. It is a no-op if the slot is not
// armed, so a stray confirmation event after disconnect is harmless.
func (s *ConfirmationSlot) Resolve(yes bool) {
	s.mu.Lock()
	ch := s.ch
	armed := s.armed
	s.mu.Unlock()
	if !armed || ch == nil {
		return
	}
	select {
	case ch <- yes:
	default:
	}
}

// Cancel resolves an outstanding slot with "no". Called on disconnect so a
// confirmation nobody will ever answer doesn't block the loop forever.
func (s *ConfirmationSlot) Cancel() {
	s.Resolve(false)
}

func (s *ConfirmationSlot) disarm() {
	s.mu.Lock()
	s.armed = false
	s.ch = nil
	s.mu.Unlock()
}
