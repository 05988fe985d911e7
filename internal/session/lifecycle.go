package session

import (
	"context"
	"log"
	"sync"
)

// GuestStore removes a guest identity and everything it owns.
type GuestStore interface {
	DeleteGuestCascade(ctx context.Context, userID string) error
}

// Lifecycle tracks which live sessions belong to guest identities and tears
// the guest down when its last session closes. Owned state, injected into
// the event router.
type Lifecycle struct {
	store GuestStore

	mu        sync.Mutex
	bySession map[string]string // session id -> guest user id
	refs      map[string]int    // guest user id -> live session count
}

func NewLifecycle(store GuestStore) *Lifecycle {
	return &Lifecycle{
		store:     store,
		bySession: make(map[string]string),
		refs:      make(map[string]int),
	}
}

// TrackGuest registers a session as belonging to a guest identity. Joining
// the same board twice from one session does not double-count.
func (l *Lifecycle) TrackGuest(sess *Session, userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.bySession[sess.ID]; ok {
		if prev == userID {
			return
		}
		l.refs[prev]--
		if l.refs[prev] <= 0 {
			delete(l.refs, prev)
		}
	}

	l.bySession[sess.ID] = userID
	l.refs[userID]++
}

// GuestCount returns the number of live sessions for a guest id.
func (l *Lifecycle) GuestCount(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.refs[userID]
}

// OnDisconnect releases a session. When it was the guest's last live
// session, the guest and all its data are deleted in one transaction.
func (l *Lifecycle) OnDisconnect(ctx context.Context, sess *Session) {
	l.mu.Lock()
	userID, ok := l.bySession[sess.ID]
	if ok {
		delete(l.bySession, sess.ID)
		l.refs[userID]--
		if l.refs[userID] > 0 {
			ok = false // other sessions keep the guest alive
		} else {
			delete(l.refs, userID)
		}
	}
	l.mu.Unlock()

	if !ok {
		return
	}

	if err := l.store.DeleteGuestCascade(ctx, userID); err != nil {
		log.Printf("[Session] Failed to tear down guest %s: %v", userID, err)
		return
	}
	log.Printf("[Session] Guest %s torn down after last disconnect", userID)
}
