// Package room maintains the in-memory mapping of boards to live sessions.
// Membership is process-local and rebuilt empty on restart; the stroke store
// stays the single source of truth.
package room

import (
	"log"
	"sync"

	"whiteboard-backend/internal/session"
)

// Registry maps board ids to their connected sessions.
type Registry struct {
	mu    sync.RWMutex
	rooms map[int64]map[string]*session.Session // board id -> session id -> session
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[int64]map[string]*session.Session),
	}
}

// Join registers a session under a board's room.
func (r *Registry) Join(boardID int64, sess *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[boardID]
	if !ok {
		members = make(map[string]*session.Session)
		r.rooms[boardID] = members
		log.Printf("[Room %d] Created", boardID)
	}
	members[sess.ID] = sess
	log.Printf("[Room %d] Session %s joined, total: %d", boardID, sess.ID, len(members))
}

// Leave removes a session from its room, dropping the room when empty.
func (r *Registry) Leave(boardID int64, sess *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[boardID]
	if !ok {
		return
	}
	delete(members, sess.ID)
	log.Printf("[Room %d] Session %s left, remaining: %d", boardID, sess.ID, len(members))
	if len(members) == 0 {
		delete(r.rooms, boardID)
		log.Printf("[Room %d] Removed", boardID)
	}
}

// Members returns a snapshot of the sessions in a room.
func (r *Registry) Members(boardID int64) []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*session.Session, 0, len(r.rooms[boardID]))
	for _, sess := range r.rooms[boardID] {
		members = append(members, sess)
	}
	return members
}

// Count returns the number of sessions in a room.
func (r *Registry) Count(boardID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[boardID])
}

// Broadcast delivers an event to every session in the room except the one
// identified by excludeID (empty string excludes nobody). Delivery is
// best-effort per session: a failed write closes and prunes that session
// without failing delivery to the rest.
func (r *Registry) Broadcast(boardID int64, event string, data any, excludeID string) {
	members := r.Members(boardID)

	var dead []*session.Session
	for _, sess := range members {
		if sess.ID == excludeID {
			continue
		}
		if err := sess.Send(event, data); err != nil {
			log.Printf("[Room %d] Failed to send %s to session %s: %v", boardID, event, sess.ID, err)
			dead = append(dead, sess)
		}
	}

	for _, sess := range dead {
		sess.Close()
		r.Leave(boardID, sess)
	}
}
