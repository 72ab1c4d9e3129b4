package relay

import (
	"sync"

	"github.com/castlab/studiocast/pkg/com"
)

// Registry tracks connected sessions and their studio room membership.
// Membership is a per-session flag owned here, not derived from traffic.
type Registry struct {
	sessions com.NetMap[com.Uid, *Session]

	mu     sync.Mutex
	inRoom map[com.Uid]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: com.NewNetMap[com.Uid, *Session](),
		inRoom:   make(map[com.Uid]struct{}),
	}
}

func (r *Registry) Add(s *Session) { r.sessions.Add(s) }

func (r *Registry) Remove(s *Session) {
	r.sessions.Remove(s)
	r.mu.Lock()
	delete(r.inRoom, s.Id())
	r.mu.Unlock()
}

func (r *Registry) Find(id com.Uid) (*Session, error) { return r.sessions.Find(id) }
func (r *Registry) Has(id com.Uid) bool               { return r.sessions.Has(id) }
func (r *Registry) Len() int                          { return r.sessions.Len() }

// EnterRoom marks the session as a studio member.
// Repeated joins change nothing and report false.
func (r *Registry) EnterRoom(id com.Uid) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inRoom[id]; ok {
		return false
	}
	r.inRoom[id] = struct{}{}
	return true
}

// LeaveRoom clears the membership flag, false when it wasn't set.
func (r *Registry) LeaveRoom(id com.Uid) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inRoom[id]; !ok {
		return false
	}
	delete(r.inRoom, id)
	return true
}

func (r *Registry) InRoom(id com.Uid) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inRoom[id]
	return ok
}

// List returns every session except the given one.
func (r *Registry) List(except com.Uid) (list []*Session) {
	r.sessions.ForEach(func(s *Session) {
		if s.Id() != except {
			list = append(list, s)
		}
	})
	return
}

// RoomMembers returns studio members except the given one.
func (r *Registry) RoomMembers(except com.Uid) (list []*Session) {
	r.sessions.ForEach(func(s *Session) {
		if s.Id() != except && r.InRoom(s.Id()) {
			list = append(list, s)
		}
	})
	return
}
