package relay

import (
	"testing"

	"github.com/castlab/studiocast/pkg/com"
)

func testSession() *Session { return &Session{id: com.NewUid()} }

func TestRegistryPresence(t *testing.T) {
	r := NewRegistry()
	a, b := testSession(), testSession()
	r.Add(a)
	r.Add(b)

	if r.Len() != 2 {
		t.Fatalf("got %d sessions, want 2", r.Len())
	}
	if list := r.List(a.Id()); len(list) != 1 || list[0].Id() != b.Id() {
		t.Errorf("List() = %v, want just %v", list, b.Id())
	}
	r.Remove(a)
	if r.Has(a.Id()) {
		t.Error("removed session still present")
	}
}

func TestRegistryRoom(t *testing.T) {
	r := NewRegistry()
	a, b, c := testSession(), testSession(), testSession()
	r.Add(a)
	r.Add(b)
	r.Add(c)

	if !r.EnterRoom(a.Id()) {
		t.Fatal("first join rejected")
	}
	if r.EnterRoom(a.Id()) {
		t.Error("repeated join reported as a change")
	}
	r.EnterRoom(b.Id())

	members := r.RoomMembers(a.Id())
	if len(members) != 1 || members[0].Id() != b.Id() {
		t.Errorf("RoomMembers() = %v, want just %v", members, b.Id())
	}

	if !r.LeaveRoom(b.Id()) {
		t.Error("leave rejected")
	}
	if r.LeaveRoom(b.Id()) {
		t.Error("repeated leave reported as a change")
	}
	if r.InRoom(c.Id()) {
		t.Error("never joined session in room")
	}
}

func TestRegistryRemoveClearsRoom(t *testing.T) {
	r := NewRegistry()
	a := testSession()
	r.Add(a)
	r.EnterRoom(a.Id())
	r.Remove(a)
	if r.InRoom(a.Id()) {
		t.Error("membership survived removal")
	}
}
