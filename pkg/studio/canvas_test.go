package studio

import (
	"testing"

	"github.com/castlab/studiocast/pkg/api"
	"github.com/goccy/go-json"
)

func TestCanvasLastWriterWins(t *testing.T) {
	c := NewCanvas()
	c.Upsert("a", 1, json.RawMessage(`{"x":1}`))
	c.Upsert("b", 1, json.RawMessage(`{"x":2}`))
	o, ok := c.Get(1)
	if !ok || string(o.State) != `{"x":2}` || o.OwnerId != "b" {
		t.Errorf("got %+v, want the later edit", o)
	}
}

func TestCanvasRemove(t *testing.T) {
	c := NewCanvas()
	c.Upsert("a", 1, json.RawMessage(`{}`))
	c.Remove(1)
	c.Remove(1)
	c.Remove(404)
	if c.Len() != 0 {
		t.Errorf("got %d objects, want 0", c.Len())
	}
}

func TestCanvasModifyMaterializes(t *testing.T) {
	c := NewCanvas()
	c.Upsert("a", 7, json.RawMessage(`{"x":1}`))
	if _, ok := c.Get(7); !ok {
		t.Error("edit of an unknown object should materialize it")
	}
	if id := c.AllocId(); id != 8 {
		t.Errorf("AllocId() = %d, want 8", id)
	}
}

func TestCanvasSyncFirstWins(t *testing.T) {
	c := NewCanvas()
	rid := c.BeginSync()

	if c.ApplySync(api.CanvasSyncResponse{RequestId: "foreign"}) {
		t.Error("foreign response accepted")
	}

	first := api.CanvasSyncResponse{
		RequestId:    rid,
		Objects:      []api.CanvasObject{{ObjectId: 1, OwnerId: "a", State: json.RawMessage(`{"x":1}`)}},
		NextObjectId: 5,
	}
	if !c.ApplySync(first) {
		t.Fatal("first response rejected")
	}
	second := api.CanvasSyncResponse{
		RequestId:    rid,
		Objects:      []api.CanvasObject{{ObjectId: 2, OwnerId: "b", State: json.RawMessage(`{}`)}},
		NextObjectId: 9,
	}
	if c.ApplySync(second) {
		t.Error("late response accepted")
	}
	if _, ok := c.Get(2); ok {
		t.Error("late response applied")
	}
	if id := c.AllocId(); id != 5 {
		t.Errorf("AllocId() = %d, want 5", id)
	}
}

func TestCanvasSyncKeepsLocalEdits(t *testing.T) {
	c := NewCanvas()
	rid := c.BeginSync()
	c.Upsert("me", 1, json.RawMessage(`{"local":true}`))

	c.ApplySync(api.CanvasSyncResponse{
		RequestId: rid,
		Objects:   []api.CanvasObject{{ObjectId: 1, OwnerId: "a", State: json.RawMessage(`{"local":false}`)}},
	})
	o, _ := c.Get(1)
	if string(o.State) != `{"local":true}` {
		t.Errorf("got %s, local edit should win", o.State)
	}
}

func TestCanvasSealSync(t *testing.T) {
	c := NewCanvas()
	rid := c.BeginSync()
	if c.Ready() {
		t.Error("ready before sync")
	}
	c.SealSync()
	if !c.Ready() {
		t.Error("not ready after seal")
	}
	if c.ApplySync(api.CanvasSyncResponse{RequestId: rid}) {
		t.Error("sealed sync accepted a response")
	}
}

func TestCanvasSnapshotOrder(t *testing.T) {
	c := NewCanvas()
	c.Upsert("a", 3, json.RawMessage(`{}`))
	c.Upsert("a", 1, json.RawMessage(`{}`))
	c.Upsert("a", 2, json.RawMessage(`{}`))
	objects, next := c.Snapshot()
	for i, o := range objects {
		if o.ObjectId != int64(i+1) {
			t.Fatalf("snapshot out of order: %+v", objects)
		}
	}
	if next != 4 {
		t.Errorf("next id = %d, want 4", next)
	}
}
