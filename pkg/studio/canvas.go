package studio

import (
	"sort"
	"sync"

	"github.com/castlab/studiocast/pkg/api"
	"github.com/goccy/go-json"
	"github.com/gofrs/uuid"
)

// Canvas is a replica of the shared studio canvas.
//
// Conflicting edits resolve per object in arrival order, the last
// writer wins. A full-state sync is requested once on studio join and
// the first response with a matching request id settles it, any later
// ones are discarded.
type Canvas struct {
	mu      sync.Mutex
	objects map[int64]api.CanvasObject
	nextId  int64
	syncRid string
	ready   bool
}

func NewCanvas() *Canvas {
	return &Canvas{objects: make(map[int64]api.CanvasObject), nextId: 1}
}

// AllocId hands out the next free object id.
func (c *Canvas) AllocId() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextId
	c.nextId++
	return id
}

// Upsert adds or overwrites an object. Edits of unknown objects
// materialize them, so reordered add/modify pairs converge the same.
func (c *Canvas) Upsert(owner string, oid int64, state json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[oid] = api.CanvasObject{ObjectId: oid, OwnerId: owner, State: state}
	if oid >= c.nextId {
		c.nextId = oid + 1
	}
}

// Remove deletes an object, unknown ids are a no-op.
func (c *Canvas) Remove(oid int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, oid)
}

func (c *Canvas) Get(oid int64) (api.CanvasObject, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.objects[oid]
	return o, ok
}

func (c *Canvas) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.objects)
}

// Snapshot returns all objects ordered by id and the next free id.
func (c *Canvas) Snapshot() ([]api.CanvasObject, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	objects := make([]api.CanvasObject, 0, len(c.objects))
	for _, o := range c.objects {
		objects = append(objects, o)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].ObjectId < objects[j].ObjectId })
	return objects, c.nextId
}

// BeginSync registers a new outstanding sync request and returns its id.
func (c *Canvas) BeginSync() string {
	rid := uuid.Must(uuid.NewV4()).String()
	c.mu.Lock()
	c.syncRid = rid
	c.mu.Unlock()
	return rid
}

// ApplySync merges the first response to the outstanding sync request,
// false for late or foreign responses. Objects edited locally in the
// meantime keep their local state.
func (c *Canvas) ApplySync(resp api.CanvasSyncResponse) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.syncRid == "" || resp.RequestId != c.syncRid {
		return false
	}
	c.syncRid = ""
	c.ready = true
	for _, o := range resp.Objects {
		if _, ok := c.objects[o.ObjectId]; !ok {
			c.objects[o.ObjectId] = o
		}
	}
	if resp.NextObjectId > c.nextId {
		c.nextId = resp.NextObjectId
	}
	return true
}

// SealSync gives up on the outstanding sync request, e.g. when nobody
// answered, and marks the replica usable as is.
func (c *Canvas) SealSync() {
	c.mu.Lock()
	c.syncRid = ""
	c.ready = true
	c.mu.Unlock()
}

// Ready says whether the replica saw a full-state sync or gave up
// waiting for one.
func (c *Canvas) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}
