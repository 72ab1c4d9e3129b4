package relay

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/castlab/studiocast/pkg/api"
	"github.com/castlab/studiocast/pkg/com"
	"github.com/castlab/studiocast/pkg/config"
	"github.com/castlab/studiocast/pkg/logger"
	"github.com/goccy/go-json"
)

const packetWait = 3 * time.Second

type testClient struct {
	wire *com.Client
	sid  string
	in   chan api.In
}

func testHub(t *testing.T) string {
	t.Helper()
	hub := NewHub(config.RelayConfig{}, logger.Default())
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func dial(t *testing.T, host, name string) *testClient {
	t.Helper()
	conn, err := com.NewConnector().NewClient(url.URL{Scheme: "ws", Host: host, Path: "/ws"}, logger.Default())
	if err != nil {
		t.Fatal(err)
	}
	c := &testClient{wire: conn, in: make(chan api.In, 64)}
	conn.OnPacket(func(p api.In) { c.in <- p })
	conn.Listen()
	t.Cleanup(conn.Close)

	payload, err := conn.Call(api.Join, api.JoinRequest{Name: name})
	ack, err := api.UnwrapChecked[api.JoinAckResponse](payload, err)
	if err != nil {
		t.Fatal(err)
	}
	if ack == nil || ack.Sid == "" {
		t.Fatal("no session id in the join ack")
	}
	c.sid = ack.Sid
	return c
}

// sync waits until the relay has processed everything this client sent
// before, a repeated join is acked in order with the rest of the queue.
func (c *testClient) sync(t *testing.T) {
	t.Helper()
	if _, err := c.wire.Call(api.Join, api.JoinRequest{}); err != nil {
		t.Fatal(err)
	}
}

func (c *testClient) expect(t *testing.T, kind api.PT) api.In {
	t.Helper()
	deadline := time.After(packetWait)
	for {
		select {
		case p := <-c.in:
			if p.T == kind {
				return p
			}
		case <-deadline:
			t.Fatalf("no %v packet", kind)
		}
	}
}

func (c *testClient) expectNone(t *testing.T, kind api.PT) {
	t.Helper()
	deadline := time.After(300 * time.Millisecond)
	for {
		select {
		case p := <-c.in:
			if p.T == kind {
				t.Fatalf("unexpected %v packet", kind)
			}
		case <-deadline:
			return
		}
	}
}

func TestJoinAndPresence(t *testing.T) {
	host := testHub(t)
	c1 := dial(t, host, "alice")
	c2 := dial(t, host, "bob")

	joined := c1.expect(t, api.SessionJoined)
	info := api.Unwrap[api.SessionJoinedNotice](joined.Payload)
	if info == nil || info.Id != c2.sid || info.Name != "bob" {
		t.Errorf("got %+v, want bob's session", info)
	}

	snap := api.Unwrap[api.PresenceSnapshotResponse](c2.expect(t, api.PresenceSnapshot).Payload)
	if snap == nil || len(snap.Sessions) != 1 || snap.Sessions[0].Id != c1.sid {
		t.Errorf("got %+v, want just alice", snap)
	}
}

func TestUnicastRouting(t *testing.T) {
	host := testHub(t)
	c1 := dial(t, host, "alice")
	c2 := dial(t, host, "bob")

	if err := c1.wire.NotifyTo(c2.sid, api.Offer, api.OfferRequest{Sdp: "v=0"}); err != nil {
		t.Fatal(err)
	}
	p := c2.expect(t, api.Offer)
	if p.From != c1.sid {
		t.Errorf("From = %q, want %q", p.From, c1.sid)
	}
	rq := api.Unwrap[api.OfferRequest](p.Payload)
	if rq == nil || rq.Sdp != "v=0" {
		t.Errorf("payload = %+v", rq)
	}
}

func TestUnicastSilentDrop(t *testing.T) {
	host := testHub(t)
	c1 := dial(t, host, "alice")
	c2 := dial(t, host, "bob")

	gone := com.NewUid().String()
	if err := c1.wire.NotifyTo(gone, api.Offer, api.OfferRequest{Sdp: "v=0"}); err != nil {
		t.Fatal(err)
	}
	// the sender stays connected and routable after the miss
	c1.sync(t)
	if err := c1.wire.NotifyTo(c2.sid, api.Answer, api.AnswerRequest{Sdp: "v=1"}); err != nil {
		t.Fatal(err)
	}
	c2.expect(t, api.Answer)
	c2.expectNone(t, api.Offer)
}

func TestVideoMessageAck(t *testing.T) {
	host := testHub(t)
	c1 := dial(t, host, "alice")
	c2 := dial(t, host, "bob")

	err := c1.wire.NotifyTo(c2.sid, api.VideoMessage, api.VideoMessageRequest{VideoUrl: "blob:1"})
	if err != nil {
		t.Fatal(err)
	}
	c2.expect(t, api.VideoMessage)
	ack := api.Unwrap[api.VideoMessageAckNotice](c1.expect(t, api.VideoMessageAck).Payload)
	if ack == nil || ack.To != c2.sid {
		t.Errorf("ack = %+v, want delivery to bob", ack)
	}
}

func TestBroadcastRoomOnly(t *testing.T) {
	host := testHub(t)
	c1 := dial(t, host, "alice")
	c2 := dial(t, host, "bob")
	c3 := dial(t, host, "carol")

	_ = c1.wire.Notify(api.StudioJoin, api.StudioJoinNotice{Name: "alice"})
	c1.sync(t)
	_ = c2.wire.Notify(api.StudioJoin, api.StudioJoinNotice{Name: "bob"})
	c1.expect(t, api.StudioJoin)

	cursor := api.CursorUpdateNotice{X: 1, Y: 2, Name: "alice"}
	if err := c1.wire.Notify(api.CursorUpdate, cursor); err != nil {
		t.Fatal(err)
	}
	p := c2.expect(t, api.CursorUpdate)
	if p.From != c1.sid {
		t.Errorf("From = %q, want %q", p.From, c1.sid)
	}
	c3.expectNone(t, api.CursorUpdate)
	c1.expectNone(t, api.CursorUpdate)

	// bystanders can't draw either
	_ = c3.wire.Notify(api.ObjectAdded, api.ObjectChangeNotice{ObjectId: 1, State: json.RawMessage(`{}`)})
	c1.expectNone(t, api.ObjectAdded)
}

func TestStudioJoinIdempotent(t *testing.T) {
	host := testHub(t)
	c1 := dial(t, host, "alice")
	c2 := dial(t, host, "bob")

	_ = c1.wire.Notify(api.StudioJoin, api.StudioJoinNotice{Name: "alice"})
	c1.sync(t)
	_ = c2.wire.Notify(api.StudioJoin, api.StudioJoinNotice{Name: "bob"})
	c1.expect(t, api.StudioJoin)

	_ = c2.wire.Notify(api.StudioJoin, api.StudioJoinNotice{Name: "bob"})
	c1.expectNone(t, api.StudioJoin)
}

func TestSessionLeft(t *testing.T) {
	host := testHub(t)
	c1 := dial(t, host, "alice")
	c2 := dial(t, host, "bob")
	c1.expect(t, api.SessionJoined)

	c2.wire.Close()
	left := api.Unwrap[api.SessionLeftNotice](c1.expect(t, api.SessionLeft).Payload)
	if left == nil || left.Id != c2.sid {
		t.Errorf("got %+v, want bob's id", left)
	}
}

func TestPacketsBeforeJoin(t *testing.T) {
	host := testHub(t)
	conn, err := com.NewConnector().NewClient(url.URL{Scheme: "ws", Host: host, Path: "/ws"}, logger.Default())
	if err != nil {
		t.Fatal(err)
	}
	conn.Listen()
	t.Cleanup(conn.Close)

	c2 := dial(t, host, "bob")
	if err := conn.NotifyTo(c2.sid, api.Offer, api.OfferRequest{Sdp: "v=0"}); err != nil {
		t.Fatal(err)
	}
	c2.expectNone(t, api.Offer)
}
