package hub_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-rooms/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/stock-rooms/cmd/gateway/internal/testutils"
	"github.com/shubham-shewale/stock-rooms/pkg/market"
	"github.com/shubham-shewale/stock-rooms/pkg/models"
	"github.com/shubham-shewale/stock-rooms/pkg/protocol"
)

func setup() (*hub.Hub, *testutils.MockEngine) {
	eng := testutils.NewMockEngine()
	catalog := models.NewCatalog(decimal.NewFromInt(500))
	return hub.NewHub(eng, catalog, zap.NewNop()), eng
}

func move(price int64) market.Move {
	return market.Move{
		PreviousPrice: decimal.NewFromInt(500),
		Price:         decimal.NewFromInt(price),
		Delta:         price - 500,
		PercentChange: market.PercentChange(decimal.NewFromInt(500), decimal.NewFromInt(price)),
		Timestamp:     time.Now(),
	}
}

func TestHub_Join_StartsFeedAndSendsSnapshot(t *testing.T) {
	h, eng := setup()
	c1 := testutils.NewMockClient("c1")

	if err := h.Join(c1, "TCS"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	if eng.StartCount("TCS") != 1 {
		t.Errorf("Expected one feed start, got %d", eng.StartCount("TCS"))
	}
	if c1.LastMsgType() != protocol.TypePriceSnapshot {
		t.Errorf("Expected price_snapshot, got %s", c1.LastMsgType())
	}

	var snap protocol.PriceSnapshot
	if err := c1.Of(protocol.TypePriceSnapshot)[0].Into(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Instrument != "TCS" || !snap.Price.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
	if c1.CurrentRoom() != "TCS" {
		t.Errorf("Client room should be TCS, got %q", c1.CurrentRoom())
	}
	// scoped so the transport can drop it after a quick leave
	if room := c1.Frames[len(c1.Frames)-1].Room; room != "TCS" {
		t.Errorf("Snapshot should be tagged with its room, got %q", room)
	}
}

func TestHub_SecondJoin_NoSecondFeed_NoticeExcludesJoiner(t *testing.T) {
	h, eng := setup()
	c1 := testutils.NewMockClient("c1")
	c2 := testutils.NewMockClient("c2")

	h.Join(c1, "TCS")
	h.Join(c2, "TCS")

	if eng.StartCount("TCS") != 1 {
		t.Errorf("Second join must not start a second feed")
	}
	if h.Members("TCS") != 2 {
		t.Errorf("Expected 2 members, got %d", h.Members("TCS"))
	}

	notices := c1.Of(protocol.TypeRoomNotice)
	if len(notices) != 1 {
		t.Fatalf("Expected one notice for c1, got %d", len(notices))
	}
	var n protocol.RoomNotice
	notices[0].Into(&n)
	if n.Message != "user-c2 joined the room" {
		t.Errorf("Unexpected notice %q", n.Message)
	}
	if c2.Count(protocol.TypeRoomNotice) != 0 {
		t.Error("Joiner must not receive its own notice")
	}
}

func TestHub_LeaveToEmpty_StopsFeed_RejoinStartsFresh(t *testing.T) {
	h, eng := setup()
	c1 := testutils.NewMockClient("c1")
	c2 := testutils.NewMockClient("c2")

	h.Join(c1, "TCS")
	h.Join(c2, "TCS")

	h.Leave(c1, "TCS")
	if !eng.Running("TCS") {
		t.Fatal("Feed must keep running while c2 is in the room")
	}
	if c2.Count(protocol.TypeRoomNotice) != 1 {
		t.Errorf("c2 should be told that c1 left")
	}

	h.Leave(c2, "")
	if eng.Running("TCS") || eng.StopCount("TCS") != 1 {
		t.Errorf("Feed must stop once the room is empty")
	}
	if h.Members("TCS") != 0 {
		t.Errorf("Room should be gone")
	}

	h.Join(c1, "TCS")
	if eng.StartCount("TCS") != 2 {
		t.Errorf("Rejoin should start a fresh feed, starts=%d", eng.StartCount("TCS"))
	}
}

func TestHub_Leave_NoRoomOrWrongRoom(t *testing.T) {
	h, eng := setup()
	c1 := testutils.NewMockClient("c1")

	if h.Leave(c1, "") {
		t.Error("Leave without a room should be a no-op")
	}

	h.Join(c1, "TCS")
	if h.Leave(c1, "Zomato") {
		t.Error("Leave for a different room should be ignored")
	}
	if h.RoomOf("c1") != "TCS" || !eng.Running("TCS") {
		t.Error("Mismatched leave must not change membership")
	}
}

func TestHub_SwitchRoom_StopsOldTicks(t *testing.T) {
	h, eng := setup()
	c1 := testutils.NewMockClient("c1")
	c2 := testutils.NewMockClient("c2")

	h.Join(c1, "TCS")
	h.Join(c2, "TCS")

	eng.Sink("TCS")("TCS", move(600))
	if c1.Count(protocol.TypePriceUpdated) != 1 {
		t.Fatalf("c1 should get the TCS tick before switching")
	}

	h.Join(c1, "Zomato")
	if h.RoomOf("c1") != "Zomato" || h.Members("TCS") != 1 {
		t.Fatalf("c1 should have moved to Zomato")
	}

	c1.Reset()
	eng.Sink("TCS")("TCS", move(650))

	if c1.Count(protocol.TypePriceUpdated) != 0 {
		t.Error("c1 must not receive TCS ticks after switching")
	}
	if c2.Count(protocol.TypePriceUpdated) != 2 {
		t.Errorf("c2 should keep receiving TCS ticks, got %d", c2.Count(protocol.TypePriceUpdated))
	}
}

func TestHub_StaleFeedTicksDropped(t *testing.T) {
	h, eng := setup()
	c1 := testutils.NewMockClient("c1")

	h.Join(c1, "TCS")
	oldSink := eng.Sink("TCS")
	h.Leave(c1, "TCS")
	h.Join(c1, "TCS")
	c1.Reset()

	oldSink("TCS", move(900))
	if c1.Count(protocol.TypePriceUpdated) != 0 {
		t.Error("Ticks from a stopped feed must not reach the new room")
	}

	eng.Sink("TCS")("TCS", move(510))
	if c1.Count(protocol.TypePriceUpdated) != 1 {
		t.Error("Ticks from the live feed must be delivered")
	}
}

func TestHub_TickGoesToAllMembersIncludingOriginator(t *testing.T) {
	h, eng := setup()
	clients := []*testutils.MockClient{
		testutils.NewMockClient("a"), testutils.NewMockClient("b"), testutils.NewMockClient("c"),
	}
	for _, c := range clients {
		h.Join(c, "TCS")
	}

	eng.Sink("TCS")("TCS", move(700))

	for _, c := range clients {
		updates := c.Of(protocol.TypePriceUpdated)
		if len(updates) != 1 {
			t.Fatalf("%s: expected 1 tick, got %d", c.ID(), len(updates))
		}
		var u protocol.PriceUpdated
		updates[0].Into(&u)
		if u.Delta != 200 || u.PercentChange != 40 {
			t.Errorf("Unexpected update %+v", u)
		}
	}
}

func TestHub_BroadcastExclusion(t *testing.T) {
	h, _ := setup()
	c1 := testutils.NewMockClient("c1")
	c2 := testutils.NewMockClient("c2")
	h.Join(c1, "TCS")
	h.Join(c2, "TCS")
	c1.Reset()
	c2.Reset()

	h.Broadcast("TCS", protocol.TypeRoomNotice, protocol.RoomNotice{Message: "hi"}, "c1")
	h.Broadcast("Nowhere", protocol.TypeRoomNotice, protocol.RoomNotice{Message: "lost"}, "")

	if c1.Count(protocol.TypeRoomNotice) != 0 || c2.Count(protocol.TypeRoomNotice) != 1 {
		t.Error("Broadcast must skip only the excluded session")
	}
}

func TestHub_RestrictedCatalog(t *testing.T) {
	eng := testutils.NewMockEngine()
	catalog, _ := models.ParseCatalog(decimal.NewFromInt(500), []string{"TCS"})
	h := hub.NewHub(eng, catalog, zap.NewNop())

	err := h.Join(testutils.NewMockClient("c1"), "Infosys")
	if !errors.Is(err, hub.ErrUnknownInstrument) {
		t.Errorf("Expected ErrUnknownInstrument, got %v", err)
	}
	if eng.StartCount("Infosys") != 0 {
		t.Error("Unknown instrument must not start a feed")
	}
}

func TestHub_Unregister(t *testing.T) {
	h, eng := setup()
	c1 := testutils.NewMockClient("c1")
	h.Join(c1, "TCS")

	h.Unregister(c1)

	if !c1.Closed {
		t.Error("Client should be closed")
	}
	if eng.Running("TCS") || h.RoomOf("c1") != "" {
		t.Error("Unregister must leave the room and stop the empty feed")
	}
}

// Run with `go test -race ./...`
func TestHub_ConcurrentJoinLeave_FeedMatchesMembership(t *testing.T) {
	h, eng := setup()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		c := testutils.NewMockClient(fmt.Sprintf("c%d", i))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Join(c, "TCS")
			if i%2 == 0 {
				h.Leave(c, "TCS")
			}
			if i%5 == 0 {
				h.Unregister(c)
			}
		}(i)
	}
	wg.Wait()

	members := h.Members("TCS")
	running := eng.Running("TCS")
	if (members > 0) != running {
		t.Errorf("members=%d but running=%v", members, running)
	}
	net := eng.StartCount("TCS") - eng.StopCount("TCS")
	if (running && net != 1) || (!running && net != 0) {
		t.Errorf("starts-stops=%d inconsistent with running=%v", net, running)
	}
	if members != 20 {
		t.Errorf("Expected 20 remaining members, got %d", members)
	}
}
