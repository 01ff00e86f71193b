package hub

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-rooms/pkg/market"
	"github.com/shubham-shewale/stock-rooms/pkg/models"
	"github.com/shubham-shewale/stock-rooms/pkg/protocol"
)

var ErrUnknownInstrument = errors.New("unknown instrument")

type ClientInterface interface {
	ID() string
	Name() string
	SendJSON(msgType string, v interface{})
	// SendBytes queues a pre-encoded frame. Frames tagged with a room are
	// dropped by the transport once that membership ends, even if the client
	// later rejoins the same room.
	SendBytes(room string, b []byte)
	SetRoom(room string)
	Close()
}

// PriceEngine is the subset of the engine the hub drives.
type PriceEngine interface {
	Start(instrument string, sink func(instrument string, m market.Move)) bool
	Stop(instrument string) bool
	Snapshot(instrument string) (market.PriceState, bool)
}

type room struct {
	instrument string
	members    map[string]ClientInterface
}

// Hub owns room membership. The same lock that guards membership also
// serialises engine start/stop, so a room runs iff it has members.
type Hub struct {
	rooms      map[string]*room
	clientRoom map[string]*room

	engine  PriceEngine
	catalog *models.Catalog
	logger  *zap.Logger
	mu      sync.RWMutex
}

func NewHub(engine PriceEngine, catalog *models.Catalog, logger *zap.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]*room),
		clientRoom: make(map[string]*room),
		engine:     engine,
		catalog:    catalog,
		logger:     logger,
	}
}

// Join moves client into instrument's room, leaving its current room first.
// The joiner gets a price snapshot; the other members get a notice.
func (h *Hub) Join(client ClientInterface, instrument string) error {
	if !h.catalog.Allowed(instrument) {
		return fmt.Errorf("%w: %q", ErrUnknownInstrument, instrument)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	id := client.ID()
	if cur := h.clientRoom[id]; cur != nil {
		if cur.instrument == instrument {
			h.sendSnapshot(client, instrument)
			return nil
		}
		h.leaveLocked(client, cur)
	}

	r := h.rooms[instrument]
	if r == nil {
		r = &room{instrument: instrument, members: make(map[string]ClientInterface)}
		h.rooms[instrument] = r
		h.engine.Start(instrument, func(_ string, m market.Move) {
			h.publishTick(r, m)
		})
	}
	r.members[id] = client
	h.clientRoom[id] = r
	client.SetRoom(instrument)

	h.logger.Info("Joined room",
		zap.String("session", id),
		zap.String("instrument", instrument),
		zap.Int("members", len(r.members)))

	h.sendSnapshot(client, instrument)
	h.broadcastLocked(r, protocol.TypeRoomNotice, protocol.RoomNotice{
		Message:   client.Name() + " joined the room",
		Timestamp: time.Now(),
	}, id)
	return nil
}

// Leave removes client from its room. A non-empty instrument must match the
// current room, otherwise the request is ignored.
func (h *Hub) Leave(client ClientInterface, instrument string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.clientRoom[client.ID()]
	if r == nil || (instrument != "" && r.instrument != instrument) {
		return false
	}
	h.leaveLocked(client, r)
	return true
}

// Unregister drops the client from any room and closes it.
func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	if r := h.clientRoom[client.ID()]; r != nil {
		h.leaveLocked(client, r)
	}
	h.mu.Unlock()

	client.Close()
}

// Broadcast sends to every member of instrument's room except excludeID.
func (h *Hub) Broadcast(instrument, msgType string, payload interface{}, excludeID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if r, ok := h.rooms[instrument]; ok {
		h.broadcastLocked(r, msgType, payload, excludeID)
	}
}

func (h *Hub) RoomOf(clientID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r := h.clientRoom[clientID]; r != nil {
		return r.instrument
	}
	return ""
}

func (h *Hub) Members(instrument string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[instrument]; ok {
		return len(r.members)
	}
	return 0
}

func (h *Hub) leaveLocked(client ClientInterface, r *room) {
	id := client.ID()
	delete(r.members, id)
	delete(h.clientRoom, id)
	client.SetRoom("")

	h.logger.Info("Left room",
		zap.String("session", id),
		zap.String("instrument", r.instrument),
		zap.Int("members", len(r.members)))

	if len(r.members) == 0 {
		h.engine.Stop(r.instrument)
		delete(h.rooms, r.instrument)
		return
	}

	h.broadcastLocked(r, protocol.TypeRoomNotice, protocol.RoomNotice{
		Message:   client.Name() + " left the room",
		Timestamp: time.Now(),
	}, id)
}

// publishTick drops ticks from a feed whose room has since been torn down.
func (h *Hub) publishTick(r *room, m market.Move) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.rooms[r.instrument] != r {
		return
	}
	h.broadcastLocked(r, protocol.TypePriceUpdated, protocol.NewPriceUpdated(r.instrument, m), "")
}

func (h *Hub) broadcastLocked(r *room, msgType string, payload interface{}, excludeID string) {
	if len(r.members) == 0 {
		return
	}
	msg, err := protocol.Encode(msgType, payload)
	if err != nil {
		h.logger.Error("Failed to encode broadcast", zap.String("type", msgType), zap.Error(err))
		return
	}
	for id, client := range r.members {
		if id == excludeID {
			continue
		}
		client.SendBytes(r.instrument, msg)
	}
}

func (h *Hub) sendSnapshot(client ClientInterface, instrument string) {
	state, ok := h.engine.Snapshot(instrument)
	if !ok {
		state = market.NewPriceState(h.catalog.Lookup(instrument).BasePrice)
	}
	msg, err := protocol.Encode(protocol.TypePriceSnapshot, protocol.NewPriceSnapshot(instrument, state))
	if err != nil {
		h.logger.Error("Failed to encode snapshot", zap.String("instrument", instrument), zap.Error(err))
		return
	}
	client.SendBytes(instrument, msg)
}
