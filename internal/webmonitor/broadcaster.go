package webmonitor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/logger"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/session"
)

// Source publishes session states.
type Source interface {
	Subscribe() (int, <-chan session.State)
	Unsubscribe(id int)
}

// SerializedEvent holds pre-serialized data in both formats.
// This avoids redundant serialization when broadcasting to multiple clients.
type SerializedEvent struct {
	State        session.State
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // Pre-serialized google.protobuf.Struct, base64 encoded for SSE
}

// StateBroadcaster manages fanout of session states to SSE and WebSocket
// clients. Each state is serialized once, in both formats.
type StateBroadcaster struct {
	source Source

	mu      sync.Mutex
	clients map[int]chan *SerializedEvent
	nextID  int
	latest  *SerializedEvent
	closed  bool
}

// NewStateBroadcaster creates a broadcaster fed by source.
func NewStateBroadcaster(source Source) *StateBroadcaster {
	return &StateBroadcaster{
		source:  source,
		clients: make(map[int]chan *SerializedEvent),
	}
}

func (sb *StateBroadcaster) String() string { return "state-broadcaster" }

// Serve relays states from the source until ctx is done, then closes every
// client channel. Serve may be called again after it returns.
func (sb *StateBroadcaster) Serve(ctx context.Context) error {
	sb.mu.Lock()
	sb.closed = false
	sb.latest = nil
	sb.mu.Unlock()

	id, states := sb.source.Subscribe()
	defer sb.source.Unsubscribe(id)
	defer sb.closeAll()

	logger.Info("StateBroadcaster", "Starting state broadcaster")
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-states:
			if !ok {
				return nil
			}
			event, err := Serialize(s)
			if err != nil {
				logger.Error("StateBroadcaster", "Serialize error: %v", err)
				continue
			}
			sb.broadcast(event)
		}
	}
}

// Subscribe adds a new client. The channel starts with the latest event,
// if any.
func (sb *StateBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	id := sb.nextID
	sb.nextID++
	ch := make(chan *SerializedEvent, 2)
	if sb.closed {
		close(ch)
		return id, ch
	}
	if sb.latest != nil {
		ch <- sb.latest
	}
	sb.clients[id] = ch

	logger.Debug("StateBroadcaster", "Client #%d subscribed (total clients: %d)", id, len(sb.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (sb *StateBroadcaster) Unsubscribe(id int) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if ch, ok := sb.clients[id]; ok {
		close(ch)
		delete(sb.clients, id)
		logger.Debug("StateBroadcaster", "Client #%d unsubscribed (remaining clients: %d)", id, len(sb.clients))
	}
}

// ClientCount returns the number of subscribed clients.
func (sb *StateBroadcaster) ClientCount() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return len(sb.clients)
}

// broadcast delivers event to every client. A slow client loses its oldest
// queued event, never the newest.
func (sb *StateBroadcaster) broadcast(event *SerializedEvent) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.latest = event
	for id, ch := range sb.clients {
		select {
		case ch <- event:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- event:
		default:
			logger.Debug("StateBroadcaster", "Client #%d too slow, event dropped", id)
		}
	}
}

func (sb *StateBroadcaster) closeAll() {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.closed = true
	for id, ch := range sb.clients {
		close(ch)
		delete(sb.clients, id)
	}
}

// Serialize encodes s as JSON and as a base64 google.protobuf.Struct with
// the same field names.
func Serialize(s session.State) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(jsonData, &fields); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	pbState, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("protobuf struct: %w", err)
	}
	pbData, err := proto.Marshal(pbState)
	if err != nil {
		return nil, fmt.Errorf("protobuf marshal: %w", err)
	}

	return &SerializedEvent{
		State:        s,
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}
