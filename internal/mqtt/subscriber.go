package mqtt

import (
	"encoding/json"
	"strings"
	"sync/atomic"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AaronLay10/ProjectBoard/internal/events"
	"github.com/AaronLay10/ProjectBoard/internal/storage"
)

// recordMessage is the wire format on <prefix>/records/<type>.
type recordMessage struct {
	Origin   string          `json:"origin"`
	Type     string          `json:"type"`
	Envelope json.RawMessage `json:"envelope"`
}

// Stats counts record traffic.
type Stats struct {
	Published int64 `json:"published"`
	Received  int64 `json:"received"`
	Adopted   int64 `json:"adopted"`
	Rejected  int64 `json:"rejected"`
}

// RecordSync shares committed store records between processes playing the
// same game. It is the store's Publisher and feeds inbound records back
// through Store.ApplyExternal, which re-validates them.
type RecordSync struct {
	client *Client
	store  *storage.Store
	bus    *events.Bus
	logger *zap.Logger
	prefix string
	origin string

	published atomic.Int64
	received  atomic.Int64
	adopted   atomic.Int64
	rejected  atomic.Int64
}

// NewRecordSync creates a record sync for topics under prefix.
func NewRecordSync(client *Client, store *storage.Store, bus *events.Bus, prefix string, logger *zap.Logger) *RecordSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordSync{
		client: client,
		store:  store,
		bus:    bus,
		logger: logger,
		prefix: strings.TrimSuffix(prefix, "/"),
		origin: uuid.NewString(),
	}
}

// Origin returns the id stamped on every published record.
func (s *RecordSync) Origin() string {
	return s.origin
}

func (s *RecordSync) topic(typ string) string {
	return s.prefix + "/records/" + typ
}

// Start connects, subscribes to every record topic and registers itself as the
// store's publisher. It returns false if the broker is unreachable; the game
// keeps running without sync.
func (s *RecordSync) Start() bool {
	if !s.client.StartWithRetry(s.prefix+"/records/#", s.handle) {
		return false
	}
	s.store.SetPublisher(s)
	return true
}

// Stop detaches from the store and disconnects.
func (s *RecordSync) Stop() {
	s.store.SetPublisher(nil)
	s.client.Disconnect()
}

// Publish implements storage.Publisher.
func (s *RecordSync) Publish(typ string, envelope []byte) error {
	msg, err := json.Marshal(recordMessage{Origin: s.origin, Type: typ, Envelope: envelope})
	if err != nil {
		return err
	}
	if err := s.client.Publish(s.topic(typ), msg); err != nil {
		return err
	}
	s.published.Add(1)
	return nil
}

func (s *RecordSync) handle(_ paho.Client, m paho.Message) {
	var msg recordMessage
	if err := json.Unmarshal(m.Payload(), &msg); err != nil {
		s.rejected.Add(1)
		s.logger.Warn("record sync payload corrupt", zap.String("topic", m.Topic()), zap.Error(err))
		return
	}
	if msg.Origin == s.origin {
		return
	}
	s.received.Add(1)

	typ := m.Topic()[strings.LastIndexByte(m.Topic(), '/')+1:]
	if msg.Type != typ || !s.store.ApplyExternal(typ, msg.Envelope) {
		s.rejected.Add(1)
		return
	}
	s.adopted.Add(1)

	if s.bus != nil {
		s.bus.Emit("info", "store.external", "", map[string]interface{}{
			"type":   typ,
			"origin": msg.Origin,
		})
	}
}

// Stats returns the traffic counters.
func (s *RecordSync) Stats() Stats {
	return Stats{
		Published: s.published.Load(),
		Received:  s.received.Load(),
		Adopted:   s.adopted.Load(),
		Rejected:  s.rejected.Load(),
	}
}
