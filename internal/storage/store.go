// Package storage is the versioned record store every game service reads and
// writes through. Records are wrapped in an Envelope, validated per type,
// cached in memory and announced to subscribers after a short debounce.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Record type names persisted by the game.
const (
	TypePlayers         = "players"
	TypeProgressState   = "progressState"
	TypeVisitHistory    = "visitHistory"
	TypePlayerCards     = "playerCards"
	TypeCardHistory     = "cardHistory"
	TypeFinishedPlayers = "finishedPlayers"
	TypeScores          = "scores"
	TypeSpaces          = "spaces"
	TypeDiceRoll        = "diceRoll"
)

// ErrNotFound is returned by backends for a missing key.
var ErrNotFound = errors.New("record not found")

// Envelope wraps every physical write.
type Envelope struct {
	Timestamp int64           `json:"timestamp"`
	Version   int             `json:"version"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// Backend is the physical key/value layer under the store.
type Backend interface {
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
	// WriteBatch applies every entry or none of them.
	WriteBatch(entries map[string][]byte) error
	Delete(keys ...string) error
	Keys(prefix string) ([]string, error)
	Close() error
}

// Validator checks a payload before it is cached, saved or adopted.
type Validator func(payload json.RawMessage) error

// Publisher forwards committed envelopes to other processes.
type Publisher interface {
	Publish(typ string, envelope []byte) error
}

// Record is one entry of a batch save.
type Record struct {
	Type  string
	Value interface{}
}

// Change is delivered to subscribers once per debounce window per type.
type Change struct {
	Type     string
	Payload  json.RawMessage
	Deleted  bool
	External bool
}

// Options configures a Store.
type Options struct {
	Prefix        string
	SchemaVersion int
	Debounce      time.Duration
	Logger        *zap.Logger
}

// Store implements save/load/subscribe over a Backend.
type Store struct {
	backend  Backend
	logger   *zap.Logger
	prefix   string
	version  int
	debounce time.Duration

	mu         sync.RWMutex
	cache      map[string]json.RawMessage
	validators map[string]Validator
	publisher  Publisher

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
	timers  map[string]*time.Timer
	pending map[string]Change
	closed  bool
}

// New creates a store over backend.
func New(backend Backend, opts Options) *Store {
	if backend == nil {
		panic("storage: nil backend")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SchemaVersion == 0 {
		opts.SchemaVersion = 1
	}
	return &Store{
		backend:    backend,
		logger:     opts.Logger,
		prefix:     opts.Prefix,
		version:    opts.SchemaVersion,
		debounce:   opts.Debounce,
		cache:      make(map[string]json.RawMessage),
		validators: make(map[string]Validator),
		subs:       make(map[int]func(Change)),
		timers:     make(map[string]*time.Timer),
		pending:    make(map[string]Change),
	}
}

// Key returns the backend key for a record type.
func (s *Store) Key(typ string) string {
	if s.prefix == "" {
		return typ
	}
	return s.prefix + ":" + typ
}

// SchemaVersion returns the version written into new envelopes.
func (s *Store) SchemaVersion() int {
	return s.version
}

// RegisterValidator sets the validator for a record type.
func (s *Store) RegisterValidator(typ string, v Validator) {
	s.mu.Lock()
	s.validators[typ] = v
	s.mu.Unlock()
}

// SetPublisher sets where committed envelopes are forwarded.
func (s *Store) SetPublisher(p Publisher) {
	s.mu.Lock()
	s.publisher = p
	s.mu.Unlock()
}

func (s *Store) validate(typ string, payload json.RawMessage) error {
	s.mu.RLock()
	v := s.validators[typ]
	s.mu.RUnlock()
	if v == nil {
		return nil
	}
	return v(payload)
}

func (s *Store) evict(types ...string) {
	s.mu.Lock()
	for _, t := range types {
		delete(s.cache, t)
	}
	s.mu.Unlock()
}

// LoadRaw returns the validated payload for typ.
func (s *Store) LoadRaw(typ string) (json.RawMessage, bool) {
	s.mu.RLock()
	cached, ok := s.cache[typ]
	s.mu.RUnlock()
	if ok {
		return cached, true
	}

	data, err := s.backend.Read(s.Key(typ))
	if errors.Is(err, ErrNotFound) {
		return nil, false
	}
	if err != nil {
		s.logger.Error("store read failed", zap.String("type", typ), zap.Error(err))
		s.evict(typ)
		return nil, false
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Error("store envelope corrupt", zap.String("type", typ), zap.Error(err))
		s.evict(typ)
		return nil, false
	}
	if env.Version != s.version {
		s.logger.Warn("store schema version mismatch",
			zap.String("type", typ),
			zap.Int("stored", env.Version),
			zap.Int("current", s.version))
	}
	if env.Type != "" && env.Type != typ {
		s.logger.Warn("store envelope type mismatch", zap.String("type", typ), zap.String("stored", env.Type))
	}
	if err := s.validate(typ, env.Payload); err != nil {
		s.logger.Warn("store validation failed on load", zap.String("type", typ), zap.Error(err))
		s.evict(typ)
		return nil, false
	}

	s.mu.Lock()
	s.cache[typ] = env.Payload
	s.mu.Unlock()
	return env.Payload, true
}

// Load decodes the record for typ into out. It returns false when the record
// is missing, unreadable or invalid.
func (s *Store) Load(typ string, out interface{}) bool {
	raw, ok := s.LoadRaw(typ)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.logger.Warn("store decode failed", zap.String("type", typ), zap.Error(err))
		return false
	}
	return true
}

// LoadAs is Load returning a fresh value.
func LoadAs[T any](s *Store, typ string) (T, bool) {
	var v T
	ok := s.Load(typ, &v)
	return v, ok
}

type prepared struct {
	typ      string
	payload  json.RawMessage
	envelope []byte
}

func (s *Store) prepare(typ string, v interface{}) (prepared, error) {
	if typ == "" {
		return prepared{}, errors.New("empty record type")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return prepared{}, fmt.Errorf("failed to marshal %s: %w", typ, err)
	}
	if err := s.validate(typ, payload); err != nil {
		return prepared{}, fmt.Errorf("%s failed validation: %w", typ, err)
	}
	env, err := json.Marshal(Envelope{
		Timestamp: time.Now().UnixMilli(),
		Version:   s.version,
		Type:      typ,
		Payload:   payload,
	})
	if err != nil {
		return prepared{}, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return prepared{typ: typ, payload: payload, envelope: env}, nil
}

// Save validates and writes one record. Failures are logged and reported as
// false, and the type's cache entry is purged.
func (s *Store) Save(typ string, v interface{}) bool {
	return s.SaveBatch([]Record{{Type: typ, Value: v}})
}

// SaveBatch writes several records in one backend batch. Either every record
// is written or none is.
func (s *Store) SaveBatch(records []Record) bool {
	if len(records) == 0 {
		return true
	}
	types := make([]string, 0, len(records))
	for _, r := range records {
		types = append(types, r.Type)
	}

	preps := make([]prepared, 0, len(records))
	entries := make(map[string][]byte, len(records))
	for _, r := range records {
		p, err := s.prepare(r.Type, r.Value)
		if err != nil {
			s.logger.Warn("store save rejected", zap.String("type", r.Type), zap.Error(err))
			s.evict(types...)
			return false
		}
		preps = append(preps, p)
		entries[s.Key(r.Type)] = p.envelope
	}

	var err error
	if len(entries) == 1 {
		for k, v := range entries {
			err = s.backend.Write(k, v)
		}
	} else {
		err = s.backend.WriteBatch(entries)
	}
	if err != nil {
		s.logger.Error("store write failed", zap.Strings("types", types), zap.Error(err))
		s.evict(types...)
		return false
	}

	s.mu.Lock()
	for _, p := range preps {
		s.cache[p.typ] = p.payload
	}
	pub := s.publisher
	s.mu.Unlock()

	for _, p := range preps {
		s.notify(Change{Type: p.typ, Payload: p.payload})
		if pub != nil {
			if err := pub.Publish(p.typ, p.envelope); err != nil {
				s.logger.Warn("store publish failed", zap.String("type", p.typ), zap.Error(err))
			}
		}
	}
	return true
}

// ApplyExternal adopts an envelope written by another process after
// re-validating it. Invalid envelopes are dropped and leave the cache alone.
func (s *Store) ApplyExternal(typ string, data []byte) bool {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("external record corrupt", zap.String("type", typ), zap.Error(err))
		return false
	}
	if env.Type != typ {
		s.logger.Warn("external record type mismatch", zap.String("type", typ), zap.String("envelope", env.Type))
		return false
	}
	if env.Version != s.version {
		s.logger.Warn("external record schema version mismatch", zap.String("type", typ), zap.Int("version", env.Version))
	}
	if err := s.validate(typ, env.Payload); err != nil {
		s.logger.Warn("external record rejected", zap.String("type", typ), zap.Error(err))
		return false
	}

	s.mu.Lock()
	s.cache[typ] = env.Payload
	s.mu.Unlock()
	s.notify(Change{Type: typ, Payload: env.Payload, External: true})
	return true
}

// Clear deletes one record.
func (s *Store) Clear(typ string) bool {
	s.evict(typ)
	if err := s.backend.Delete(s.Key(typ)); err != nil {
		s.logger.Error("store delete failed", zap.String("type", typ), zap.Error(err))
		return false
	}
	s.notify(Change{Type: typ, Deleted: true})
	return true
}

// ClearAll deletes every record under the store prefix.
func (s *Store) ClearAll() bool {
	prefix := ""
	if s.prefix != "" {
		prefix = s.prefix + ":"
	}
	keys, err := s.backend.Keys(prefix)
	if err != nil {
		s.logger.Error("store key listing failed", zap.Error(err))
		return false
	}

	s.mu.Lock()
	s.cache = make(map[string]json.RawMessage)
	s.mu.Unlock()

	if len(keys) == 0 {
		return true
	}
	if err := s.backend.Delete(keys...); err != nil {
		s.logger.Error("store delete failed", zap.Error(err))
		return false
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.notify(Change{Type: strings.TrimPrefix(k, prefix), Deleted: true})
	}
	return true
}

// Subscribe registers fn for debounced change notifications and returns a
// function that removes it.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) notify(c Change) {
	if s.debounce <= 0 {
		s.deliver(c)
		return
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed {
		return
	}
	s.pending[c.Type] = c
	if _, scheduled := s.timers[c.Type]; scheduled {
		return
	}
	typ := c.Type
	s.timers[typ] = time.AfterFunc(s.debounce, func() { s.fire(typ) })
}

func (s *Store) fire(typ string) {
	s.subMu.Lock()
	c, ok := s.pending[typ]
	delete(s.pending, typ)
	delete(s.timers, typ)
	s.subMu.Unlock()
	if ok {
		s.deliver(c)
	}
}

func (s *Store) deliver(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		s.call(fn, c)
	}
}

func (s *Store) call(fn func(Change), c Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("store subscriber panicked", zap.String("type", c.Type), zap.Any("panic", r))
		}
	}()
	fn(c)
}

// Flush delivers every pending notification now.
func (s *Store) Flush() {
	s.subMu.Lock()
	types := make([]string, 0, len(s.timers))
	for typ, t := range s.timers {
		if t.Stop() {
			types = append(types, typ)
		}
	}
	s.subMu.Unlock()
	for _, typ := range types {
		s.fire(typ)
	}
}

// Close flushes pending notifications and closes the backend.
func (s *Store) Close() error {
	s.Flush()
	s.subMu.Lock()
	s.closed = true
	s.subMu.Unlock()
	return s.backend.Close()
}
