package storage_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AaronLay10/ProjectBoard/internal/storage"
	"github.com/AaronLay10/ProjectBoard/internal/storage/memory"
)

type positions map[string]string

func validPositions(raw json.RawMessage) error {
	var p positions
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	for player, space := range p {
		if space == "" {
			return errors.New("empty position for " + player)
		}
	}
	return nil
}

// failingBackend wraps a memory backend and fails writes while fail is set.
type failingBackend struct {
	*memory.Backend
	mu   sync.Mutex
	fail bool
}

func (f *failingBackend) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *failingBackend) Write(key string, data []byte) error {
	return f.WriteBatch(map[string][]byte{key: data})
}

func (f *failingBackend) WriteBatch(entries map[string][]byte) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.Backend.WriteBatch(entries)
}

func newStore(b storage.Backend) *storage.Store {
	s := storage.New(b, storage.Options{Prefix: "test", SchemaVersion: 1})
	s.RegisterValidator(storage.TypeProgressState, validPositions)
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newStore(memory.New(0))
	want := positions{"Alice": "OWNER-SCOPE-INITIATION"}
	if !s.Save(storage.TypeProgressState, want) {
		t.Fatal("save failed")
	}
	got, ok := storage.LoadAs[positions](s, storage.TypeProgressState)
	if !ok || got["Alice"] != "OWNER-SCOPE-INITIATION" {
		t.Errorf("got %v (%v)", got, ok)
	}
	if _, ok := storage.LoadAs[positions](s, storage.TypeScores); ok {
		t.Error("expected missing record to load false")
	}
}

func TestLoadReadsEnvelopeFromBackend(t *testing.T) {
	b := memory.New(0)
	newStore(b).Save(storage.TypeProgressState, positions{"Bob": "FINISH"})

	raw, err := b.Read("test:progressState")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env storage.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if env.Type != storage.TypeProgressState || env.Version != 1 || env.Timestamp == 0 {
		t.Errorf("unexpected envelope: %+v", env)
	}

	// A fresh store has an empty cache and must read through the backend.
	fresh := newStore(b)
	got, ok := storage.LoadAs[positions](fresh, storage.TypeProgressState)
	if !ok || got["Bob"] != "FINISH" {
		t.Errorf("got %v (%v)", got, ok)
	}
}

func TestVersionMismatchStillLoads(t *testing.T) {
	b := memory.New(0)
	old := storage.New(b, storage.Options{Prefix: "test", SchemaVersion: 1})
	old.Save(storage.TypeScores, map[string]int{"Alice": 10})

	current := storage.New(b, storage.Options{Prefix: "test", SchemaVersion: 2})
	got, ok := storage.LoadAs[map[string]int](current, storage.TypeScores)
	if !ok || got["Alice"] != 10 {
		t.Errorf("expected soft migration read, got %v (%v)", got, ok)
	}
}

func TestValidationFailureReturnsFalse(t *testing.T) {
	s := newStore(memory.New(0))
	if !s.Save(storage.TypeProgressState, positions{"Alice": "A"}) {
		t.Fatal("save failed")
	}
	if s.Save(storage.TypeProgressState, positions{"Alice": ""}) {
		t.Error("expected invalid payload to be rejected")
	}
	// Evicted from cache, the backend still holds the last valid write.
	got, ok := storage.LoadAs[positions](s, storage.TypeProgressState)
	if !ok || got["Alice"] != "A" {
		t.Errorf("expected last valid value, got %v (%v)", got, ok)
	}
}

func TestInvalidStoredPayloadLoadsNull(t *testing.T) {
	b := memory.New(0)
	b.Write("test:progressState", []byte(`{"timestamp":1,"version":1,"type":"progressState","payload":{"Alice":""}}`))
	s := newStore(b)
	if _, ok := storage.LoadAs[positions](s, storage.TypeProgressState); ok {
		t.Error("expected validator to reject stored payload")
	}
	b.Write("test:progressState", []byte(`not json`))
	if _, ok := storage.LoadAs[positions](s, storage.TypeProgressState); ok {
		t.Error("expected corrupt envelope to load false")
	}
}

func TestWriteFailurePurgesCache(t *testing.T) {
	fb := &failingBackend{Backend: memory.New(0)}
	s := newStore(fb)
	s.Save(storage.TypeProgressState, positions{"Alice": "A"})

	fb.setFail(true)
	if s.Save(storage.TypeProgressState, positions{"Alice": "B"}) {
		t.Fatal("expected save to fail")
	}
	fb.setFail(false)

	got, ok := storage.LoadAs[positions](s, storage.TypeProgressState)
	if !ok || got["Alice"] != "A" {
		t.Errorf("expected re-read of persisted value A, got %v (%v)", got, ok)
	}
}

func TestSaveBatchAllOrNothing(t *testing.T) {
	fb := &failingBackend{Backend: memory.New(0)}
	s := newStore(fb)

	ok := s.SaveBatch([]storage.Record{
		{Type: storage.TypeProgressState, Value: positions{"Alice": "A"}},
		{Type: storage.TypeScores, Value: map[string]int{"Alice": 1}},
	})
	if !ok {
		t.Fatal("batch failed")
	}

	// One invalid record rejects the whole batch before any write.
	ok = s.SaveBatch([]storage.Record{
		{Type: storage.TypeScores, Value: map[string]int{"Alice": 2}},
		{Type: storage.TypeProgressState, Value: positions{"Alice": ""}},
	})
	if ok {
		t.Fatal("expected batch with invalid record to fail")
	}
	scores, _ := storage.LoadAs[map[string]int](s, storage.TypeScores)
	if scores["Alice"] != 1 {
		t.Errorf("expected scores untouched, got %v", scores)
	}

	fb.setFail(true)
	ok = s.SaveBatch([]storage.Record{
		{Type: storage.TypeProgressState, Value: positions{"Alice": "B"}},
		{Type: storage.TypeScores, Value: map[string]int{"Alice": 3}},
	})
	fb.setFail(false)
	if ok {
		t.Fatal("expected batch to fail")
	}
	pos, _ := storage.LoadAs[positions](s, storage.TypeProgressState)
	scores, _ = storage.LoadAs[map[string]int](s, storage.TypeScores)
	if pos["Alice"] != "A" || scores["Alice"] != 1 {
		t.Errorf("expected previous values after failed batch, got %v %v", pos, scores)
	}
}

func TestQuotaExceeded(t *testing.T) {
	s := newStore(memory.New(64))
	big := positions{"Alice": "OWNER-SCOPE-INITIATION-WITH-A-VERY-LONG-NAME-THAT-OVERFLOWS"}
	if s.Save(storage.TypeProgressState, big) {
		t.Error("expected quota failure to return false")
	}
}

func TestDebouncedNotificationLastWriteWins(t *testing.T) {
	s := storage.New(memory.New(0), storage.Options{Debounce: 20 * time.Millisecond})

	var mu sync.Mutex
	var changes []storage.Change
	unsubscribe := s.Subscribe(func(c storage.Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})
	defer unsubscribe()

	for i := 1; i <= 5; i++ {
		s.Save(storage.TypeScores, map[string]int{"Alice": i})
	}
	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 1 {
		t.Fatalf("expected burst collapsed to 1 notification, got %d", len(changes))
	}
	var got map[string]int
	json.Unmarshal(changes[0].Payload, &got)
	if got["Alice"] != 5 {
		t.Errorf("expected final value 5, got %v", got)
	}
}

func TestSubscriberPanicIsolated(t *testing.T) {
	s := storage.New(memory.New(0), storage.Options{})
	called := 0
	s.Subscribe(func(storage.Change) { panic("bad observer") })
	s.Subscribe(func(storage.Change) { called++ })

	s.Save(storage.TypeScores, map[string]int{})
	if called != 1 {
		t.Errorf("expected healthy subscriber called once, got %d", called)
	}
}

func TestUnsubscribe(t *testing.T) {
	s := storage.New(memory.New(0), storage.Options{})
	called := 0
	unsubscribe := s.Subscribe(func(storage.Change) { called++ })
	unsubscribe()
	unsubscribe()
	s.Save(storage.TypeScores, map[string]int{})
	if called != 0 {
		t.Errorf("expected no calls after unsubscribe, got %d", called)
	}
}

func TestApplyExternalRevalidates(t *testing.T) {
	s := newStore(memory.New(0))
	var external []storage.Change
	s.Subscribe(func(c storage.Change) {
		if c.External {
			external = append(external, c)
		}
	})

	bad := []byte(`{"timestamp":1,"version":1,"type":"progressState","payload":{"Alice":""}}`)
	if s.ApplyExternal(storage.TypeProgressState, bad) {
		t.Error("expected invalid external payload to be rejected")
	}
	if s.ApplyExternal(storage.TypeScores, bad) {
		t.Error("expected type mismatch to be rejected")
	}

	good := []byte(`{"timestamp":2,"version":1,"type":"progressState","payload":{"Alice":"ARCH-INITIATION"}}`)
	if !s.ApplyExternal(storage.TypeProgressState, good) {
		t.Fatal("expected valid external payload to be adopted")
	}
	got, _ := storage.LoadAs[positions](s, storage.TypeProgressState)
	if got["Alice"] != "ARCH-INITIATION" {
		t.Errorf("expected adopted value, got %v", got)
	}
	if len(external) != 1 {
		t.Errorf("expected one external notification, got %d", len(external))
	}
}

type recordingPublisher struct {
	types []string
}

func (p *recordingPublisher) Publish(typ string, envelope []byte) error {
	p.types = append(p.types, typ)
	return nil
}

func TestPublisherReceivesCommittedRecords(t *testing.T) {
	s := newStore(memory.New(0))
	pub := &recordingPublisher{}
	s.SetPublisher(pub)

	s.Save(storage.TypeProgressState, positions{"Alice": ""})
	s.Save(storage.TypeScores, map[string]int{"Alice": 1})
	if len(pub.types) != 1 || pub.types[0] != storage.TypeScores {
		t.Errorf("expected only the committed record published, got %v", pub.types)
	}
}

func TestClearAndClearAll(t *testing.T) {
	b := memory.New(0)
	s := newStore(b)
	b.Write("other:scores", []byte(`{}`))
	s.Save(storage.TypeScores, map[string]int{"Alice": 1})
	s.Save(storage.TypeProgressState, positions{"Alice": "A"})

	if !s.Clear(storage.TypeScores) {
		t.Fatal("clear failed")
	}
	if _, ok := storage.LoadAs[map[string]int](s, storage.TypeScores); ok {
		t.Error("expected cleared record to be gone")
	}

	if !s.ClearAll() {
		t.Fatal("clear all failed")
	}
	if _, ok := storage.LoadAs[positions](s, storage.TypeProgressState); ok {
		t.Error("expected all records cleared")
	}
	if _, err := b.Read("other:scores"); err != nil {
		t.Error("expected keys outside the prefix to survive")
	}
}
