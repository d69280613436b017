package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/doombubbles/time-machine/internal/core/domain"
	"github.com/doombubbles/time-machine/internal/storage/codec"
)

// memStore is an in-memory SnapshotStore.
type memStore struct {
	mu       sync.Mutex
	data     map[string]map[int]*domain.Record
	failFor  map[string]error
	listErr  error
	sizeFunc func() int64
	sizeErr  error
}

func newMemStore() *memStore {
	return &memStore{
		data:    make(map[string]map[int]*domain.Record),
		failFor: make(map[string]error),
	}
}

func (s *memStore) Put(_ context.Context, sessionID string, round int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor[sessionID]; err != nil {
		return err
	}
	if s.data[sessionID] == nil {
		s.data[sessionID] = make(map[int]*domain.Record)
	}
	s.data[sessionID][round] = &domain.Record{
		SessionID: sessionID,
		Round:     round,
		Format:    domain.FormatCompressedV1,
		Data:      append([]byte(nil), data...),
	}
	return nil
}

// putRaw stores a record with an explicit format.
func (s *memStore) putRaw(sessionID string, round int, format domain.Format, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[sessionID] == nil {
		s.data[sessionID] = make(map[int]*domain.Record)
	}
	s.data[sessionID][round] = &domain.Record{SessionID: sessionID, Round: round, Format: format, Data: data}
}

func (s *memStore) Get(_ context.Context, sessionID string, round int) (*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[sessionID][round]
	if !ok {
		return nil, domain.ErrSnapshotNotFound.WithDetailsf("%s/%d", sessionID, round)
	}
	return rec, nil
}

func (s *memStore) Exists(_ context.Context, sessionID string, round int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[sessionID][round]
	return ok, nil
}

func (s *memStore) ListRounds(_ context.Context, sessionID string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rounds := []int{}
	for r := range s.data[sessionID] {
		rounds = append(rounds, r)
	}
	sort.Ints(rounds)
	return rounds, nil
}

func (s *memStore) ListSessions(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	ids := []string{}
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor[sessionID]; err != nil {
		return err
	}
	delete(s.data, sessionID)
	return nil
}

func (s *memStore) WipeAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]map[int]*domain.Record)
	return nil
}

func (s *memStore) TotalSizeBytes(context.Context) (int64, error) {
	s.mu.Lock()
	if s.sizeErr != nil {
		s.mu.Unlock()
		return 0, s.sizeErr
	}
	if fn := s.sizeFunc; fn != nil {
		s.mu.Unlock()
		return fn(), nil
	}
	defer s.mu.Unlock()
	var n int64
	for _, rounds := range s.data {
		for _, rec := range rounds {
			n += int64(len(rec.Data))
		}
	}
	return n, nil
}

func (s *memStore) sessions() []string {
	ids, _ := s.ListSessions(context.Background())
	return ids
}

// recordingNotifier captures warnings.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Warn(_ context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

// recordingMetrics captures metric calls.
type recordingMetrics struct {
	mu        sync.Mutex
	written   int
	bytes     int
	errors    int
	outcomes  []string
	gcResults []string
	deleted   int
	failed    int
	size      int64
}

func (m *recordingMetrics) RecordSnapshotWritten(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written++
	m.bytes += n
}

func (m *recordingMetrics) IncSnapshotWriteError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

func (m *recordingMetrics) RecordRestore(outcome string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) RecordGCRun(result string, deleted, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gcResults = append(m.gcResults, result)
	m.deleted += deleted
	m.failed += failed
}

func (m *recordingMetrics) SetStoreSize(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.size = bytes
}

func (m *recordingMetrics) lastOutcome() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.outcomes) == 0 {
		return ""
	}
	return m.outcomes[len(m.outcomes)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCodec(t *testing.T) *codec.Codec {
	t.Helper()
	c, err := codec.New()
	if err != nil {
		t.Fatalf("codec.New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// storeSnapshot encodes payload and stores it under (sessionID, round).
func storeSnapshot(t *testing.T, store *memStore, c *codec.Codec, sessionID string, round int, payload string, meta map[string]string) {
	t.Helper()
	data, err := c.Encode([]byte(payload), meta)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if err := store.Put(context.Background(), sessionID, round, data); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
}
