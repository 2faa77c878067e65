package purchase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// SnapshotKey is the key the record collection is persisted under
	SnapshotKey = "coffee-records-storage"
	// SnapshotVersion tags the snapshot schema; any other version is discarded on load
	SnapshotVersion = 1
)

// snapshot is the persisted form of the whole collection
type snapshot struct {
	Records []PurchaseRecord `json:"records"`
	Version int              `json:"version"`
}

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDv4 IDs
type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Store is the ordered, persisted collection of purchase records.
// Each operation is atomic with respect to the others.
type Store struct {
	mu          sync.RWMutex
	records     []PurchaseRecord
	issued      map[string]struct{}
	blobs       BlobStore
	idGenerator IDGenerator
	timeSource  TimeSource
	logger      *slog.Logger
}

// StoreOption customizes a Store
type StoreOption func(*Store)

// WithIDGenerator replaces the UUID generator
func WithIDGenerator(g IDGenerator) StoreOption {
	return func(s *Store) { s.idGenerator = g }
}

// WithTimeSource replaces the wall clock
func WithTimeSource(t TimeSource) StoreOption {
	return func(s *Store) { s.timeSource = t }
}

// WithLogger sets the store's logger
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// OpenStore loads the persisted snapshot from blobs. A missing, corrupt or
// version-mismatched snapshot starts an empty collection; only a failing
// BlobStore is reported as an error.
func OpenStore(blobs BlobStore, opts ...StoreOption) (*Store, error) {
	s := &Store{
		blobs:       blobs,
		issued:      make(map[string]struct{}),
		idGenerator: uuidGenerator{},
		timeSource:  defaultTimeSource{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := blobs.Load(SnapshotKey)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	s.records = s.decodeSnapshot(data)
	for _, r := range s.records {
		s.issued[r.ID] = struct{}{}
	}
	return s, nil
}

func (s *Store) decodeSnapshot(data []byte) []PurchaseRecord {
	if len(data) == 0 {
		return []PurchaseRecord{}
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("Discarding corrupt snapshot", "key", SnapshotKey, "error", err)
		return []PurchaseRecord{}
	}
	if snap.Version != SnapshotVersion {
		s.logger.Warn("Discarding snapshot with unexpected version",
			"key", SnapshotKey,
			"version", snap.Version,
			"expected", SnapshotVersion,
		)
		return []PurchaseRecord{}
	}
	if snap.Records == nil {
		return []PurchaseRecord{}
	}
	return snap.Records
}

// persist writes records as the current snapshot. Callers hold s.mu.
func (s *Store) persist(records []PurchaseRecord) error {
	data, err := json.Marshal(snapshot{Records: records, Version: SnapshotVersion})
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := s.blobs.Save(SnapshotKey, data); err != nil {
		s.logger.Error("Failed to persist snapshot", "records", len(records), "error", err)
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// nextID returns an ID that has never been issued for this collection
func (s *Store) nextID() string {
	for {
		id := s.idGenerator.Generate()
		if _, taken := s.issued[id]; !taken && id != "" {
			return id
		}
	}
}

// Create assigns an ID and creation time, appends the record and persists the
// collection. Business rules such as non-empty shop are not checked here.
func (s *Store) Create(in RecordInput) (PurchaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := PurchaseRecord{
		ID:        s.nextID(),
		CreatedAt: s.timeSource.Now(),
		Date:      in.Date,
		Shop:      in.Shop,
		Name:      in.Name,
		Price:     in.Price,
		Capacity:  in.Capacity,
		Flavor:    in.Flavor,
		CupSize:   in.CupSize,
		Notes:     in.Notes,
		ImageURL:  in.ImageURL,
	}

	next := make([]PurchaseRecord, len(s.records), len(s.records)+1)
	copy(next, s.records)
	next = append(next, record)
	if err := s.persist(next); err != nil {
		return PurchaseRecord{}, err
	}

	s.records = next
	s.issued[record.ID] = struct{}{}
	return record, nil
}

// Update merges patch into the record with the given ID. It reports false,
// without error, when no record matches.
func (s *Store) Update(id string, patch RecordPatch) (PurchaseRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return PurchaseRecord{}, false, nil
	}

	next := make([]PurchaseRecord, len(s.records))
	copy(next, s.records)
	patch.apply(&next[idx])
	if err := s.persist(next); err != nil {
		return PurchaseRecord{}, false, err
	}

	s.records = next
	return next[idx], true, nil
}

// Delete removes the record with the given ID. It reports false, without
// error, when no record matches.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return false, nil
	}

	next := make([]PurchaseRecord, 0, len(s.records)-1)
	next = append(next, s.records[:idx]...)
	next = append(next, s.records[idx+1:]...)
	if err := s.persist(next); err != nil {
		return false, err
	}

	s.records = next
	return true, nil
}

// Get returns the record with the given ID
func (s *Store) Get(id string) (PurchaseRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return PurchaseRecord{}, false
	}
	return s.records[idx], true
}

// Records returns a copy of the collection in insertion order
func (s *Store) Records() []PurchaseRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PurchaseRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Close closes the underlying BlobStore
func (s *Store) Close() error {
	return s.blobs.Close()
}

func (s *Store) indexOf(id string) int {
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}
