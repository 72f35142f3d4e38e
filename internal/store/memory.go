package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"famcal/internal/config"
	appLog "famcal/internal/log"
	"famcal/internal/model"
)

// snapshotFile is the on-disk shape of a MemoryStore.
type snapshotFile struct {
	Version    int               `json:"version"`
	SavedAt    time.Time         `json:"saved_at"`
	Events     []model.Event     `json:"events"`
	Exceptions []model.Exception `json:"exceptions"`
}

const snapshotVersion = 1

// MemoryStore keeps everything in process memory. When constructed with a
// path, Flush writes a JSON snapshot there atomically and OpenMemoryStore
// reads it back on startup.
type MemoryStore struct {
	mu         sync.RWMutex
	path       string
	events     []model.Event
	exceptions []model.Exception
	dirty      bool

	now func() time.Time
}

// NewMemoryStore returns an empty store without file persistence.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// OpenMemoryStore returns a store persisted at path. A missing file yields an
// empty store; the file is created on the first Flush.
func OpenMemoryStore(path string) (*MemoryStore, error) {
	s := &MemoryStore{path: path, now: time.Now}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			appLog.Info("store: no snapshot yet, starting empty", "path", path)
			return s, nil
		}
		return nil, err
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	s.events = snap.Events
	s.exceptions = snap.Exceptions

	appLog.Info("store: snapshot loaded",
		"path", path,
		"events", len(s.events),
		"exceptions", len(s.exceptions),
	)
	return s, nil
}

// Dirty reports whether there are changes not yet flushed to disk.
func (s *MemoryStore) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Flush writes the snapshot file if the store has a path and unsaved changes.
func (s *MemoryStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" || !s.dirty {
		return nil
	}

	snap := snapshotFile{
		Version:    snapshotVersion,
		SavedAt:    s.now().UTC(),
		Events:     s.events,
		Exceptions: s.exceptions,
	}
	if snap.Events == nil {
		snap.Events = []model.Event{}
	}
	if snap.Exceptions == nil {
		snap.Exceptions = []model.Exception{}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := config.WriteFileAtomic(s.path, data, ".famcal-data-*.tmp"); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	s.dirty = false

	appLog.Debug("store: snapshot flushed", "path", s.path, "events", len(s.events))
	return nil
}

// Close flushes pending changes.
func (s *MemoryStore) Close() error {
	return s.Flush()
}

func (s *MemoryStore) ListEvents(_ context.Context) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEvents(s.events), nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id string) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.eventIndex(id)
	if i < 0 {
		return model.Event{}, ErrNotFound
	}
	return s.events[i].Clone(), nil
}

func (s *MemoryStore) CreateEvent(_ context.Context, ev model.Event) (model.Event, error) {
	id, err := newID(eventIDPrefix)
	if err != nil {
		return model.Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	stored := ev.Clone()
	stored.ID = id
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.events = append(s.events, stored)
	s.dirty = true
	return stored.Clone(), nil
}

func (s *MemoryStore) UpdateEvent(_ context.Context, ev model.Event) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.eventIndex(ev.ID)
	if i < 0 {
		return model.Event{}, ErrNotFound
	}

	stored := ev.Clone()
	stored.CreatedAt = s.events[i].CreatedAt
	stored.UpdatedAt = s.now().UTC()
	s.events[i] = stored
	s.dirty = true
	return stored.Clone(), nil
}

func (s *MemoryStore) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.eventIndex(id)
	if i < 0 {
		return ErrNotFound
	}
	s.events = append(s.events[:i], s.events[i+1:]...)

	// Cascade.
	kept := s.exceptions[:0]
	for _, ex := range s.exceptions {
		if ex.EventID != id {
			kept = append(kept, ex)
		}
	}
	clear(s.exceptions[len(kept):])
	s.exceptions = kept
	s.dirty = true
	return nil
}

func (s *MemoryStore) ListExceptions(_ context.Context, eventID string) ([]model.Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Exception, 0)
	for _, ex := range s.exceptions {
		if eventID == "" || ex.EventID == eventID {
			out = append(out, ex.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateException(_ context.Context, ex model.Exception) (model.Exception, error) {
	id, err := newID(exceptionIDPrefix)
	if err != nil {
		return model.Exception{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eventIndex(ex.EventID) < 0 {
		return model.Exception{}, ErrNotFound
	}
	for _, existing := range s.exceptions {
		if existing.EventID == ex.EventID && existing.Date.Equal(ex.Date) {
			return model.Exception{}, ErrDuplicateException
		}
	}

	stored := ex.Clone()
	stored.ID = id
	s.exceptions = append(s.exceptions, stored)
	s.dirty = true
	return stored.Clone(), nil
}

func (s *MemoryStore) DeleteException(_ context.Context, eventID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, ex := range s.exceptions {
		if ex.ID == id && ex.EventID == eventID {
			s.exceptions = append(s.exceptions[:i], s.exceptions[i+1:]...)
			s.dirty = true
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) Snapshot(_ context.Context) ([]model.Event, []model.Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exceptions := make([]model.Exception, len(s.exceptions))
	for i, ex := range s.exceptions {
		exceptions[i] = ex.Clone()
	}
	return cloneEvents(s.events), exceptions, nil
}

// eventIndex must be called with s.mu held.
func (s *MemoryStore) eventIndex(id string) int {
	for i := range s.events {
		if s.events[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneEvents(in []model.Event) []model.Event {
	out := make([]model.Event, len(in))
	for i, ev := range in {
		out[i] = ev.Clone()
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
