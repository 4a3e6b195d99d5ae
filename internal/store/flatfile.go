package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mtorres-dev/apptsync/internal/model"
)

const snapshotLayout = "20060102-150405.000"

// fileDocument is the on-disk layout of the fallback store: one JSON document
// holding every collection, as the original system wrote it.
type fileDocument struct {
	Users        []model.User        `json:"users"`
	Customers    []model.Customer    `json:"customers"`
	Appointments []model.Appointment `json:"appointments"`
	Services     []model.Service     `json:"services"`
	LastUpdated  time.Time           `json:"lastUpdated"`
}

// FileStore serves the same CRUD surface as the primary from a single JSON
// file. Every write is a read-modify-write of the whole document under one
// mutex, which makes the file a serialization point rather than a
// concurrent-safe store. Each write also emits an immutable timestamped
// snapshot for audit and recovery.
type FileStore struct {
	mu           sync.Mutex
	path         string
	snapshotDir  string
	settingsPath string
	now          func() time.Time
}

// NewFileStore opens (or creates) the fallback document. A directory or file
// that cannot be created is an initialization error; callers must not proceed
// without the fallback.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "snapshots"), 0o755); err != nil {
		return nil, fmt.Errorf("fallback store: %w", err)
	}
	s := &FileStore{
		path:         filepath.Join(dir, "db.json"),
		snapshotDir:  filepath.Join(dir, "snapshots"),
		settingsPath: filepath.Join(dir, "settings.json"),
		now:          time.Now,
	}
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		if err := s.write(fileDocument{LastUpdated: s.now()}, false); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("fallback store: %w", err)
	}
	if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return model.Appointment{}, err
	}
	for _, a := range doc.Appointments {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Appointment{}, ErrNotFound
}

func (s *FileStore) ListAppointments(ctx context.Context) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.Appointments, nil
}

func (s *FileStore) PutAppointment(ctx context.Context, appt model.Appointment) error {
	appt = appt.WithoutSyncFlags()
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	replaced := false
	for i, a := range doc.Appointments {
		if a.ID == appt.ID {
			doc.Appointments[i] = appt
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Appointments = append(doc.Appointments, appt)
	}
	return s.write(doc, true)
}

func (s *FileStore) DeleteAppointment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	for i, a := range doc.Appointments {
		if a.ID == id {
			doc.Appointments = append(doc.Appointments[:i], doc.Appointments[i+1:]...)
			return s.write(doc, true)
		}
	}
	return ErrNotFound
}

func (s *FileStore) GetCustomer(ctx context.Context, id string) (model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return model.Customer{}, err
	}
	for _, c := range doc.Customers {
		if c.ID == id {
			return c, nil
		}
	}
	return model.Customer{}, ErrNotFound
}

func (s *FileStore) GetService(ctx context.Context, id string) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return model.Service{}, err
	}
	for _, svc := range doc.Services {
		if svc.ID == id {
			return svc, nil
		}
	}
	return model.Service{}, ErrNotFound
}

// Settings live in a sibling file: the main document's layout is fixed by the
// original system and does not carry them.
func (s *FileStore) SaveSettings(ctx context.Context, settings model.BusinessSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.settingsPath, raw, 0o644)
}

func (s *FileStore) LoadSettings(ctx context.Context) (model.BusinessSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.settingsPath)
	if errors.Is(err, os.ErrNotExist) {
		return model.BusinessSettings{}, ErrNotFound
	}
	if err != nil {
		return model.BusinessSettings{}, err
	}
	var settings model.BusinessSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return model.BusinessSettings{}, fmt.Errorf("fallback store: corrupt settings: %w", err)
	}
	return settings, nil
}

// PruneSnapshots keeps the newest keep snapshots and removes the rest.
// Nothing schedules this; snapshots accumulate until an operator calls it.
func (s *FileStore) PruneSnapshots(keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.snapshotDir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if keep < 0 || len(names) <= keep {
		return nil
	}
	// Snapshot names embed a sortable timestamp.
	sort.Strings(names)
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(s.snapshotDir, name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStore) read() (fileDocument, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fileDocument{}, fmt.Errorf("fallback store: %w", err)
	}
	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fileDocument{}, fmt.Errorf("fallback store: corrupt document: %w", err)
	}
	return doc, nil
}

func (s *FileStore) write(doc fileDocument, snapshot bool) error {
	doc.LastUpdated = s.now()
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("fallback store: %w", err)
	}
	if snapshot {
		name := "backup-" + doc.LastUpdated.UTC().Format(snapshotLayout) + ".json"
		if err := os.WriteFile(filepath.Join(s.snapshotDir, name), raw, 0o644); err != nil {
			return fmt.Errorf("fallback store: snapshot: %w", err)
		}
	}
	return nil
}

var _ Store = (*FileStore)(nil)
