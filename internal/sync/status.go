package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	stdsync "sync"
	"time"
)

type Stats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

// Status is the persisted outcome of the most recent reconcile run, the only
// place sync results are observable from.
type Status struct {
	JobID            string    `json:"jobId,omitempty"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	Success          bool      `json:"success"`
	MongoDBConnected bool      `json:"mongoDBConnected"`
	SyncPerformed    bool      `json:"syncPerformed"`
	Stats            Stats     `json:"stats"`
}

var ErrNoStatus = errors.New("sync: no status recorded yet")

type StatusStore struct {
	mu   stdsync.Mutex
	path string
}

func NewStatusStore(dir string) *StatusStore {
	return &StatusStore{path: filepath.Join(dir, "sync-status.json")}
}

func (s *StatusStore) Write(status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o644)
}

func (s *StatusStore) Read() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Status{}, ErrNoStatus
	}
	if err != nil {
		return Status{}, err
	}
	var status Status
	if err := json.Unmarshal(raw, &status); err != nil {
		return Status{}, fmt.Errorf("sync: corrupt status file: %w", err)
	}
	return status, nil
}
