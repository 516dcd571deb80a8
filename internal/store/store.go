package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store manages persistence of run and probe records and per-run logs.
type Store struct {
	root string
	mu   sync.Mutex
}

// New creates a Store rooted at the given directory (typically .simmatrix/).
func New(root string) *Store {
	return &Store{root: root}
}

// NewRunID returns a fresh identifier for a run.
func NewRunID() string {
	return uuid.NewString()
}

func (s *Store) historyDir() string {
	return filepath.Join(s.root, "history")
}

func (s *Store) logsDir() string {
	return filepath.Join(s.root, "logs")
}

// AddRun appends a run record.
func (s *Store) AddRun(r RunRecord) error {
	return s.appendRecord("runs.json", r)
}

// AddProbe appends a probe record.
func (s *Store) AddProbe(r ProbeRecord) error {
	return s.appendRecord("probes.json", r)
}

// Runs returns all run records, oldest first.
func (s *Store) Runs() ([]RunRecord, error) {
	var records []RunRecord
	err := s.loadRecords("runs.json", &records)
	return records, err
}

// Probes returns all probe records, oldest first.
func (s *Store) Probes() ([]ProbeRecord, error) {
	var records []ProbeRecord
	err := s.loadRecords("probes.json", &records)
	return records, err
}

// Run returns the record whose ID starts with prefix.
func (s *Store) Run(prefix string) (RunRecord, bool, error) {
	runs, err := s.Runs()
	if err != nil {
		return RunRecord{}, false, err
	}
	for i := len(runs) - 1; i >= 0; i-- {
		if prefix != "" && strings.HasPrefix(runs[i].ID, prefix) {
			return runs[i], true, nil
		}
	}
	return RunRecord{}, false, nil
}

// RunLogsDir returns the log directory for a run, creating it if needed.
func (s *Store) RunLogsDir(runID string) (string, error) {
	dir := filepath.Join(s.logsDir(), runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func (s *Store) appendRecord(filename string, record any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.historyDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(dir, filename)

	// Read existing records
	var records []json.RawMessage
	if data, err := os.ReadFile(path); err == nil {
		json.Unmarshal(data, &records)
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	records = append(records, raw)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) loadRecords(filename string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.historyDir(), filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, dest)
}
