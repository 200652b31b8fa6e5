// Package history keeps finished sweeps in an append-only JSON Lines file so
// later runs can be compared against a baseline.
package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"
	"github.com/tidwall/gjson"

	"github.com/torosent/collbench/internal/metrics"
)

// Latest selects the most recently appended record.
const Latest = "latest"

var (
	// ErrNotFound reports a run reference that matches no record.
	ErrNotFound = errors.New("run not found in history")
	// ErrAmbiguous reports a run ID prefix that matches several records.
	ErrAmbiguous = errors.New("run reference is ambiguous")
)

// NewRunID returns a new lexically sortable run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

// Record is one line of the history file.
type Record struct {
	RunID      string          `json:"run_id"`
	RecordedAt time.Time       `json:"recorded_at"`
	Report     *metrics.Report `json:"report"`
}

// Store is a history file shared between concurrent collbench processes.
// Writers and readers coordinate through an advisory lock file next to it.
type Store struct {
	path string
	lock *flock.Flock
}

func NewStore(path string) *Store {
	return &Store{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the history file path.
func (s *Store) Path() string {
	return s.path
}

// Append writes report as a new record. The report must carry a run ID.
func (s *Store) Append(report *metrics.Report) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("history: report has no run ID")
	}
	line, err := json.Marshal(Record{RunID: report.RunID, RecordedAt: time.Now().UTC(), Report: report})
	if err != nil {
		return fmt.Errorf("history: encode record: %w", err)
	}
	line = append(line, '\n')

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("history: %w", err)
		}
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("history: lock %s: %w", s.lock.Path(), err)
	}
	defer s.lock.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("history: open: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("history: append: %w", err)
	}
	return f.Close()
}

// Lookup returns the report of the record matching ref: Latest, a full run ID
// or a unique run ID prefix.
func (s *Store) Lookup(ref string) (*metrics.Report, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("history: empty run reference")
	}
	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}

	var match []byte
	if strings.EqualFold(ref, Latest) {
		if len(lines) > 0 {
			match = lines[len(lines)-1]
		}
	} else {
		ref = strings.ToUpper(ref)
		matches := 0
		for _, line := range lines {
			id := gjson.GetBytes(line, "run_id").String()
			if id == ref {
				match, matches = line, 1
				break
			}
			if strings.HasPrefix(id, ref) {
				match = line
				matches++
			}
		}
		if matches > 1 {
			return nil, fmt.Errorf("history: %q matches %d runs: %w", ref, matches, ErrAmbiguous)
		}
	}
	if match == nil {
		return nil, fmt.Errorf("history: %q: %w", ref, ErrNotFound)
	}

	raw := gjson.GetBytes(match, "report")
	if !raw.IsObject() {
		return nil, fmt.Errorf("history: record %s has no report", gjson.GetBytes(match, "run_id").String())
	}
	var report metrics.Report
	if err := json.Unmarshal([]byte(raw.Raw), &report); err != nil {
		return nil, fmt.Errorf("history: decode report: %w", err)
	}
	return &report, nil
}

// Summary is a short description of one stored run.
type Summary struct {
	RunID        string
	RecordedAt   time.Time
	Benchmark    string
	Distribution string
	Processes    int
	Sizes        int
}

// List summarizes every stored run in file order.
func (s *Store) List() ([]Summary, error) {
	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(lines))
	for _, line := range lines {
		fields := gjson.GetManyBytes(line,
			"run_id", "recorded_at", "report.benchmark", "report.distribution", "report.processes", "report.sizes.#")
		out = append(out, Summary{
			RunID:        fields[0].String(),
			RecordedAt:   fields[1].Time(),
			Benchmark:    fields[2].String(),
			Distribution: fields[3].String(),
			Processes:    int(fields[4].Int()),
			Sizes:        int(fields[5].Int()),
		})
	}
	return out, nil
}

// readLines returns the valid JSON lines of the history file under a shared
// lock. A missing file holds no records.
func (s *Store) readLines() ([][]byte, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err := s.lock.RLock(); err != nil {
		return nil, fmt.Errorf("history: lock %s: %w", s.lock.Path(), err)
	}
	defer s.lock.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	defer f.Close()

	var lines [][]byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 64<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || !gjson.ValidBytes(line) {
			continue
		}
		lines = append(lines, bytes.Clone(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("history: read: %w", err)
	}
	return lines, nil
}
