package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/market-scout/internal/models"
)

// RunStore keeps analysis runs in memory and, when filename is set, mirrors
// them to a JSON file. It backs the job manager when no database is
// configured.
type RunStore struct {
	mu       sync.RWMutex
	runs     map[string]*models.Run
	filename string
}

func NewRunStore(filename string) (*RunStore, error) {
	s := &RunStore{
		runs:     make(map[string]*models.Run),
		filename: filename,
	}

	if filename != "" {
		if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
			return nil, err
		}
		if err := s.Load(); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	return s, nil
}

func (s *RunStore) CreateRun(ctx context.Context, keyword string) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &models.Run{
		ID:        uuid.New().String(),
		Keyword:   keyword,
		Status:    models.RunPending,
		CreatedAt: time.Now().UTC(),
	}
	s.runs[run.ID] = run
	return clone(run), s.save()
}

func (s *RunStore) MarkRunning(ctx context.Context, id string) error {
	return s.update(id, func(run *models.Run) {
		now := time.Now().UTC()
		run.Status = models.RunRunning
		run.StartedAt = &now
	})
}

func (s *RunStore) CompleteRun(ctx context.Context, id string, report models.AnalysisReport, results []models.SourceResult) error {
	return s.update(id, func(run *models.Run) {
		now := time.Now().UTC()
		run.Status = models.RunCompleted
		run.Report = &report
		run.CompletedAt = &now
	})
}

func (s *RunStore) FailRun(ctx context.Context, id string, cause error) error {
	return s.update(id, func(run *models.Run) {
		now := time.Now().UTC()
		run.Status = models.RunFailed
		run.Error = cause.Error()
		run.CompletedAt = &now
	})
}

func (s *RunStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
	}
	return clone(run), nil
}

// ListRuns returns the newest runs first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*models.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, clone(run))
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *RunStore) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int)
	for _, run := range s.runs {
		stats[string(run.Status)]++
	}
	stats["total"] = len(s.runs)
	return stats
}

func (s *RunStore) update(id string, fn func(run *models.Run)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
	}
	fn(run)
	return s.save()
}

func (s *RunStore) save() error {
	if s.filename == "" {
		return nil
	}

	data, err := json.MarshalIndent(s.runs, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.filename, data)
}

func (s *RunStore) Load() error {
	data, err := os.ReadFile(s.filename)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Unmarshal(data, &s.runs)
}

func clone(run *models.Run) *models.Run {
	c := *run
	return &c
}

// writeAtomic writes to a temp file first and renames it into place, so
// readers never see a partial file.
func writeAtomic(filename string, data []byte) error {
	tmpFile := filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpFile, filename)
}
