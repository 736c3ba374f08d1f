package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
	"SigPull/pkg/cache"
)

// FileLearnerStore keeps the learner state as one JSON document on disk.
// Saves go through a temp file and a rename so a crash never leaves a torn file.
type FileLearnerStore struct {
	path string
	mu   sync.Mutex
}

func NewFileLearnerStore(path string) *FileLearnerStore {
	return &FileLearnerStore{path: path}
}

func (s *FileLearnerStore) Load(_ context.Context) (models.LearnerState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return models.LearnerState{}, false, nil
	}
	if err != nil {
		return models.LearnerState{}, false, fmt.Errorf("read learner state: %w", err)
	}
	var st models.LearnerState
	if err := json.Unmarshal(b, &st); err != nil {
		return models.LearnerState{}, false, fmt.Errorf("decode learner state %s: %w", s.path, err)
	}
	return st, true, nil
}

func (s *FileLearnerStore) Save(_ context.Context, st models.LearnerState) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode learner state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create learner dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".learner-*.json")
	if err != nil {
		return fmt.Errorf("create temp learner file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write learner state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close learner state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace learner state: %w", err)
	}
	return nil
}

// CacheLearnerStore keeps the learner state under one key of a cache.Service,
// normally redis so replicas share it.
type CacheLearnerStore struct {
	c   cache.Service
	key string
}

func NewCacheLearnerStore(c cache.Service, key string) *CacheLearnerStore {
	return &CacheLearnerStore{c: c, key: key}
}

func (s *CacheLearnerStore) Load(ctx context.Context) (models.LearnerState, bool, error) {
	var st models.LearnerState
	err := s.c.Get(ctx, s.key, &st)
	if errors.Is(err, cache.ErrCacheMiss) {
		return models.LearnerState{}, false, nil
	}
	if err != nil {
		return models.LearnerState{}, false, fmt.Errorf("load learner state: %w", err)
	}
	return st, true, nil
}

func (s *CacheLearnerStore) Save(ctx context.Context, st models.LearnerState) error {
	if err := s.c.Set(ctx, s.key, st, 0); err != nil {
		return fmt.Errorf("save learner state: %w", err)
	}
	return nil
}

var (
	_ domrepo.LearnerStore = (*FileLearnerStore)(nil)
	_ domrepo.LearnerStore = (*CacheLearnerStore)(nil)
)
