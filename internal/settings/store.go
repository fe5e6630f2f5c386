package settings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fuomag9/onlinetracker/internal/models"
)

type loaderFunc func(ctx context.Context) (map[string]string, error)

// Store reads settings from the settings table. A snapshot is reused for at most ttl and is
// dropped early by Invalidate.
type Store struct {
	load   loaderFunc
	base   Settings
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu       sync.Mutex
	cached   Settings
	loadedAt time.Time
	valid    bool
}

// NewStore creates a settings store backed by db. base supplies values for missing keys.
func NewStore(db *gorm.DB, base Settings, ttl time.Duration, logger *zap.Logger) *Store {
	return newStore(gormLoader(db), base, ttl, logger)
}

func newStore(load loaderFunc, base Settings, ttl time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{load: load, base: base, ttl: ttl, now: time.Now, logger: logger}
}

func gormLoader(db *gorm.DB) loaderFunc {
	return func(ctx context.Context) (map[string]string, error) {
		var rows []models.Setting
		if err := db.WithContext(ctx).Find(&rows).Error; err != nil {
			return nil, err
		}
		values := make(map[string]string, len(rows))
		for _, row := range rows {
			values[row.Key] = row.Value
		}
		return values, nil
	}
}

// Current returns the settings, reloading when the snapshot is older than the ttl.
// When the reload fails the previous snapshot is served and the error logged.
func (s *Store) Current(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.valid && s.now().Sub(s.loadedAt) < s.ttl {
		return s.cached, nil
	}

	values, err := s.load(ctx)
	if err != nil {
		if s.valid {
			s.logger.Warn("failed to reload settings, serving previous snapshot", zap.Error(err))
			return s.cached, nil
		}
		return s.base, fmt.Errorf("failed to load settings: %w", err)
	}

	s.cached = Parse(values, s.base)
	s.loadedAt = s.now()
	s.valid = true
	return s.cached, nil
}

// Invalidate forces the next Current call to reload
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}
