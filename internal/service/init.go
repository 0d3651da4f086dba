// ABOUTME: Storage lifecycle: tier probing, one-time migration, and diagnostics
// ABOUTME: Initialize is the only place unhealthy tiers are re-probed

package service

import (
	"context"
	"fmt"

	"github.com/power7414/chatstore/internal/migrate"
	"github.com/power7414/chatstore/internal/store"
)

// InitOptions controls startup behavior.
type InitOptions struct {
	// AutoMigrate runs the legacy migration when it is needed.
	AutoMigrate bool
	// ClearLegacyAfterMigration removes migrated keys from the legacy
	// store after an error-free migration.
	ClearLegacyAfterMigration bool
}

// InitResult reports what Initialize did.
type InitResult struct {
	Initialized        bool            `json:"initialized"`
	MigrationPerformed bool            `json:"migrationPerformed"`
	Migration          *migrate.Result `json:"migration,omitempty"`
	Error              string          `json:"error,omitempty"`
}

// TierHealth is the per-tier slice of the health record.
type TierHealth struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	LastError string `json:"lastError,omitempty"`
}

// Health describes which tier is active and why the others are not.
type Health struct {
	ActiveTier string       `json:"activeStorage"`
	Tiers      []TierHealth `json:"tiers"`
}

// Info is the diagnostics snapshot returned by StorageInfo.
type Info struct {
	Health     Health       `json:"health"`
	Counts     store.Counts `json:"counts"`
	QuotaBytes int64        `json:"quotaBytesUsed"`
}

// Initialize probes every tier, re-marking previously failed ones that
// respond, then optionally runs the one-time legacy migration. This is
// the only point where an unhealthy tier gets another chance; during
// normal operation degradation is sticky.
func (s *Service) Initialize(ctx context.Context, opts InitOptions) (*InitResult, error) {
	res := &InitResult{}

	anyHealthy := false
	for _, t := range s.tiers {
		if err := t.Ping(ctx); err != nil {
			s.markUnhealthy(t.Name(), err)
			s.logger.Warn("storage tier unavailable at startup", "tier", t.Name(), "error", err)
			continue
		}
		s.markHealthy(t.Name())
		anyHealthy = true
	}
	if !anyHealthy {
		res.Error = "no storage tier available"
		return res, fmt.Errorf("%w: initialize", ErrAllTiersExhausted)
	}

	if opts.AutoMigrate && s.db != nil && s.legacyStore != nil && s.isHealthy(s.db.Name()) {
		migrator := migrate.New(s.legacyStore, s.db, migrate.Options{
			SkipExistingData: true,
			Backup:           true,
			ClearLegacy:      opts.ClearLegacyAfterMigration,
		}, s.logger)

		needed, err := migrator.IsMigrationNeeded(ctx)
		if err != nil {
			// Migration trouble must not block startup; the structured
			// store still works without the legacy data.
			s.logger.Warn("migration check failed", "error", err)
		} else if needed {
			migRes, err := migrator.MigrateAll(ctx)
			if err != nil {
				s.logger.Warn("migration failed", "error", err)
			} else {
				res.MigrationPerformed = true
				res.Migration = migRes
			}
		}
	}

	res.Initialized = true
	return res, nil
}

// Health returns the current tier health record.
func (s *Service) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := Health{}
	for _, t := range s.tiers {
		st := s.state[t.Name()]
		th := TierHealth{Name: t.Name(), Healthy: st.healthy}
		if st.lastErr != nil {
			th.LastError = st.lastErr.Error()
		}
		if st.healthy && h.ActiveTier == "" {
			h.ActiveTier = t.Name()
		}
		h.Tiers = append(h.Tiers, th)
	}
	return h
}

// StorageInfo returns health, entity counts, and a quota estimate.
// Counts come from whichever tier is currently active.
func (s *Service) StorageInfo(ctx context.Context) (*Info, error) {
	counts, err := run(s, ctx, "count entities", func(t Tier) (store.Counts, error) {
		return t.Counts(ctx)
	})
	if err != nil {
		return nil, err
	}

	info := &Info{
		Health: s.Health(),
		Counts: counts,
	}
	if s.db != nil && s.isHealthy(s.db.Name()) {
		if size, err := s.db.SizeBytes(ctx); err == nil {
			info.QuotaBytes = size
		}
	}
	return info, nil
}
