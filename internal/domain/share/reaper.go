package share

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/liwaywai/lending-api/internal/pkg/logger"
	"github.com/liwaywai/lending-api/internal/pkg/storage"
)

const reapBatch = 100

// archiveRecord is what lands in storage for each reaped token
type archiveRecord struct {
	Token      *Token       `json:"token"`
	AccessLogs []*AccessLog `json:"access_logs"`
	ArchivedAt time.Time    `json:"archived_at"`
}

// Reaper removes tokens that expired longer ago than the retention window,
// archiving each one first. Access logs stay in place.
type Reaper struct {
	repo      Repository
	archive   storage.Storage
	retention time.Duration
	now       func() time.Time
}

// NewReaper creates a reaper
func NewReaper(repo Repository, archive storage.Storage, retention time.Duration) *Reaper {
	if retention < 0 {
		retention = 0
	}
	return &Reaper{repo: repo, archive: archive, retention: retention, now: time.Now}
}

// ArchiveKey is where a reaped token is stored
func ArchiveKey(t *Token, at time.Time) string {
	return fmt.Sprintf("share-archive/%s/%s.json", at.UTC().Format("2006/01/02"), t.ID)
}

// Start runs the reaper every interval until ctx is done
func (r *Reaper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.run(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Share reaper stopped")
			return
		case <-ticker.C:
			r.run(ctx)
		}
	}
}

func (r *Reaper) run(ctx context.Context) {
	n, err := r.RunOnce(ctx)
	if err != nil {
		logger.LogError(ctx, err, "Share reaper pass failed", "reaped", n)
		return
	}
	if n > 0 {
		log.Info().Int("reaped", n).Dur("retention", r.retention).Msg("Reaped expired share tokens")
	}
}

// RunOnce archives and deletes every eligible token, returning how many went
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.retention)
	total := 0
	for {
		tokens, err := r.repo.ListExpiredBefore(ctx, cutoff, reapBatch)
		if err != nil {
			return total, err
		}
		for _, t := range tokens {
			if err := r.reap(ctx, t); err != nil {
				return total, fmt.Errorf("reap %s: %w", t.ID, err)
			}
			total++
		}
		if len(tokens) < reapBatch {
			return total, nil
		}
	}
}

func (r *Reaper) reap(ctx context.Context, t *Token) error {
	logs, err := r.repo.AccessLogs(ctx, t.ID)
	if err != nil {
		return err
	}
	if logs == nil {
		logs = []*AccessLog{}
	}

	now := r.now()
	body, err := json.Marshal(archiveRecord{Token: t, AccessLogs: logs, ArchivedAt: now})
	if err != nil {
		return err
	}
	if err := r.archive.Put(ctx, ArchiveKey(t, now), bytes.NewReader(body), "application/json"); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return r.repo.Delete(ctx, t.ID)
}
