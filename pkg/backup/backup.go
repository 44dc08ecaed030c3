// Package backup writes every stored round as export text into a directory.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/timoknapp/gulfer/pkg/logger"
	"github.com/timoknapp/gulfer/pkg/metrics"
	"github.com/timoknapp/gulfer/pkg/models"
)

const defaultBatchSize = 8

type Exporter interface {
	Export(ctx context.Context, roundID string) (string, error)
}

type RoundLister interface {
	GetAll(ctx context.Context) ([]models.Round, error)
}

// Job exports rounds to <Dir>/<roundId>.txt. Rounds are exported
// concurrently in batches of BatchSize.
type Job struct {
	Dir       string
	Rounds    RoundLister
	Exporter  Exporter
	BatchSize int
}

type Result struct {
	Written int
	Failed  int
}

// Run exports all rounds. A round that fails to export is logged and counted
// but does not stop the others.
func (j *Job) Run(ctx context.Context) (Result, error) {
	rounds, err := j.Rounds.GetAll(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(j.Dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create backup dir %s: %w", j.Dir, err)
	}

	size := j.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}

	logger.Info("Backup: exporting %d rounds to %s", len(rounds), j.Dir)

	var res Result
	var mu sync.Mutex
	for start := 0; start < len(rounds); start += size {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := start + size
		if end > len(rounds) {
			end = len(rounds)
		}

		var wg sync.WaitGroup
		for _, r := range rounds[start:end] {
			wg.Add(1)
			go func(roundID string) {
				defer wg.Done()

				err := j.writeRound(ctx, roundID)
				metrics.ObserveBackup(err)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					logger.WithRound(roundID).Errorf("Backup failed: %v", err)
					res.Failed++
					return
				}
				res.Written++
			}(r.ID)
		}
		wg.Wait()
	}

	logger.Info("Backup finished. Written: %d, failed: %d", res.Written, res.Failed)
	return res, nil
}

// writeRound replaces the backup file atomically.
func (j *Job) writeRound(ctx context.Context, roundID string) error {
	text, err := j.Exporter.Export(ctx, roundID)
	if err != nil {
		return err
	}
	path := filepath.Join(j.Dir, filepath.Base(roundID)+".txt")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
