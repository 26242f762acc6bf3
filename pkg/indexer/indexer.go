// Package indexer implements the background indexing worker: a polling
// loop that drains the files flagged needs_chunking through the daemon's
// index_file operation, recording one stats row per cycle.
package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codescope/codedb/internal/logger"
	"github.com/codescope/codedb/pkg/dbclient"
	"github.com/codescope/codedb/pkg/models"
)

// EnvWorkerMarker is set in the worker process environment so diagnostics
// can identify the indexing worker.
const EnvWorkerMarker = "CODE_ANALYSIS_DB_WORKER"

// Defaults applied by New for zero Config fields.
const (
	DefaultPollInterval = 30 * time.Second
	DefaultBatchSize    = 50

	minBackoff = time.Second
	maxBackoff = 60 * time.Second
)

// Config holds worker tunables.
type Config struct {
	// PollInterval is the idle delay between cycles.
	PollInterval time.Duration

	// BatchSize bounds the files processed per cycle.
	BatchSize int
}

// Worker is the indexing loop.
type Worker struct {
	cfg Config
	db  *dbclient.DB

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a worker over a connected DB client.
func New(cfg Config, db *dbclient.DB) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Worker{
		cfg:  cfg,
		db:   db,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the polling loop.
func (w *Worker) Start() {
	_ = os.Setenv(EnvWorkerMarker, "1")
	go w.loop()
	logger.Info("Indexing worker started",
		"poll_interval", w.cfg.PollInterval.String(),
		"batch_size", w.cfg.BatchSize)
}

// Stop signals the loop and waits for the current cycle to finish.
// Idempotent.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
	logger.Info("Indexing worker stopped")
}

// loop alternates probe, cycle, sleep. Probe failures back off
// exponentially instead of hammering a restarting daemon.
func (w *Worker) loop() {
	defer close(w.done)

	backoff := minBackoff
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.PollInterval)
		err := w.probe(ctx)
		cancel()
		if err != nil {
			logger.Warn("Daemon probe failed, backing off",
				logger.KeyError, err, "backoff", backoff.String())
			if !w.sleep(backoff) {
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = minBackoff

		w.runCycle()

		if !w.sleep(w.cfg.PollInterval) {
			return
		}
	}
}

// probe verifies the daemon answers a trivial query.
func (w *Worker) probe(ctx context.Context) error {
	_, err := w.db.Query(ctx, "SELECT 1", nil)
	return err
}

// stopping reports whether Stop has been signaled.
func (w *Worker) stopping() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// sleep waits for d or until Stop. Returns false when stopping.
func (w *Worker) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-w.stop:
		return false
	}
}

// runCycle runs one indexing cycle: open a stats row stamped with the
// current total file count, drain up to BatchSize flagged files from
// every project, fold each outcome into the stats row as it lands, and
// close the row.
func (w *Worker) runCycle() {
	ctx := context.Background()

	total, err := w.db.CountFiles(ctx)
	if err != nil {
		logger.Warn("Failed to count files", logger.KeyError, err)
		return
	}

	cycleID, err := w.db.StartWorkerCycle(ctx, total)
	if err != nil {
		logger.Warn("Failed to open worker cycle", logger.KeyError, err)
		return
	}

	var indexed, failed int64

	projects, err := w.db.ProjectsNeedingChunking(ctx)
	if err != nil {
		logger.Warn("Failed to discover projects needing indexing", logger.KeyError, err)
	}

	projectRoots := make(map[string]string)
	for _, projectID := range projects {
		if w.stopping() {
			break
		}

		files, err := w.db.GetProjectFilesNeedingChunking(ctx, projectID, w.cfg.BatchSize)
		if err != nil {
			logger.Warn("Failed to list files needing indexing",
				"project_id", projectID, logger.KeyError, err)
			continue
		}

		for _, file := range files {
			if w.stopping() {
				break
			}

			start := time.Now()
			err := w.indexOne(ctx, projectRoots, file)
			elapsed := float64(time.Since(start).Microseconds()) / 1000

			if err != nil {
				failed++
				logger.Warn("File indexing failed",
					"file_id", file.ID,
					"path", file.Path,
					logger.KeyError, err)
			} else {
				indexed++
			}
			if recErr := w.db.RecordWorkerFile(ctx, cycleID, err == nil, elapsed); recErr != nil {
				logger.Warn("Failed to record file outcome",
					"cycle_id", cycleID, logger.KeyError, recErr)
			}
		}
	}

	if err := w.db.FinishWorkerCycle(ctx, cycleID); err != nil {
		logger.Warn("Failed to close worker cycle", logger.KeyError, err)
	}

	logger.Info("Indexing cycle completed",
		"cycle_id", cycleID,
		"indexed", indexed,
		"failed", failed)
}

// indexOne resolves the file's absolute path from its project root and
// invokes the composite index operation. Roots are cached per cycle.
func (w *Worker) indexOne(ctx context.Context, roots map[string]string, file models.File) error {
	root, ok := roots[file.ProjectID]
	if !ok {
		project, err := w.db.GetProject(ctx, file.ProjectID)
		if err != nil {
			return err
		}
		root = project.RootPath
		roots[file.ProjectID] = root
	}

	absPath := filepath.Join(root, filepath.FromSlash(file.Path))
	_, err := w.db.IndexFile(ctx, absPath, file.ProjectID)
	return err
}
