package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/antonkozlov/imgmatch/constants"
	"github.com/antonkozlov/imgmatch/internal/entity"
	"github.com/antonkozlov/imgmatch/internal/worker"
)

// Run watches the configured roots and publishes an ocr_and_store job for
// every discovered image. Blocks until ctx is done.
func Run(ctx context.Context, cfg WatchConfig, pub worker.Publisher, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	paths, err := StartWatcher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("ingest watcher started", "roots", cfg.Roots)

	for path := range paths {
		job := entity.Job{
			JobID:      uuid.NewString(),
			ImagePath:  path,
			EnqueuedAt: time.Now().UTC(),
		}
		body, err := json.Marshal(job)
		if err != nil {
			logger.Error("marshal ingest job", "path", path, "err", err)
			continue
		}
		if err := pub.Publish(ctx, constants.OCRImageQueue, body); err != nil {
			logger.Error("publish ingest job", "path", path, "err", err)
			continue
		}
		logger.Info("ingest job published", "job_id", job.JobID, "path", path)
	}
	return nil
}
