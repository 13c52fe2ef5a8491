// Package worker drives the pipeline: it consumes jobs from the broker,
// enforces per-resource serialization, retries transient failures with
// bounded backoff, and acknowledges or dead-letters every delivery exactly
// once.
package worker

import (
	"context"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/antonkozlov/imgmatch/constants"
	"github.com/antonkozlov/imgmatch/internal/common"
	"github.com/antonkozlov/imgmatch/internal/core"
	"github.com/antonkozlov/imgmatch/internal/entity"
)

// processor is the orchestrator surface the worker drives.
type processor interface {
	Handle(ctx context.Context, job *entity.Job) (*core.Result, error)
}

type Worker struct {
	logger      *slog.Logger
	source      Source
	pub         Publisher
	proc        processor
	cfg         common.WorkerConfig
	retry       retryPolicy
	maintenance bool
	locks       *ResourceLocks
}

func New(logger *slog.Logger, source Source, pub Publisher, proc processor, cfg common.WorkerConfig, maintenance bool) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Worker{
		logger:      logger,
		source:      source,
		pub:         pub,
		proc:        proc,
		cfg:         cfg,
		retry:       retryPolicyFromConfig(cfg),
		maintenance: maintenance,
		locks:       NewResourceLocks(),
	}
}

type queuedDelivery struct {
	queue    string
	delivery amqp.Delivery
}

// Run consumes until ctx is canceled. On shutdown it stops accepting new
// deliveries, requeues anything not yet dispatched, and waits for in-flight
// jobs to finish (each bounded by the process timeout) before returning, so
// no job is left acked-but-unprocessed or processed-but-unacked.
func (w *Worker) Run(ctx context.Context) error {
	queues := []string{constants.OCRImageQueue, constants.CompareImagesQueue}
	if w.maintenance {
		queues = append(queues, constants.MaintenanceQueue)
	} else {
		w.logger.Info("maintenance queue disabled")
	}

	// All consumers are opened before any goroutine starts, so a failed
	// queue leaves nothing behind to unwind.
	type stream struct {
		queue      string
		deliveries <-chan amqp.Delivery
	}
	streams := make([]stream, 0, len(queues))
	for _, q := range queues {
		deliveries, err := w.source.Consume(q)
		if err != nil {
			return err
		}
		w.logger.Info("consuming queue", "queue", q)
		streams = append(streams, stream{queue: q, deliveries: deliveries})
	}

	jobs := make(chan queuedDelivery)
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range streams {
		g.Go(func() error {
			return w.forward(gctx, s.queue, s.deliveries, jobs)
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.logger.Info("worker started", "worker_id", id)
			for qd := range jobs {
				w.handle(ctx, qd)
			}
			w.logger.Info("worker stopped", "worker_id", id)
		}(i + 1)
	}

	err := g.Wait()
	close(jobs)
	wg.Wait()
	w.logger.Info("worker pool drained")
	return err
}

func (w *Worker) forward(ctx context.Context, queue string, deliveries <-chan amqp.Delivery, jobs chan<- queuedDelivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			select {
			case jobs <- queuedDelivery{queue: queue, delivery: d}:
			case <-ctx.Done():
				// Not dispatched yet: hand it back to the broker.
				if err := d.Nack(false, true); err != nil {
					w.logger.Warn("requeue on shutdown failed", "queue", queue, "err", err)
				}
				return nil
			}
		}
	}
}

// handle runs the full per-delivery state machine:
// Received -> Processing -> {Acked, Retrying, Rejected}.
// ctx bounds only the wait for the resource lock; once processing starts it
// runs outside the shutdown context on purpose, so an in-flight job finishes
// (or times out) even while the daemon is draining.
func (w *Worker) handle(ctx context.Context, qd queuedDelivery) {
	job, err := ParseJob(qd.queue, qd.delivery.Body)
	if err != nil {
		w.logger.Error("rejecting malformed job", "queue", qd.queue, "err", err)
		w.reject(qd, "unknown", err)
		return
	}

	release, err := w.locks.Acquire(ctx, job.Resource())
	if err != nil {
		w.logger.Warn("shutdown while waiting for resource lock, requeueing",
			"job_id", job.JobID, "resource", job.ImagePath)
		if err := qd.delivery.Nack(false, true); err != nil {
			w.logger.Error("requeue failed", "job_id", job.JobID, "err", err)
		}
		return
	}
	defer release()

	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ProcessTimeout)
		res, err := w.proc.Handle(ctx, job)
		cancel()

		if err == nil {
			w.ack(qd, job)
			w.emit(job, res)
			return
		}
		if common.IsPermanent(err) {
			w.logger.Error("rejecting job with permanent failure",
				"job_id", job.JobID, "resource", job.ImagePath, "err", err)
			w.reject(qd, job.JobID, err)
			return
		}
		if attempt >= w.retry.Limit {
			w.logger.Error("retry budget exhausted, dead-lettering job",
				"job_id", job.JobID, "resource", job.ImagePath, "attempts", attempt+1, "err", err)
			w.reject(qd, job.JobID, err)
			return
		}
		backoff := w.retry.Backoff(attempt)
		w.logger.Warn("transient failure, retrying",
			"job_id", job.JobID, "resource", job.ImagePath,
			"attempt", attempt+1, "backoff", backoff, "err", err)
		if err := sleepCtx(context.Background(), backoff); err != nil {
			return
		}
	}
}

func (w *Worker) ack(qd queuedDelivery, job *entity.Job) {
	if err := qd.delivery.Ack(false); err != nil {
		w.logger.Error("ack failed", "job_id", job.JobID, "err", err)
		return
	}
	w.logger.Info("job acknowledged", "job_id", job.JobID, "queue", qd.queue)
}

// reject dead-letters the delivery and removes it from the queue. The
// dead-letter publish happens first so the failure record exists before the
// message disappears.
func (w *Worker) reject(qd queuedDelivery, jobID string, cause error) {
	ctx := context.Background()
	if err := w.pub.DeadLetter(ctx, qd.delivery.Body, cause.Error()); err != nil {
		w.logger.Error("dead-letter publish failed, requeueing",
			"job_id", jobID, "queue", qd.queue, "err", err)
		if err := qd.delivery.Nack(false, true); err != nil {
			w.logger.Error("requeue failed", "job_id", jobID, "err", err)
		}
		return
	}
	if err := qd.delivery.Ack(false); err != nil {
		w.logger.Error("ack after dead-letter failed", "job_id", jobID, "err", err)
	}
}

// emit publishes the comparison result for successfully processed compare
// jobs.
func (w *Worker) emit(job *entity.Job, res *core.Result) {
	if job.Kind != constants.JobKindCompareAndStore || res == nil || res.AlreadyKnown {
		return
	}
	body, err := buildResponse(job, res)
	if err != nil {
		w.logger.Error("building response failed", "job_id", job.JobID, "err", err)
		return
	}
	if err := w.pub.Publish(context.Background(), constants.ResponseQueue, body); err != nil {
		w.logger.Error("response publish failed", "job_id", job.JobID, "err", err)
		return
	}
	w.logger.Debug("response published", "job_id", job.JobID, "similar", len(res.Matches))
}
