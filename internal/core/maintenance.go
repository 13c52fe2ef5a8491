package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/antonkozlov/imgmatch/constants"
	"github.com/antonkozlov/imgmatch/internal/common"
	"github.com/antonkozlov/imgmatch/internal/entity"
	"github.com/antonkozlov/imgmatch/internal/feature"
)

// Maintain executes a maintenance job. Rescans recompute stale hash sets for
// records whose file is still readable; stored verdicts are left alone unless
// overwriteVerdicts is configured, in which case they are recomputed for each
// refreshed record.
func (p *Processor) Maintain(ctx context.Context, job *entity.Job) error {
	switch job.Action {
	case constants.MaintenancePurgeAll:
		p.logger.Warn("maintenance purge requested", "job_id", job.JobID)
		return p.records.PurgeAll(ctx)
	case constants.MaintenanceRescan, "":
		return p.rescan(ctx, job.JobID)
	default:
		return common.MalformedJobError(fmt.Sprintf("unknown maintenance action %q", job.Action), nil)
	}
}

func (p *Processor) rescan(ctx context.Context, jobID string) error {
	records, err := p.records.FindCandidates(ctx, uuid.Nil)
	if err != nil {
		return err
	}
	p.logger.Info("maintenance rescan started", "job_id", jobID, "records", len(records))

	refreshed := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		hashes, _, err := p.hasher.ComputeHashes(ctx, rec.ImagePath)
		if err != nil {
			if errors.Is(err, feature.ErrNotApplicable) {
				p.logger.Debug("rescan skipped unreadable resource",
					"record_id", rec.ID, "resource", rec.ImagePath)
				continue
			}
			return err
		}
		if rec.Hashes != nil && *rec.Hashes == *hashes {
			continue
		}
		if err := p.records.UpdateHashes(ctx, rec.ID, hashes); err != nil {
			return err
		}
		rec.Hashes = hashes
		refreshed++

		if p.overwriteVerdicts {
			if err := p.records.DeleteVerdictsFor(ctx, rec.ID); err != nil {
				return err
			}
			if _, err := p.compareAndStore(ctx, rec); err != nil {
				return err
			}
		}
	}
	p.logger.Info("maintenance rescan finished", "job_id", jobID, "refreshed", refreshed)
	return nil
}
