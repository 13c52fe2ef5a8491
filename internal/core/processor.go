// Package core contains the comparison orchestrator: it turns one job into
// extracted features, a persisted comparison record, and the similarity
// verdicts against prior records.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/antonkozlov/imgmatch/constants"
	"github.com/antonkozlov/imgmatch/internal/common"
	"github.com/antonkozlov/imgmatch/internal/entity"
	"github.com/antonkozlov/imgmatch/internal/feature"
	"github.com/antonkozlov/imgmatch/internal/repository"
	"github.com/antonkozlov/imgmatch/internal/scorer"
)

// Match pairs a duplicate verdict with the candidate record it matched.
type Match struct {
	Record  *entity.ComparisonRecord
	Verdict *entity.SimilarityVerdict
}

// Result is the outcome of processing one job.
type Result struct {
	Record  *entity.ComparisonRecord
	Matches []Match
	// AlreadyKnown is set when the exact content hash + path was processed
	// before and nothing more was needed. Compare jobs never set it: a
	// redelivered compare job re-runs its comparison stage so verdicts
	// survive a failure between the record write and the verdict write.
	AlreadyKnown bool
}

// Processor coordinates feature extraction, persistence, and scoring.
type Processor struct {
	logger            *slog.Logger
	text              feature.TextExtractor
	hasher            feature.ImageHasher
	comparer          feature.TextComparer
	scorer            *scorer.Scorer
	records           repository.RecordRepository
	policy            entity.ThresholdPolicy
	overwriteVerdicts bool
}

func NewProcessor(
	logger *slog.Logger,
	text feature.TextExtractor,
	hasher feature.ImageHasher,
	comparer feature.TextComparer,
	records repository.RecordRepository,
	policy entity.ThresholdPolicy,
	overwriteVerdicts bool,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:            logger,
		text:              text,
		hasher:            hasher,
		comparer:          comparer,
		scorer:            scorer.New(comparer, logger),
		records:           records,
		policy:            policy,
		overwriteVerdicts: overwriteVerdicts,
	}
}

// Handle dispatches a job by kind.
func (p *Processor) Handle(ctx context.Context, job *entity.Job) (*Result, error) {
	switch job.Kind {
	case constants.JobKindOCRAndStore, constants.JobKindCompareAndStore:
		return p.Process(ctx, job)
	case constants.JobKindMaintenance:
		return nil, p.Maintain(ctx, job)
	default:
		return nil, common.MalformedJobError(fmt.Sprintf("unknown job kind %q", job.Kind), nil)
	}
}

// Process extracts features for the job's resource, persists a comparison
// record, and, for compare jobs, scores it against all prior records and
// persists the duplicate verdicts.
func (p *Processor) Process(ctx context.Context, job *entity.Job) (*Result, error) {
	hashes, contentHash, hashErr := p.computeHashes(ctx, job)

	// Exact-duplicate shortcut: same bytes at the same path were processed
	// before, so the record write is already committed. Store-only jobs are
	// done at that point. Compare jobs still run the comparison stage: a
	// redelivery may mean a previous attempt failed after the record write,
	// before its verdicts were persisted. Same bytes at a different path
	// reuse the stored OCR text instead of re-running OCR.
	var text *entity.ExtractedText
	if contentHash != "" {
		existing, err := p.records.FindByContentHash(ctx, contentHash)
		if err != nil {
			return nil, err
		}
		for _, rec := range existing {
			if rec.ImagePath == job.ImagePath {
				p.logger.Info("resource already recognized and saved",
					"job_id", job.JobID, "resource", job.ImagePath, "record_id", rec.ID)
				if job.Kind != constants.JobKindCompareAndStore {
					return &Result{Record: rec, AlreadyKnown: true}, nil
				}
				matches, err := p.compareAndStore(ctx, rec)
				if err != nil {
					return nil, err
				}
				return &Result{Record: rec, Matches: matches}, nil
			}
		}
		if len(existing) > 0 && existing[0].Text != nil {
			text = existing[0].Text
			p.logger.Debug("reusing recognized text from identical content",
				"job_id", job.JobID, "resource", job.ImagePath)
		}
	}

	var textErr error
	if text == nil {
		text, textErr = p.extractText(ctx, job)
	}

	if hashes == nil && text == nil {
		err := errors.Join(hashErr, textErr)
		p.logger.Error("processor.extract.failed",
			"job_id", job.JobID, "resource", job.ImagePath, "err", err)
		return nil, common.ExtractionError(
			fmt.Sprintf("no usable signal for %s", job.ImagePath), err)
	}

	if text != nil && p.policy.PreprocessEnabled && text.NormalizedText == "" {
		text.NormalizedText = p.comparer.Preprocess(text.RawText)
		text.Length = utf8.RuneCountInString(text.NormalizedText)
	}

	record := &entity.ComparisonRecord{
		ID:          uuid.New(),
		ImageID:     job.ImageID,
		ImagePath:   job.ImagePath,
		ContentHash: contentHash,
		Text:        text,
		Hashes:      hashes,
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.records.Save(ctx, record); err != nil {
		return nil, err
	}
	p.logger.Debug("record stored", "job_id", job.JobID, "record_id", record.ID)

	result := &Result{Record: record}
	if job.Kind != constants.JobKindCompareAndStore {
		return result, nil
	}

	matches, err := p.compareAndStore(ctx, record)
	if err != nil {
		return nil, err
	}
	result.Matches = matches
	p.logger.Info("comparison completed",
		"job_id", job.JobID, "record_id", record.ID, "similar", len(matches))
	return result, nil
}

// compareAndStore scores record against every prior record and persists the
// duplicate verdicts. The record never compares against itself: the
// candidate query excludes its id.
func (p *Processor) compareAndStore(ctx context.Context, record *entity.ComparisonRecord) ([]Match, error) {
	candidates, err := p.records.FindCandidates(ctx, record.ID)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, cand := range candidates {
		verdict := p.scorer.Score(record, cand, p.policy)
		if verdict.IsDuplicate {
			v := verdict
			matches = append(matches, Match{Record: cand, Verdict: &v})
		}
	}

	verdicts := make([]*entity.SimilarityVerdict, len(matches))
	for i, m := range matches {
		verdicts[i] = m.Verdict
	}
	if err := p.records.SaveVerdicts(ctx, verdicts); err != nil {
		return nil, err
	}
	return matches, nil
}

func (p *Processor) computeHashes(ctx context.Context, job *entity.Job) (*entity.ImageHashSet, string, error) {
	hashes, contentHash, err := p.hasher.ComputeHashes(ctx, job.ImagePath)
	if err != nil {
		if errors.Is(err, feature.ErrNotApplicable) {
			return nil, "", nil
		}
		p.logger.Warn("image hashing failed",
			"job_id", job.JobID, "resource", job.ImagePath, "err", err)
		return nil, "", err
	}
	return hashes, contentHash, nil
}

func (p *Processor) extractText(ctx context.Context, job *entity.Job) (*entity.ExtractedText, error) {
	text, err := p.text.ExtractText(ctx, job.ImagePath)
	if err != nil {
		if errors.Is(err, feature.ErrNotApplicable) {
			return nil, nil
		}
		p.logger.Warn("text extraction failed",
			"job_id", job.JobID, "resource", job.ImagePath, "err", err)
		return nil, err
	}
	return text, nil
}
