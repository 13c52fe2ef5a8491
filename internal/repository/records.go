package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/antonkozlov/imgmatch/internal/common"
	"github.com/antonkozlov/imgmatch/internal/entity"
)

// RecordRepository is the result store: comparison records and the
// similar-pairs derived from them. All failures are StoreError (transient).
type RecordRepository interface {
	EnsureSchema(ctx context.Context) error
	// Save persists the record. Idempotent: retrying a job that already wrote
	// its record resolves to the existing row (the record's ID and CreatedAt
	// are rewritten to the stored ones).
	Save(ctx context.Context, rec *entity.ComparisonRecord) error
	FindByContentHash(ctx context.Context, contentHash string) ([]*entity.ComparisonRecord, error)
	// FindCandidates returns every stored record except exclude, oldest
	// first. Scope decision: full scan, so no true duplicate can be missed.
	FindCandidates(ctx context.Context, exclude uuid.UUID) ([]*entity.ComparisonRecord, error)
	UpdateHashes(ctx context.Context, id uuid.UUID, hashes *entity.ImageHashSet) error
	// SaveVerdicts upserts on the record pair, so a retried comparison stage
	// rewrites its verdicts instead of duplicating them.
	SaveVerdicts(ctx context.Context, verdicts []*entity.SimilarityVerdict) error
	DeleteVerdictsFor(ctx context.Context, id uuid.UUID) error
	PurgeAll(ctx context.Context) error
}

type recordRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewRecordRepository(pool *pgxpool.Pool, log *slog.Logger) RecordRepository {
	if log == nil {
		log = slog.Default()
	}
	return &recordRepo{pool: pool, log: log}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS recognized_images (
	id              UUID PRIMARY KEY,
	image_id        TEXT NOT NULL DEFAULT '',
	image_path      TEXT NOT NULL,
	content_hash    TEXT NOT NULL DEFAULT '',
	ahash           TEXT,
	dhash           TEXT,
	whash_haar      TEXT,
	colorhash       TEXT,
	recognized_text TEXT,
	normalized_text TEXT,
	text_len        INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS recognized_images_content_path
	ON recognized_images (content_hash, image_path);
CREATE INDEX IF NOT EXISTS recognized_images_content_hash
	ON recognized_images (content_hash);

CREATE TABLE IF NOT EXISTS similar_images (
	id                 UUID PRIMARY KEY,
	source_image_id    UUID NOT NULL REFERENCES recognized_images (id) ON DELETE CASCADE,
	similar_image_id   UUID NOT NULL REFERENCES recognized_images (id) ON DELETE CASCADE,
	distances          JSONB,
	similarity_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
	decided_at         TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS similar_images_pair
	ON similar_images (source_image_id, similar_image_id);
CREATE INDEX IF NOT EXISTS similar_images_source
	ON similar_images (source_image_id);
`

func (r *recordRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaDDL); err != nil {
		r.log.Error("schema setup failed", "err", err)
		return common.StoreError("ensure schema", err)
	}
	return nil
}

const recordColumns = `id, image_id, image_path, content_hash,
	ahash, dhash, whash_haar, colorhash,
	recognized_text, normalized_text, text_len, created_at`

func (r *recordRepo) Save(ctx context.Context, rec *entity.ComparisonRecord) error {
	var (
		rawText, normText *string
		textLen           int
		ah, dh, wh, ch    *string
	)
	if rec.Text != nil {
		rawText = &rec.Text.RawText
		if rec.Text.NormalizedText != "" {
			normText = &rec.Text.NormalizedText
		}
		textLen = rec.Text.Length
	}
	if rec.Hashes != nil {
		ah, dh, wh, ch = &rec.Hashes.AHash, &rec.Hashes.DHash, &rec.Hashes.WHashHaar, &rec.Hashes.ColorHash
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO recognized_images (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (content_hash, image_path)
			DO UPDATE SET image_id = EXCLUDED.image_id
		RETURNING id, created_at`,
		rec.ID, rec.ImageID, rec.ImagePath, rec.ContentHash,
		ah, dh, wh, ch, rawText, normText, textLen, rec.CreatedAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		r.log.Error("record save failed", "image_path", rec.ImagePath, "err", err)
		return common.StoreError("save record", err)
	}
	r.log.Debug("record saved", "record_id", rec.ID, "image_path", rec.ImagePath)
	return nil
}

func (r *recordRepo) FindByContentHash(ctx context.Context, contentHash string) ([]*entity.ComparisonRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM recognized_images
		WHERE content_hash = $1
		ORDER BY created_at`, contentHash)
	if err != nil {
		return nil, common.StoreError("find by content hash", err)
	}
	return scanRecords(rows)
}

func (r *recordRepo) FindCandidates(ctx context.Context, exclude uuid.UUID) ([]*entity.ComparisonRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM recognized_images
		WHERE id <> $1
		ORDER BY created_at`, exclude)
	if err != nil {
		return nil, common.StoreError("find candidates", err)
	}
	return scanRecords(rows)
}

func (r *recordRepo) UpdateHashes(ctx context.Context, id uuid.UUID, hashes *entity.ImageHashSet) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE recognized_images
		SET ahash = $2, dhash = $3, whash_haar = $4, colorhash = $5
		WHERE id = $1`,
		id, hashes.AHash, hashes.DHash, hashes.WHashHaar, hashes.ColorHash)
	if err != nil {
		return common.StoreError("update hashes", err)
	}
	if tag.RowsAffected() == 0 {
		return common.StoreError("update hashes", common.ErrNotFound)
	}
	r.log.Debug("hashes refreshed", "record_id", id)
	return nil
}

func (r *recordRepo) SaveVerdicts(ctx context.Context, verdicts []*entity.SimilarityVerdict) error {
	if len(verdicts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, v := range verdicts {
		var distances []byte
		if v.Distances != nil {
			distances, _ = json.Marshal(v.Distances)
		}
		batch.Queue(`
			INSERT INTO similar_images
				(id, source_image_id, similar_image_id, distances, similarity_percent, decided_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (source_image_id, similar_image_id) DO UPDATE SET
				distances = EXCLUDED.distances,
				similarity_percent = EXCLUDED.similarity_percent,
				decided_at = EXCLUDED.decided_at`,
			uuid.New(), v.ResourceA, v.ResourceB, distances, v.SimilarityPercent(), v.DecidedAt)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		r.log.Error("verdict save failed", "count", len(verdicts), "err", err)
		return common.StoreError("save verdicts", err)
	}
	r.log.Debug("verdicts saved", "count", len(verdicts))
	return nil
}

func (r *recordRepo) DeleteVerdictsFor(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM similar_images
		WHERE source_image_id = $1 OR similar_image_id = $1`, id)
	if err != nil {
		return common.StoreError("delete verdicts", err)
	}
	return nil
}

func (r *recordRepo) PurgeAll(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `TRUNCATE similar_images, recognized_images`); err != nil {
		return common.StoreError("purge all", err)
	}
	r.log.Warn("all stored records purged")
	return nil
}

func scanRecords(rows pgx.Rows) ([]*entity.ComparisonRecord, error) {
	defer rows.Close()
	var out []*entity.ComparisonRecord
	for rows.Next() {
		var (
			rec               entity.ComparisonRecord
			ah, dh, wh, ch    *string
			rawText, normText *string
			textLen           int
			createdAt         time.Time
		)
		if err := rows.Scan(
			&rec.ID, &rec.ImageID, &rec.ImagePath, &rec.ContentHash,
			&ah, &dh, &wh, &ch, &rawText, &normText, &textLen, &createdAt,
		); err != nil {
			return nil, common.StoreError("scan record", err)
		}
		rec.CreatedAt = createdAt
		if ah != nil {
			rec.Hashes = &entity.ImageHashSet{AHash: *ah}
			if dh != nil {
				rec.Hashes.DHash = *dh
			}
			if wh != nil {
				rec.Hashes.WHashHaar = *wh
			}
			if ch != nil {
				rec.Hashes.ColorHash = *ch
			}
		}
		if rawText != nil {
			rec.Text = &entity.ExtractedText{RawText: *rawText, Length: textLen}
			if normText != nil {
				rec.Text.NormalizedText = *normText
			}
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StoreError("iterate records", err)
	}
	return out, nil
}
