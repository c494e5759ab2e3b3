package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/animirror/internal/model"
)

// PostgresMediaRepo はPostgreSQLを使用した作品リポジトリ。
type PostgresMediaRepo struct {
	db *sql.DB
}

// NewPostgresMediaRepo はPostgresMediaRepoを生成する。
func NewPostgresMediaRepo(db *sql.DB) *PostgresMediaRepo {
	return &PostgresMediaRepo{db: db}
}

// FindByID は指定IDの作品を取得する。見つからない場合はnilを返す。
func (r *PostgresMediaRepo) FindByID(ctx context.Context, mediaID int) (*model.Media, error) {
	media := &model.Media{}
	var average sql.NullInt16
	var native, romaji, english sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT media_id, description, description_text, cover_s3, cover_source_url,
		        average, title_native, title_romaji, title_english
		 FROM media WHERE media_id = $1`,
		mediaID,
	).Scan(&media.MediaID, &media.Description, &media.DescriptionText,
		&media.CoverS3, &media.CoverSourceURL,
		&average, &native, &romaji, &english)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find media by ID: %w", err)
	}

	media.Average = nullInt16Ptr(average)
	media.TitleNative = nullStringPtr(native)
	media.TitleRomaji = nullStringPtr(romaji)
	media.TitleEnglish = nullStringPtr(english)

	return media, nil
}

// Upsert は作品を主キーでUPSERTする。
func (r *PostgresMediaRepo) Upsert(ctx context.Context, media *model.Media) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO media (media_id, description, description_text, cover_s3, cover_source_url,
		                    average, title_native, title_romaji, title_english, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		 ON CONFLICT (media_id) DO UPDATE SET
		   description = excluded.description,
		   description_text = excluded.description_text,
		   cover_s3 = excluded.cover_s3,
		   cover_source_url = excluded.cover_source_url,
		   average = excluded.average,
		   title_native = excluded.title_native,
		   title_romaji = excluded.title_romaji,
		   title_english = excluded.title_english,
		   updated_at = now()`,
		media.MediaID, media.Description, media.DescriptionText,
		media.CoverS3, media.CoverSourceURL,
		ptrNullInt16(media.Average), ptrNullString(media.TitleNative),
		ptrNullString(media.TitleRomaji), ptrNullString(media.TitleEnglish),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert media: %w", err)
	}

	return nil
}

// compile-time interface check
var _ MediaRepository = (*PostgresMediaRepo)(nil)
