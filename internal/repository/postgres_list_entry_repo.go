package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/animirror/internal/model"
)

// PostgresListEntryRepo はPostgreSQLを使用したリストエントリリポジトリ。
type PostgresListEntryRepo struct {
	db *sql.DB
}

// NewPostgresListEntryRepo はPostgresListEntryRepoを生成する。
func NewPostgresListEntryRepo(db *sql.DB) *PostgresListEntryRepo {
	return &PostgresListEntryRepo{db: db}
}

// ListByUserID は指定ユーザーの全エントリを取得する。
func (r *PostgresListEntryRepo) ListByUserID(ctx context.Context, userID int) ([]model.ListEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, media_id, user_title, start_day, end_day, score
		 FROM list_entries WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []model.ListEntry
	for rows.Next() {
		entry, err := scanListEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}

	return entries, nil
}

// ListByUserIDWithMedia は指定ユーザーの全エントリを作品情報と結合して取得する。
// 作品ID昇順で返す。
func (r *PostgresListEntryRepo) ListByUserIDWithMedia(ctx context.Context, userID int) ([]model.ListEntryWithMedia, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT l.user_id, l.media_id, l.user_title, l.start_day, l.end_day, l.score,
		        m.description, m.description_text, m.cover_s3, m.cover_source_url,
		        m.average, m.title_native, m.title_romaji, m.title_english
		 FROM list_entries AS l
		 INNER JOIN media AS m ON l.media_id = m.media_id
		 WHERE l.user_id = $1
		 ORDER BY l.media_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries with media: %w", err)
	}
	defer rows.Close()

	var items []model.ListEntryWithMedia
	for rows.Next() {
		var item model.ListEntryWithMedia
		var userTitle sql.NullString
		var startDay, endDay sql.NullTime
		var score, average sql.NullInt16
		var native, romaji, english sql.NullString

		err := rows.Scan(&item.UserID, &item.MediaID, &userTitle, &startDay, &endDay, &score,
			&item.Media.Description, &item.Media.DescriptionText,
			&item.Media.CoverS3, &item.Media.CoverSourceURL,
			&average, &native, &romaji, &english)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry with media: %w", err)
		}

		item.UserTitle = nullStringPtr(userTitle)
		item.StartDay = nullTimePtr(startDay)
		item.EndDay = nullTimePtr(endDay)
		item.Score = nullInt16Ptr(score)
		item.Media.MediaID = item.MediaID
		item.Media.Average = nullInt16Ptr(average)
		item.Media.TitleNative = nullStringPtr(native)
		item.Media.TitleRomaji = nullStringPtr(romaji)
		item.Media.TitleEnglish = nullStringPtr(english)

		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries with media: %w", err)
	}

	return items, nil
}

// Upsert はエントリを複合主キー(user_id, media_id)でUPSERTする。
func (r *PostgresListEntryRepo) Upsert(ctx context.Context, entry *model.ListEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO list_entries (user_id, media_id, user_title, start_day, end_day, score, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (user_id, media_id) DO UPDATE SET
		   user_title = excluded.user_title,
		   start_day = excluded.start_day,
		   end_day = excluded.end_day,
		   score = excluded.score,
		   updated_at = now()`,
		entry.UserID, entry.MediaID, ptrNullString(entry.UserTitle),
		ptrNullTime(entry.StartDay), ptrNullTime(entry.EndDay), ptrNullInt16(entry.Score),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert list entry: %w", err)
	}

	return nil
}

// Delete は指定キーのエントリを削除する。存在しない場合もエラーにしない。
func (r *PostgresListEntryRepo) Delete(ctx context.Context, key model.EntryKey) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM list_entries WHERE user_id = $1 AND media_id = $2`,
		key.UserID, key.MediaID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete list entry: %w", err)
	}

	return nil
}

// scanListEntry は1行分のエントリをスキャンする。
func scanListEntry(rows *sql.Rows) (model.ListEntry, error) {
	var entry model.ListEntry
	var userTitle sql.NullString
	var startDay, endDay sql.NullTime
	var score sql.NullInt16

	err := rows.Scan(&entry.UserID, &entry.MediaID, &userTitle, &startDay, &endDay, &score)
	if err != nil {
		return entry, fmt.Errorf("failed to scan list entry: %w", err)
	}

	entry.UserTitle = nullStringPtr(userTitle)
	entry.StartDay = nullTimePtr(startDay)
	entry.EndDay = nullTimePtr(endDay)
	entry.Score = nullInt16Ptr(score)

	return entry, nil
}

// compile-time interface check
var _ ListEntryRepository = (*PostgresListEntryRepo)(nil)
