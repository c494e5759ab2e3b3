// Package cleanup は孤立した作品レコードの自動削除ジョブを提供する。
// どのユーザーのリストからも参照されなくなった作品行を日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は孤立作品の自動削除ジョブ。
// エントリ削除後に参照されなくなった作品行を回収する。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:     db,
		logger: logger,
	}
}

// Run はどのリストエントリからも参照されていない作品を削除する。
// 同期中にアップサートされた直後の作品行を誤って消さないよう、
// 更新から1日以上経過した行のみを対象にする。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	query := `DELETE FROM media m
	          WHERE NOT EXISTS (
	            SELECT 1 FROM list_entries l WHERE l.media_id = m.media_id
	          )
	          AND m.updated_at < now() - interval '1 day'`
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		j.logger.Error("孤立作品クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("孤立作品クリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("孤立作品クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
