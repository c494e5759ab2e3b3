// Package resync はミラー済みユーザーの定期再同期を提供する。
// ローカルに登録済みのユーザーを一定間隔で巡回し、リモートの変更を取り込む。
package resync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/animirror/internal/anilist"
	"github.com/hitoshi/animirror/internal/model"
	syncpkg "github.com/hitoshi/animirror/internal/sync"
)

// UserLister は再同期対象ユーザーの取得インターフェース。
type UserLister interface {
	ListAll(ctx context.Context) ([]*model.User, error)
}

// SyncRunner は1ユーザー分の同期実行インターフェース。
// 同一ユーザーの同期が実行中の場合はsync.ErrSyncInFlightを返す。
type SyncRunner interface {
	Run(ctx context.Context, user *anilist.User) (*syncpkg.Report, error)
}

// RemoteResolver はリモートカタログでのユーザー名解決インターフェース。
type RemoteResolver interface {
	GetUserID(ctx context.Context, username string) (*anilist.User, error)
}

// Scheduler は定期再同期のスケジューリングと並列制御を行う。
// 指定間隔のティッカーで登録済みユーザーを取得し、
// semaphoreパターンで最大並列数を制御しながら同期を実行する。
type Scheduler struct {
	users          UserLister
	resolver       RemoteResolver
	runner         SyncRunner
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(
	users UserLister,
	resolver RemoteResolver,
	runner SyncRunner,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		users:          users,
		resolver:       resolver,
		runner:         runner,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("再同期スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("再同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("再同期スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("再同期サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は登録済みユーザーを1回取得し、並列で同期を実行する。
// semaphoreパターンで最大並列数を制御する。
// APIトリガーの同期と競合したユーザーはスキップする（次のサイクルで再試行）。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	users, err := s.users.ListAll(ctx)
	if err != nil {
		return err
	}

	if len(users) == 0 {
		s.logger.Info("再同期対象のユーザーはありません")
		return nil
	}

	s.logger.Info("再同期サイクルを開始します",
		slog.Int("user_count", len(users)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, user := range users {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(u *model.User) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			// アバターや表示名の変更を取り込むため、毎回リモートで解決し直す
			remote, err := s.resolver.GetUserID(ctx, u.Name)
			if err != nil {
				s.logger.Error("リモートユーザーの解決に失敗しました",
					slog.Int("user_id", u.UserID),
					slog.String("username", u.Name),
					slog.String("error", err.Error()),
				)
				return
			}
			if remote == nil {
				// リモートで削除または改名されたユーザーは再同期しない
				s.logger.Warn("リモートにユーザーが存在しないためスキップしました",
					slog.Int("user_id", u.UserID),
					slog.String("username", u.Name),
				)
				return
			}

			if _, err := s.runner.Run(ctx, remote); err != nil {
				if errors.Is(err, syncpkg.ErrSyncInFlight) {
					s.logger.Info("同期が実行中のためスキップしました",
						slog.Int("user_id", u.UserID),
					)
					return
				}
				s.logger.Error("ユーザーの再同期に失敗しました",
					slog.Int("user_id", u.UserID),
					slog.String("username", u.Name),
					slog.String("error", err.Error()),
				)
			}
		}(user)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("再同期サイクルが完了しました",
		slog.Int("user_count", len(users)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
