package sync

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/animirror/internal/anilist"
)

// ErrSyncInFlight は同一ユーザーの同期が既に実行中であることを示す。
var ErrSyncInFlight = errors.New("sync already in flight for this user")

// Manager はユーザーごとの同期実行を直列化する。
// 同一ユーザーIDの同期が実行中の間、そのユーザーへの新しい同期要求は拒否する。
// 異なるユーザーIDの同期は互いにブロックしない。
type Manager struct {
	service *Service
	logger  *slog.Logger
	timeout time.Duration

	mu       gosync.Mutex
	inFlight map[int]struct{}
}

// NewManager はManagerの新しいインスタンスを生成する。
// timeoutは1回の同期全体の打ち切り時間。
func NewManager(service *Service, logger *slog.Logger, timeout time.Duration) *Manager {
	return &Manager{
		service:  service,
		logger:   logger,
		timeout:  timeout,
		inFlight: make(map[int]struct{}),
	}
}

// Schedule は指定ユーザーの同期をバックグラウンドで開始する。
// 同一ユーザーの同期が既に実行中の場合は開始せずfalseを返す。
// 開始できた場合はtrueを返し、完了を待たずに制御を戻す。
func (m *Manager) Schedule(user *anilist.User) bool {
	if !m.tryAcquire(user.ID) {
		m.logger.Info("sync already in flight, request rejected",
			slog.Int("user_id", user.ID),
			slog.String("username", user.Name),
		)
		return false
	}

	jobID := uuid.New().String()
	m.logger.Info("sync scheduled",
		slog.String("job_id", jobID),
		slog.Int("user_id", user.ID),
		slog.String("username", user.Name),
	)

	go func() {
		defer m.release(user.ID)
		m.run(context.Background(), jobID, user)
	}()

	return true
}

// Run は指定ユーザーの同期を同期的に実行する。
// 同一ユーザーの同期が既に実行中の場合はErrSyncInFlightを返す。
// バックグラウンドの再同期ワーカーからの呼び出しを想定している。
func (m *Manager) Run(ctx context.Context, user *anilist.User) (*Report, error) {
	if !m.tryAcquire(user.ID) {
		return nil, ErrSyncInFlight
	}
	defer m.release(user.ID)

	jobID := uuid.New().String()
	return m.run(ctx, jobID, user)
}

// run は1件の同期ジョブをタイムアウト付きで実行する。
func (m *Manager) run(ctx context.Context, jobID string, user *anilist.User) (*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	report, err := m.service.SyncUser(ctx, user)
	if err != nil {
		m.logger.Error("sync job failed",
			slog.String("job_id", jobID),
			slog.Int("user_id", user.ID),
			slog.String("state", string(report.State)),
			slog.String("error", err.Error()),
		)
		return report, err
	}

	m.logger.Info("sync job finished",
		slog.String("job_id", jobID),
		slog.Int("user_id", user.ID),
		slog.String("state", string(report.State)),
	)
	return report, nil
}

// IsRunning は指定ユーザーの同期が実行中かを返す。
func (m *Manager) IsRunning(userID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, running := m.inFlight[userID]
	return running
}

// tryAcquire はユーザーのin-flightマークの取得を試みる。
func (m *Manager) tryAcquire(userID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.inFlight[userID]; running {
		return false
	}
	m.inFlight[userID] = struct{}{}
	return true
}

// release はユーザーのin-flightマークを解除する。
func (m *Manager) release(userID int) {
	m.mu.Lock()
	delete(m.inFlight, userID)
	m.mu.Unlock()
}
