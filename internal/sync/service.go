package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/hitoshi/animirror/internal/anilist"
	"github.com/hitoshi/animirror/internal/assets"
	"github.com/hitoshi/animirror/internal/model"
	"github.com/hitoshi/animirror/internal/repository"
)

// State は同期処理の進行状態を表す。
type State string

const (
	// StateNotStarted は同期開始前の状態。
	StateNotStarted State = "not_started"
	// StateFetching はリモートスナップショット取得中の状態。
	StateFetching State = "fetching"
	// StateDiffing は差分計算中の状態。
	StateDiffing State = "diffing"
	// StateApplying はChangeSet適用中の状態。
	StateApplying State = "applying"
	// StateDone は同期完了の終端状態。
	StateDone State = "done"
	// StateFailed は同期中断の終端状態。
	// リモート取得失敗または差分計算失敗でのみ到達する。
	// 適用中のレコード単位の失敗はFailedに遷移させず、カウントして継続する。
	StateFailed State = "failed"
)

// Report は1回の同期の集計結果。
// レコード単位の失敗を握りつぶさず、呼び出し元から観測可能にする。
type Report struct {
	State           State
	UserUpserted    bool
	MediaUpserted   int
	EntriesUpserted int
	EntriesDeleted  int
	RecordsFailed   int
	AssetsUploaded  int
	AssetsSkipped   int
	AssetsFailed    int
}

// CatalogClient はリモートカタログからのリスト取得インターフェース。
type CatalogClient interface {
	GetLists(ctx context.Context, userID int) ([]anilist.MediaList, error)
}

// AssetEnsurer は画像キャッシュの最新化インターフェース。
type AssetEnsurer interface {
	Ensure(ctx context.Context, kind assets.Kind, id int, sourceURL string) assets.Outcome
}

// MetricsRecorder は同期メトリクスの記録インターフェース。
type MetricsRecorder interface {
	RecordSyncSuccess()
	RecordSyncFailure()
	RecordSyncDuration(d time.Duration)
	RecordRecordsUpserted(count int)
	RecordRecordsDeleted(count int)
	RecordRecordFailures(count int)
	RecordAssetOutcome(status string)
}

// Service は1ユーザー分の同期をエンドツーエンドで実行する。
//
// 同一ユーザーIDに対して並行に呼び出してはならない（Manager側で直列化する）。
// 異なるユーザーIDの同期は独立している。
type Service struct {
	catalog    CatalogClient
	userRepo   repository.UserRepository
	mediaRepo  repository.MediaRepository
	entryRepo  repository.ListEntryRepository
	differ     *Differ
	assetCache AssetEnsurer
	metrics    MetricsRecorder
	logger     *slog.Logger

	// カバー画像アップロードの最大並列数
	maxConcurrentUploads int
}

// NewService はServiceの新しいインスタンスを生成する。
// maxConcurrentUploadsが0以下の場合はデフォルト値8を使用する。
func NewService(
	catalog CatalogClient,
	userRepo repository.UserRepository,
	mediaRepo repository.MediaRepository,
	entryRepo repository.ListEntryRepository,
	differ *Differ,
	assetCache AssetEnsurer,
	metrics MetricsRecorder,
	logger *slog.Logger,
	maxConcurrentUploads int,
) *Service {
	if maxConcurrentUploads <= 0 {
		maxConcurrentUploads = 8
	}
	return &Service{
		catalog:              catalog,
		userRepo:             userRepo,
		mediaRepo:            mediaRepo,
		entryRepo:            entryRepo,
		differ:               differ,
		assetCache:           assetCache,
		metrics:              metrics,
		logger:               logger,
		maxConcurrentUploads: maxConcurrentUploads,
	}
}

// SyncUser は指定リモートユーザーの同期を1回実行する。
//
// リモート取得の失敗は同期全体を中断する（差分を取る対象がないため）。
// 不正な部分日付も差分計算を中断する。どちらの場合もState=Failedの
// Reportとエラーを返す。適用段階のレコード単位の失敗はログに記録して
// スキップし、同期は継続する（グローバルなロールバックは行わない）。
func (s *Service) SyncUser(ctx context.Context, remoteUser *anilist.User) (*Report, error) {
	start := time.Now()
	report := &Report{State: StateNotStarted}

	// (1) リモートスナップショット取得
	report.State = StateFetching
	lists, err := s.catalog.GetLists(ctx, remoteUser.ID)
	if err != nil {
		report.State = StateFailed
		s.recordFailure(start)
		return report, fmt.Errorf("sync aborted: %w", err)
	}

	// (2) ローカルスナップショット読み込み（初回同期では空）
	localEntries, err := s.entryRepo.ListByUserID(ctx, remoteUser.ID)
	if err != nil {
		report.State = StateFailed
		s.recordFailure(start)
		return report, fmt.Errorf("failed to load local snapshot: %w", err)
	}
	localUser, err := s.userRepo.FindByID(ctx, remoteUser.ID)
	if err != nil {
		report.State = StateFailed
		s.recordFailure(start)
		return report, fmt.Errorf("failed to load local user: %w", err)
	}
	local := model.LocalSnapshot{User: localUser, Entries: localEntries}

	// (3) 対象リストのフィルタと正規化、(4) 差分計算
	report.State = StateDiffing
	canonical := FilterLists(lists)
	changeSet, err := s.differ.Diff(local, remoteUser, canonical)
	if err != nil {
		report.State = StateFailed
		s.recordFailure(start)
		var dateErr *model.InvalidDateError
		if errors.As(err, &dateErr) {
			s.logger.Error("diff aborted by invalid partial date",
				slog.Int("user_id", remoteUser.ID),
				slog.String("error", err.Error()),
			)
		}
		return report, fmt.Errorf("diff failed: %w", err)
	}

	// (5)(6) 画像参照の解決とChangeSetの適用
	report.State = StateApplying
	s.apply(ctx, changeSet, report)

	report.State = StateDone
	duration := time.Since(start)

	if s.metrics != nil {
		s.metrics.RecordSyncSuccess()
		s.metrics.RecordSyncDuration(duration)
		s.metrics.RecordRecordsUpserted(report.MediaUpserted + report.EntriesUpserted)
		s.metrics.RecordRecordsDeleted(report.EntriesDeleted)
		s.metrics.RecordRecordFailures(report.RecordsFailed)
	}

	s.logger.Info("sync completed",
		slog.Int("user_id", remoteUser.ID),
		slog.Int("media_upserted", report.MediaUpserted),
		slog.Int("entries_upserted", report.EntriesUpserted),
		slog.Int("entries_deleted", report.EntriesDeleted),
		slog.Int("records_failed", report.RecordsFailed),
		slog.Int("assets_uploaded", report.AssetsUploaded),
		slog.Int("assets_skipped", report.AssetsSkipped),
		slog.Int("assets_failed", report.AssetsFailed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return report, nil
}

// apply はChangeSetを永続化ストアへ適用する。
//
// ユーザー行はエントリ行の外部キー先であるため先に適用する。
// カバー画像の確定とそれに続く作品・エントリのUPSERTは作品IDごとに独立で、
// semaphoreパターンで並列実行する。各レコードのUPSERTは自分のカバー画像の
// アップロード結果だけを待ち、他の画像のネットワークI/Oにはブロックされない。
func (s *Service) apply(ctx context.Context, cs *model.ChangeSet, report *Report) {
	// ユーザーのアバター解決とUPSERT
	user := cs.UserUpsert
	outcome := s.assetCache.Ensure(ctx, assets.KindUser, user.UserID, user.AvatarSourceURL)
	s.noteAsset(outcome, report)
	user.AvatarS3 = outcome.Ref
	user.AvatarSourceURL = outcome.SourceURL
	if err := s.userRepo.Upsert(ctx, user); err != nil {
		s.logPersistence("upsert_user", user.UserID, 0, err)
		report.RecordsFailed++
	} else {
		report.UserUpserted = true
	}

	// 削除の適用
	for _, key := range cs.EntryDeletions {
		if err := s.entryRepo.Delete(ctx, key); err != nil {
			s.logPersistence("delete_entry", key.UserID, key.MediaID, err)
			report.RecordsFailed++
			continue
		}
		report.EntriesDeleted++
	}

	// 作品＋エントリの適用（作品IDごとに独立、並列）
	sem := make(chan struct{}, s.maxConcurrentUploads)
	var wg gosync.WaitGroup
	var mu gosync.Mutex

	for i := range cs.MediaUpserts {
		wg.Add(1)
		sem <- struct{}{}

		// MediaUpsertsとEntryUpsertsはDifferが同順で構築する
		go func(media model.Media, entry model.ListEntry) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := s.assetCache.Ensure(ctx, assets.KindMedia, media.MediaID, media.CoverSourceURL)
			media.CoverS3 = outcome.Ref
			media.CoverSourceURL = outcome.SourceURL

			mu.Lock()
			s.noteAsset(outcome, report)
			mu.Unlock()

			if err := s.mediaRepo.Upsert(ctx, &media); err != nil {
				s.logPersistence("upsert_media", entry.UserID, media.MediaID, err)
				mu.Lock()
				report.RecordsFailed++
				mu.Unlock()
				// 作品行がなければエントリ行は外部キー制約で失敗するため打ち切る
				return
			}

			mu.Lock()
			report.MediaUpserted++
			mu.Unlock()

			if err := s.entryRepo.Upsert(ctx, &entry); err != nil {
				s.logPersistence("upsert_entry", entry.UserID, entry.MediaID, err)
				mu.Lock()
				report.RecordsFailed++
				mu.Unlock()
				return
			}

			mu.Lock()
			report.EntriesUpserted++
			mu.Unlock()
		}(cs.MediaUpserts[i], cs.EntryUpserts[i])
	}

	wg.Wait()
}

// noteAsset は画像キャッシュの結果をReportとメトリクスに反映する。
// 並列実行時は呼び出し側でロックを保持すること。
func (s *Service) noteAsset(outcome assets.Outcome, report *Report) {
	switch outcome.Status {
	case assets.StatusUploaded:
		report.AssetsUploaded++
	case assets.StatusSkipped:
		report.AssetsSkipped++
	case assets.StatusFailed:
		report.AssetsFailed++
	}
	if s.metrics != nil {
		s.metrics.RecordAssetOutcome(outcome.Status.String())
	}
}

// logPersistence はレコード単位の永続化失敗を文脈付きでログに記録する。
// 手動での同期再実行に必要な情報（ユーザーID・作品ID・操作種別）を含める。
func (s *Service) logPersistence(op string, userID, mediaID int, err error) {
	perr := &model.PersistenceError{Op: op, UserID: userID, MediaID: mediaID, Err: err}
	s.logger.Error("record skipped",
		slog.String("op", op),
		slog.Int("user_id", userID),
		slog.Int("media_id", mediaID),
		slog.String("error", perr.Error()),
	)
}

// recordFailure は同期全体の失敗をメトリクスに記録する。
func (s *Service) recordFailure(start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordSyncFailure()
	s.metrics.RecordSyncDuration(time.Since(start))
}
