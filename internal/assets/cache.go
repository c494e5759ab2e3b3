// Package assets はリモート画像のダウンロードとオブジェクトストレージへの
// キャッシュを提供する。ソースURLが前回同期から変わっていない画像は
// 再アップロードしない（変更検知ガード）。
package assets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hitoshi/animirror/internal/model"
	"github.com/hitoshi/animirror/internal/repository"
	"github.com/hitoshi/animirror/internal/storage"
)

// Kind はキャッシュ対象の画像種別。ストレージキーのプレフィックスになる。
type Kind string

const (
	// KindUser はユーザーアバター画像。
	KindUser Kind = "user"
	// KindMedia は作品カバー画像。
	KindMedia Kind = "media"
)

// Status はEnsureの結果種別。
type Status int

const (
	// StatusSkipped はソースURL未変更によりアップロードを省略したことを示す。
	StatusSkipped Status = iota
	// StatusUploaded は新しい画像をアップロードしたことを示す。
	StatusUploaded
	// StatusFailed はダウンロードまたはアップロードに失敗したことを示す。
	StatusFailed
)

// String はStatusの文字列表現を返す。
func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusUploaded:
		return "uploaded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome はEnsureの結果。RefとSourceURLはレコードに永続化すべき値を表す。
// Skippedでは既存値、Uploadedでは新しい値、Failedでは既存値がそのまま入る
// （失敗時は直前のキャッシュを使い続けるフェイルセーフ）。
type Outcome struct {
	Status    Status
	Ref       string
	SourceURL string
	Err       error
}

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Cache は画像キャッシュの管理を行う。
// 永続化済みのソースURLとの比較で再アップロード要否を判定する。
type Cache struct {
	userRepo  repository.UserRepository
	mediaRepo repository.MediaRepository
	store     storage.ObjectStore
	ssrfGuard SSRFValidator
	logger    *slog.Logger
	timeout   time.Duration
	maxSize   int64
}

// NewCache はCacheの新しいインスタンスを生成する。
func NewCache(
	userRepo repository.UserRepository,
	mediaRepo repository.MediaRepository,
	store storage.ObjectStore,
	ssrfGuard SSRFValidator,
	logger *slog.Logger,
	timeout time.Duration,
	maxSize int64,
) *Cache {
	return &Cache{
		userRepo:  userRepo,
		mediaRepo: mediaRepo,
		store:     store,
		ssrfGuard: ssrfGuard,
		logger:    logger,
		timeout:   timeout,
		maxSize:   maxSize,
	}
}

// Ensure は指定IDの画像キャッシュを最新化する。
// 永続化済みのソースURLがsourceURLと完全一致する場合はSkippedを返す。
// それ以外はダウンロードして {kind}_{id}.{ext} キーにアップロードし、
// 新しい公開URLをRefに入れて返す。
// 失敗時はFailedを返し、RefとSourceURLには既存の値を入れる。
// 呼び出し元はFailed時にソースURLも更新しないこと（次回同期で再試行される）。
func (c *Cache) Ensure(ctx context.Context, kind Kind, id int, sourceURL string) Outcome {
	prevSource, prevRef, err := c.lookupCurrent(ctx, kind, id)
	if err != nil {
		return c.failed(kind, id, sourceURL, "", "", fmt.Errorf("failed to look up current source: %w", err))
	}

	// 変更検知ガード: ソースURLが一致するなら再アップロード不要
	if sourceURL != "" && sourceURL == prevSource {
		return Outcome{Status: StatusSkipped, Ref: prevRef, SourceURL: prevSource}
	}

	ext, err := extFromURL(sourceURL)
	if err != nil {
		return c.failed(kind, id, sourceURL, prevRef, prevSource, err)
	}

	body, err := c.download(ctx, sourceURL)
	if err != nil {
		return c.failed(kind, id, sourceURL, prevRef, prevSource, err)
	}

	key := fmt.Sprintf("assets/images/%s_%d.%s", kind, id, ext)
	if err := c.store.Put(ctx, key, body, naiveMIME(ext)); err != nil {
		return c.failed(kind, id, sourceURL, prevRef, prevSource, err)
	}

	return Outcome{
		Status:    StatusUploaded,
		Ref:       c.store.PublicURL(key),
		SourceURL: sourceURL,
	}
}

// lookupCurrent は永続化済みのソースURLとローカル参照を取得する。
// レコードが存在しない場合は空文字列のペアを返す。
func (c *Cache) lookupCurrent(ctx context.Context, kind Kind, id int) (sourceURL, ref string, err error) {
	switch kind {
	case KindUser:
		user, err := c.userRepo.FindByID(ctx, id)
		if err != nil {
			return "", "", err
		}
		if user == nil {
			return "", "", nil
		}
		return user.AvatarSourceURL, user.AvatarS3, nil
	case KindMedia:
		media, err := c.mediaRepo.FindByID(ctx, id)
		if err != nil {
			return "", "", err
		}
		if media == nil {
			return "", "", nil
		}
		return media.CoverSourceURL, media.CoverS3, nil
	default:
		return "", "", fmt.Errorf("unknown asset kind: %s", kind)
	}
}

// download はSSRF検証済みクライアントで画像の全ボディを取得する。
func (c *Cache) download(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.ssrfGuard.ValidateURL(rawURL); err != nil {
		return nil, fmt.Errorf("url validation failed: %w", err)
	}

	client := c.ssrfGuard.NewSafeClient(c.timeout, c.maxSize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Animirror/1.0 AniList Mirror")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > c.maxSize {
		return nil, fmt.Errorf("image exceeds max size %d", c.maxSize)
	}

	return body, nil
}

// failed はFailed Outcomeを構築し、警告ログを出力する。
func (c *Cache) failed(kind Kind, id int, sourceURL, prevRef, prevSource string, err error) Outcome {
	assetErr := &model.AssetError{Kind: string(kind), ID: id, URL: sourceURL, Err: err}
	c.logger.Warn("asset refresh failed, keeping previous reference",
		slog.String("kind", string(kind)),
		slog.Int("id", id),
		slog.String("source_url", sourceURL),
		slog.String("error", err.Error()),
	)
	return Outcome{Status: StatusFailed, Ref: prevRef, SourceURL: prevSource, Err: assetErr}
}

// extFromURL はURL末尾のパスセグメントから拡張子を導出する。
func extFromURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid image URL: %w", err)
	}

	ext := strings.TrimPrefix(path.Ext(parsed.Path), ".")
	if ext == "" {
		return "", fmt.Errorf("image URL has no extension: %s", rawURL)
	}

	return strings.ToLower(ext), nil
}

// naiveMIME は拡張子からContent-Typeを導出する。
// jpg/jpegはimage/jpeg、それ以外はimage/<ext>として扱う。
func naiveMIME(ext string) string {
	if ext == "jpg" || ext == "jpeg" {
		return "image/jpeg"
	}
	return "image/" + ext
}
