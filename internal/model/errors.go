// Package model はドメインモデルを定義する。
package model

import "fmt"

// RemoteLookupError はAniListへの問い合わせ失敗を表す。
// 通信・パース失敗時はErrに原因を保持する。ユーザーが存在しない場合は
// NotFoundがtrueになり、Errはnil。同期全体を中断させる。
type RemoteLookupError struct {
	Username string
	UserID   int
	NotFound bool
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *RemoteLookupError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("remote lookup: user %q not found", e.Username)
	}
	if e.Username != "" {
		return fmt.Sprintf("remote lookup failed for user %q: %v", e.Username, e.Err)
	}
	return fmt.Sprintf("remote lookup failed for user_id=%d: %v", e.UserID, e.Err)
}

// Unwrap は原因となったエラーを返す。
func (e *RemoteLookupError) Unwrap() error { return e.Err }

// InvalidDateError は年月日がすべて揃っているのに暦として不正な日付を表す。
// 上流データの異常を示すため、握りつぶさずに差分計算を中断させる。
type InvalidDateError struct {
	Year  int
	Month int
	Day   int
}

// Error はerrorインターフェースを実装する。
func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid calendar date: %04d-%02d-%02d", e.Year, e.Month, e.Day)
}

// PersistenceError は単一レコードのUPSERT/削除失敗を表す。
// ログに記録して該当レコードをスキップし、同期は継続する。
type PersistenceError struct {
	Op      string // "upsert_user", "upsert_media", "upsert_entry", "delete_entry"
	UserID  int
	MediaID int
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed (user_id=%d, media_id=%d): %v", e.Op, e.UserID, e.MediaID, e.Err)
}

// Unwrap は原因となったエラーを返す。
func (e *PersistenceError) Unwrap() error { return e.Err }

// AssetError は画像のダウンロードまたはアップロードの失敗を表す。
// ローカル参照は更新せず、直前のキャッシュを使い続ける。
type AssetError struct {
	Kind string // "user" or "media"
	ID   int
	URL  string
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *AssetError) Error() string {
	return fmt.Sprintf("asset %s_%d from %s: %v", e.Kind, e.ID, e.URL, e.Err)
}

// Unwrap は原因となったエラーを返す。
func (e *AssetError) Unwrap() error { return e.Err }

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, sync, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUserNotFound    = "USER_NOT_FOUND"
	ErrCodeInvalidUsername = "INVALID_USERNAME"
	ErrCodeRemoteLookup    = "REMOTE_LOOKUP_FAILED"
)

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", username),
		Category: "sync",
		Action:   "AniListのユーザー名を確認してください。",
	}
}

// NewInvalidUsernameError は無効なユーザー名エラーを生成する。
func NewInvalidUsernameError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidUsername,
		Message:  "ユーザー名が空です。",
		Category: "validation",
		Action:   "AniListのユーザー名を指定してください。",
	}
}

// NewRemoteLookupFailedError はAniList問い合わせ失敗エラーを生成する。
func NewRemoteLookupFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeRemoteLookup,
		Message:  "AniListへの問い合わせに失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
