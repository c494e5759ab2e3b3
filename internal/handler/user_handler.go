// Package handler はミラーAPIのHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/animirror/internal/anilist"
	"github.com/hitoshi/animirror/internal/model"
)

// UserReaderInterface はユーザーハンドラーが必要とするローカル読み取りインターフェース。
type UserReaderInterface interface {
	// FindByName はユーザー名でローカルユーザーを検索する。未登録ならnilを返す。
	FindByName(ctx context.Context, name string) (*model.User, error)
}

// ListReaderInterface はリスト読み取りのインターフェース。
type ListReaderInterface interface {
	// ListByUserIDWithMedia はユーザーのエントリを作品情報付きで返す。
	ListByUserIDWithMedia(ctx context.Context, userID int) ([]model.ListEntryWithMedia, error)
}

// RemoteResolverInterface はリモートカタログでのユーザー名解決インターフェース。
type RemoteResolverInterface interface {
	// GetUserID はユーザー名からリモートユーザーを解決する。存在しなければnilを返す。
	GetUserID(ctx context.Context, username string) (*anilist.User, error)
}

// SyncSchedulerInterface は同期ジョブの起動インターフェース。
type SyncSchedulerInterface interface {
	// Schedule は同期をバックグラウンドで開始する。実行中なら開始せずfalseを返す。
	Schedule(user *anilist.User) bool
}

// UserHandler はミラーデータの閲覧と同期トリガーのHTTPハンドラー。
type UserHandler struct {
	users    UserReaderInterface
	lists    ListReaderInterface
	resolver RemoteResolverInterface
	syncer   SyncSchedulerInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(
	users UserReaderInterface,
	lists ListReaderInterface,
	resolver RemoteResolverInterface,
	syncer SyncSchedulerInterface,
) *UserHandler {
	return &UserHandler{
		users:    users,
		lists:    lists,
		resolver: resolver,
		syncer:   syncer,
	}
}

// usernamePattern はAniListユーザー名の許容パターン。
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,30}$`)

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// listEntryResponse はリストエントリ1件分のAPIレスポンス。
type listEntryResponse struct {
	MediaID      int     `json:"media_id"`
	Title        *string `json:"title"`
	TitleNative  *string `json:"title_native"`
	TitleRomaji  *string `json:"title_romaji"`
	TitleEnglish *string `json:"title_english"`
	Score        *int16  `json:"score"`
	Average      *int16  `json:"average"`
	StartDay     *string `json:"start_day"`
	EndDay       *string `json:"end_day"`
	Cover        string  `json:"cover"`
	Description  string  `json:"description"`
}

// mirrorResponse はGET /users/{username}のレスポンス。
type mirrorResponse struct {
	User userResponse        `json:"user"`
	List []listEntryResponse `json:"list"`
}

// syncAcceptedResponse は同期トリガーのレスポンス。
type syncAcceptedResponse struct {
	Status string `json:"status"`
	UserID int    `json:"user_id"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// GetMirror はローカルにミラー済みのユーザーとそのリストを返す。
// GET /users/{username}
func (h *UserHandler) GetMirror(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if !usernamePattern.MatchString(username) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidUsernameError())
		return
	}

	user, err := h.users.FindByName(r.Context(), username)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError(username))
		return
	}

	entries, err := h.lists.ListByUserIDWithMedia(r.Context(), user.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := mirrorResponse{
		User: userResponse{
			ID:     user.UserID,
			Name:   user.Name,
			Avatar: user.AvatarS3,
		},
		List: make([]listEntryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.List = append(resp.List, toListEntryResponse(e))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// TriggerSync はユーザー名を解決して同期をバックグラウンドで開始する。
// POST /users/{username}、PUT /users/{username}
//
// リモートカタログにユーザーが存在しない場合は404を返す。
// 同一ユーザーの同期が実行中の場合も202を返す（要求は受理済みとみなす）。
func (h *UserHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if !usernamePattern.MatchString(username) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidUsernameError())
		return
	}

	remoteUser, err := h.resolver.GetUserID(r.Context(), username)
	if err != nil {
		var lookupErr *model.RemoteLookupError
		if errors.As(err, &lookupErr) {
			slog.Error("remote user lookup failed",
				slog.String("username", username),
				slog.String("error", err.Error()),
			)
			writeAPIErrorResponse(w, http.StatusBadGateway, model.NewRemoteLookupFailedError())
			return
		}
		handleServiceError(w, err)
		return
	}
	if remoteUser == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError(username))
		return
	}

	status := "scheduled"
	if !h.syncer.Schedule(remoteUser) {
		status = "already_running"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(syncAcceptedResponse{
		Status: status,
		UserID: remoteUser.ID,
	})
}

// toListEntryResponse はエントリと作品情報をAPIレスポンス形式に変換する。
func toListEntryResponse(e model.ListEntryWithMedia) listEntryResponse {
	return listEntryResponse{
		MediaID:      e.MediaID,
		Title:        e.UserTitle,
		TitleNative:  e.Media.TitleNative,
		TitleRomaji:  e.Media.TitleRomaji,
		TitleEnglish: e.Media.TitleEnglish,
		Score:        e.Score,
		Average:      e.Media.Average,
		StartDay:     formatDay(e.StartDay),
		EndDay:       formatDay(e.EndDay),
		Cover:        e.Media.CoverS3,
		Description:  e.Media.Description,
	}
}

// formatDay は暦日付をYYYY-MM-DD形式の文字列に変換する。nilはnilのまま返す。
func formatDay(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidUsername:
		return http.StatusBadRequest
	case model.ErrCodeRemoteLookup:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
