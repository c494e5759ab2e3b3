package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/animirror/internal/anilist"
	"github.com/hitoshi/animirror/internal/model"
)

// --- テスト用モック ---

// mockUserReader はテスト用のUserReaderInterfaceモック。
type mockUserReader struct {
	user *model.User
	err  error
}

func (m *mockUserReader) FindByName(_ context.Context, name string) (*model.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.user != nil && m.user.Name == name {
		return m.user, nil
	}
	return nil, nil
}

// mockListReader はテスト用のListReaderInterfaceモック。
type mockListReader struct {
	entries []model.ListEntryWithMedia
	err     error
}

func (m *mockListReader) ListByUserIDWithMedia(_ context.Context, userID int) ([]model.ListEntryWithMedia, error) {
	return m.entries, m.err
}

// mockResolver はテスト用のRemoteResolverInterfaceモック。
type mockResolver struct {
	user *anilist.User
	err  error
}

func (m *mockResolver) GetUserID(_ context.Context, username string) (*anilist.User, error) {
	return m.user, m.err
}

// mockScheduler はテスト用のSyncSchedulerInterfaceモック。
type mockScheduler struct {
	accepted  bool
	scheduled []*anilist.User
}

func (m *mockScheduler) Schedule(user *anilist.User) bool {
	m.scheduled = append(m.scheduled, user)
	return m.accepted
}

// newTestRouter はハンドラーをchiルーティングに載せたテスト用ルーターを返す。
func newTestRouter(h *UserHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/users/{username}", h.GetMirror)
	r.Post("/users/{username}", h.TriggerSync)
	r.Put("/users/{username}", h.TriggerSync)
	return r
}

func strPtr(s string) *string { return &s }

func int16Ptr(v int16) *int16 { return &v }

// TestGetMirror_Success はミラー済みユーザーの取得を検証する。
func TestGetMirror_Success(t *testing.T) {
	start := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	entry := model.ListEntryWithMedia{
		ListEntry: model.ListEntry{
			UserID:    100,
			MediaID:   1,
			UserTitle: strPtr("Alpha"),
			StartDay:  &start,
			Score:     int16Ptr(85),
		},
		Media: model.Media{
			MediaID:      1,
			Description:  "<p>desc</p>",
			CoverS3:      "https://cdn.example/assets/images/media_1.jpg",
			Average:      int16Ptr(78),
			TitleRomaji:  strPtr("Arufa"),
			TitleNative:  strPtr("アルファ"),
			TitleEnglish: nil,
		},
	}

	h := NewUserHandler(
		&mockUserReader{user: &model.User{UserID: 100, Name: "hitoshi", AvatarS3: "https://cdn.example/assets/images/user_100.png"}},
		&mockListReader{entries: []model.ListEntryWithMedia{entry}},
		&mockResolver{},
		&mockScheduler{},
	)

	req := httptest.NewRequest(http.MethodGet, "/users/hitoshi", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	var resp mirrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp.User.ID != 100 || resp.User.Name != "hitoshi" {
		t.Errorf("user = %+v", resp.User)
	}
	if resp.User.Avatar != "https://cdn.example/assets/images/user_100.png" {
		t.Errorf("avatar = %q", resp.User.Avatar)
	}
	if len(resp.List) != 1 {
		t.Fatalf("list = %d entries, want 1", len(resp.List))
	}
	got := resp.List[0]
	if got.MediaID != 1 || got.Title == nil || *got.Title != "Alpha" {
		t.Errorf("entry = %+v", got)
	}
	if got.StartDay == nil || *got.StartDay != "2023-04-01" {
		t.Errorf("StartDay = %v, want 2023-04-01", got.StartDay)
	}
	if got.EndDay != nil {
		t.Errorf("EndDay = %v, want nil", got.EndDay)
	}
	if got.Score == nil || *got.Score != 85 {
		t.Errorf("Score = %v", got.Score)
	}
}

// TestGetMirror_NotFound は未ミラーのユーザーが404になることを検証する。
func TestGetMirror_NotFound(t *testing.T) {
	h := NewUserHandler(&mockUserReader{}, &mockListReader{}, &mockResolver{}, &mockScheduler{})

	req := httptest.NewRequest(http.MethodGet, "/users/nobody", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var resp apiErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Code != model.ErrCodeUserNotFound {
		t.Errorf("Code = %q, want %q", resp.Code, model.ErrCodeUserNotFound)
	}
}

// TestGetMirror_InvalidUsername は不正なユーザー名が400になることを検証する。
func TestGetMirror_InvalidUsername(t *testing.T) {
	h := NewUserHandler(&mockUserReader{}, &mockListReader{}, &mockResolver{}, &mockScheduler{})

	req := httptest.NewRequest(http.MethodGet, "/users/bad%20name!", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// TestGetMirror_RepoError はリポジトリエラーが500になることを検証する。
func TestGetMirror_RepoError(t *testing.T) {
	h := NewUserHandler(
		&mockUserReader{err: errors.New("db down")},
		&mockListReader{}, &mockResolver{}, &mockScheduler{},
	)

	req := httptest.NewRequest(http.MethodGet, "/users/hitoshi", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

// TestTriggerSync_Scheduled は同期トリガーの正常系を検証する。
func TestTriggerSync_Scheduled(t *testing.T) {
	remote := &anilist.User{ID: 100, Name: "hitoshi"}
	scheduler := &mockScheduler{accepted: true}
	h := NewUserHandler(&mockUserReader{}, &mockListReader{}, &mockResolver{user: remote}, scheduler)

	req := httptest.NewRequest(http.MethodPost, "/users/hitoshi", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	var resp syncAcceptedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Status != "scheduled" || resp.UserID != 100 {
		t.Errorf("resp = %+v", resp)
	}
	if len(scheduler.scheduled) != 1 || scheduler.scheduled[0].ID != 100 {
		t.Errorf("scheduled = %+v", scheduler.scheduled)
	}
}

// TestTriggerSync_AlreadyRunning は実行中の同期がある場合も
// 202でalready_runningが返ることを検証する。
func TestTriggerSync_AlreadyRunning(t *testing.T) {
	remote := &anilist.User{ID: 100, Name: "hitoshi"}
	h := NewUserHandler(&mockUserReader{}, &mockListReader{}, &mockResolver{user: remote}, &mockScheduler{accepted: false})

	req := httptest.NewRequest(http.MethodPut, "/users/hitoshi", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	var resp syncAcceptedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Status != "already_running" {
		t.Errorf("Status = %q, want already_running", resp.Status)
	}
}

// TestTriggerSync_RemoteNotFound はリモートに存在しないユーザーが
// 404になることを検証する。
func TestTriggerSync_RemoteNotFound(t *testing.T) {
	scheduler := &mockScheduler{accepted: true}
	h := NewUserHandler(&mockUserReader{}, &mockListReader{}, &mockResolver{}, scheduler)

	req := httptest.NewRequest(http.MethodPost, "/users/nobody", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if len(scheduler.scheduled) != 0 {
		t.Error("sync must not be scheduled for unknown user")
	}
}

// TestTriggerSync_RemoteLookupFailure はリモート問い合わせ失敗が
// 502になることを検証する。
func TestTriggerSync_RemoteLookupFailure(t *testing.T) {
	h := NewUserHandler(
		&mockUserReader{}, &mockListReader{},
		&mockResolver{err: &model.RemoteLookupError{Username: "hitoshi", Err: errors.New("timeout")}},
		&mockScheduler{},
	)

	req := httptest.NewRequest(http.MethodPost, "/users/hitoshi", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}

	var resp apiErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Code != model.ErrCodeRemoteLookup {
		t.Errorf("Code = %q, want %q", resp.Code, model.ErrCodeRemoteLookup)
	}
}
