package anilist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/animirror/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// graphqlServer は固定レスポンスを返すテスト用GraphQLサーバーを起動する。
func graphqlServer(t *testing.T, status int, response string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s", ct)
		}
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return server
}

// TestGetUserID_Found はユーザー名解決の正常系を検証する。
func TestGetUserID_Found(t *testing.T) {
	server := graphqlServer(t, http.StatusOK, `{
		"data": {
			"User": {
				"id": 100,
				"name": "hitoshi",
				"avatar": {"large": "https://img.example/avatar.png"}
			}
		}
	}`)

	c := NewClient(server.Client(), testLogger(), server.URL)

	user, err := c.GetUserID(context.Background(), "hitoshi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil {
		t.Fatal("user is nil")
	}
	if user.ID != 100 || user.Name != "hitoshi" {
		t.Errorf("user = %+v", user)
	}
	if user.Avatar.Large != "https://img.example/avatar.png" {
		t.Errorf("Avatar.Large = %q", user.Avatar.Large)
	}
}

// TestGetUserID_NotFound は存在しないユーザーが(nil, nil)になることを検証する。
// AniListは未知のユーザー名に404とGraphQLエラーを返す。
func TestGetUserID_NotFound(t *testing.T) {
	server := graphqlServer(t, http.StatusNotFound, `{
		"data": {"User": null},
		"errors": [{"message": "User not found", "status": 404}]
	}`)

	c := NewClient(server.Client(), testLogger(), server.URL)

	user, err := c.GetUserID(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != nil {
		t.Errorf("user = %+v, want nil", user)
	}
}

// TestGetUserID_ServerError はサーバーエラーがRemoteLookupErrorになることを検証する。
func TestGetUserID_ServerError(t *testing.T) {
	server := graphqlServer(t, http.StatusInternalServerError, `{}`)

	c := NewClient(server.Client(), testLogger(), server.URL)

	_, err := c.GetUserID(context.Background(), "hitoshi")

	var lookupErr *model.RemoteLookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("error = %v, want *model.RemoteLookupError", err)
	}
	if lookupErr.Username != "hitoshi" {
		t.Errorf("Username = %q", lookupErr.Username)
	}
}

// TestGetLists_Success はリスト取得の正常系を検証する。
// 部分日付やスコアのnull値も正しくパースされる。
func TestGetLists_Success(t *testing.T) {
	server := graphqlServer(t, http.StatusOK, `{
		"data": {
			"MediaListCollection": {
				"lists": [
					{
						"name": "Completed",
						"entries": [
							{
								"scoreRaw": 85,
								"startedAt": {"year": 2023, "month": 4, "day": 1},
								"completedAt": {"year": null, "month": null, "day": null},
								"media": {
									"id": 1,
									"title": {
										"userPreferred": "Alpha",
										"english": null,
										"romaji": "Arufa",
										"native": "アルファ"
									},
									"description": "<p>desc</p>",
									"coverImage": {"large": "https://img.example/1.jpg"},
									"averageScore": 78,
									"siteUrl": "https://anilist.co/anime/1"
								}
							}
						]
					},
					{"name": "Planning", "entries": []}
				]
			}
		}
	}`)

	c := NewClient(server.Client(), testLogger(), server.URL)

	lists, err := c.GetLists(context.Background(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(lists) != 2 {
		t.Fatalf("lists = %d, want 2", len(lists))
	}
	if lists[0].Name != "Completed" {
		t.Errorf("Name = %q", lists[0].Name)
	}

	e := lists[0].Entries[0]
	if e.ScoreRaw == nil || *e.ScoreRaw != 85 {
		t.Errorf("ScoreRaw = %v", e.ScoreRaw)
	}
	if e.StartedAt.Year == nil || *e.StartedAt.Year != 2023 {
		t.Errorf("StartedAt.Year = %v", e.StartedAt.Year)
	}
	if e.CompletedAt.Year != nil {
		t.Errorf("CompletedAt.Year = %v, want nil", e.CompletedAt.Year)
	}
	if e.Media.ID != 1 {
		t.Errorf("Media.ID = %d", e.Media.ID)
	}
	if e.Media.Title.English != nil {
		t.Errorf("Title.English = %v, want nil", e.Media.Title.English)
	}
	if e.Media.AverageScore == nil || *e.Media.AverageScore != 78 {
		t.Errorf("AverageScore = %v", e.Media.AverageScore)
	}
}

// TestGetLists_GraphQLError はGraphQLエラーがRemoteLookupErrorになることを検証する。
func TestGetLists_GraphQLError(t *testing.T) {
	server := graphqlServer(t, http.StatusBadRequest, `{
		"errors": [{"message": "Invalid user id", "status": 400}]
	}`)

	c := NewClient(server.Client(), testLogger(), server.URL)

	_, err := c.GetLists(context.Background(), -1)

	var lookupErr *model.RemoteLookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("error = %v, want *model.RemoteLookupError", err)
	}
	if lookupErr.UserID != -1 {
		t.Errorf("UserID = %d", lookupErr.UserID)
	}
}

// TestClient_SendsVariables はGraphQL変数が正しく送信されることを検証する。
func TestClient_SendsVariables(t *testing.T) {
	var received graphqlRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Write([]byte(`{"data": {"User": null}}`))
	}))
	t.Cleanup(server.Close)

	c := NewClient(server.Client(), testLogger(), server.URL)

	if _, err := c.GetUserID(context.Background(), "hitoshi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if received.Variables["name"] != "hitoshi" {
		t.Errorf("variables = %v", received.Variables)
	}
	if received.Query == "" {
		t.Error("query is empty")
	}
}

// TestNewClient_DefaultEndpoint はendpoint未指定時に本番エンドポイントが
// 使われることを検証する。
func TestNewClient_DefaultEndpoint(t *testing.T) {
	c := NewClient(http.DefaultClient, testLogger(), "")
	if c.endpoint != defaultEndpoint {
		t.Errorf("endpoint = %q, want %q", c.endpoint, defaultEndpoint)
	}
}
