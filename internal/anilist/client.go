// Package anilist はAniList GraphQL APIのクライアントを提供する。
// ユーザー名→数値IDの解決と、ユーザーの全リスト取得の2種類の問い合わせを行う。
package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/animirror/internal/model"
)

// defaultEndpoint はAniList GraphQL APIのエンドポイント。
const defaultEndpoint = "https://graphql.anilist.co"

// userQuery はユーザー名から数値IDとアバターを解決するクエリ。
const userQuery = `query ($name: String) {
  User(name: $name) {
    id
    name
    avatar {
      large
    }
  }
}`

// listQuery はユーザーIDから全アニメリストを取得するクエリ。
// スコアはPOINT_100形式で取得する。
const listQuery = `query ($userId: Int) {
  MediaListCollection(userId: $userId, type: ANIME) {
    lists {
      name
      entries {
        scoreRaw: score(format: POINT_100)
        startedAt {
          year
          month
          day
        }
        completedAt {
          year
          month
          day
        }
        media {
          id
          title {
            userPreferred
            english
            romaji
            native
          }
          description(asHtml: true)
          coverImage {
            large
          }
          averageScore
          siteUrl
        }
      }
    }
  }
}`

// Client はAniList GraphQL APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// endpointが空の場合は本番エンドポイントを使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, endpoint string) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
	}
}

// graphqlRequest はGraphQLリクエストボディ。
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// GetUserID はユーザー名からAniListユーザーを解決する。
// ユーザーが存在しない場合は(nil, nil)を返す。
// 通信・パース失敗時はmodel.RemoteLookupErrorを返す。
func (c *Client) GetUserID(ctx context.Context, username string) (*User, error) {
	body, err := c.post(ctx, graphqlRequest{
		Query:     userQuery,
		Variables: map[string]any{"name": username},
	})
	if err != nil {
		return nil, &model.RemoteLookupError{Username: username, Err: err}
	}

	var resp userResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &model.RemoteLookupError{Username: username, Err: fmt.Errorf("failed to parse user response: %w", err)}
	}

	// ユーザー名が無効な場合、dataにはnullが入りerrorsが返る
	if resp.Data.User == nil {
		c.logger.Warn("user not found on AniList",
			slog.String("username", username),
		)
		return nil, nil
	}

	return resp.Data.User, nil
}

// GetLists は数値ユーザーIDから全アニメリストを取得する。
// 通信・パース失敗時はmodel.RemoteLookupErrorを返す。
func (c *Client) GetLists(ctx context.Context, userID int) ([]MediaList, error) {
	body, err := c.post(ctx, graphqlRequest{
		Query:     listQuery,
		Variables: map[string]any{"userId": userID},
	})
	if err != nil {
		return nil, &model.RemoteLookupError{UserID: userID, Err: err}
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &model.RemoteLookupError{UserID: userID, Err: fmt.Errorf("failed to parse list response: %w", err)}
	}

	if len(resp.Errors) > 0 {
		return nil, &model.RemoteLookupError{
			UserID: userID,
			Err:    fmt.Errorf("graphql error: %s", resp.Errors[0].Message),
		}
	}

	return resp.Data.MediaListCollection.Lists, nil
}

// post はGraphQLリクエストをPOSTし、レスポンスボディを返す。
func (c *Client) post(ctx context.Context, reqBody graphqlRequest) ([]byte, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Animirror/1.0 AniList Mirror")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("AniList request failed",
			slog.String("endpoint", c.endpoint),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// AniListはGraphQLエラー時も404/400を返すことがあるため、ボディは常にパースする
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound &&
		resp.StatusCode != http.StatusBadRequest {
		c.logger.Error("AniList returned error status",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("anilist returned status %d", resp.StatusCode)
	}

	return body, nil
}
