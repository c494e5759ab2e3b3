package anilist

// User はAniListユーザーの問い合わせ結果を表す。
type User struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Avatar Image  `json:"avatar"`
}

// Image は画像URLのコンテナ。
type Image struct {
	Large string `json:"large"`
}

// PartialDate は年月日が独立して欠けうるAniListのFuzzyDate。
// 3要素が揃ったときのみ暦日付に変換できる。永続化はされない。
type PartialDate struct {
	Year  *int `json:"year"`
	Month *int `json:"month"`
	Day   *int `json:"day"`
}

// Title は作品タイトルの各表記。すべて任意。
type Title struct {
	UserPreferred *string `json:"userPreferred"`
	English       *string `json:"english"`
	Romaji        *string `json:"romaji"`
	Native        *string `json:"native"`
}

// Media はリストエントリに含まれる作品情報。
type Media struct {
	ID           int    `json:"id"`
	Title        Title  `json:"title"`
	Description  string `json:"description"`
	CoverImage   Image  `json:"coverImage"`
	AverageScore *int16 `json:"averageScore"`
	SiteURL      string `json:"siteUrl"`
}

// Entry はユーザー1人の作品1件分の視聴記録。
type Entry struct {
	ScoreRaw    *int16      `json:"scoreRaw"`
	StartedAt   PartialDate `json:"startedAt"`
	CompletedAt PartialDate `json:"completedAt"`
	Media       Media       `json:"media"`
}

// MediaList は名前付きリスト（"Completed"、"Watching"等）とそのエントリ群。
type MediaList struct {
	Name    string  `json:"name"`
	Entries []Entry `json:"entries"`
}

// graphqlError はGraphQLレスポンスのエラー要素。
type graphqlError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// userResponse はユーザー問い合わせのレスポンス全体。
type userResponse struct {
	Data struct {
		User *User `json:"User"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

// listResponse はリスト問い合わせのレスポンス全体。
type listResponse struct {
	Data struct {
		MediaListCollection struct {
			Lists []MediaList `json:"lists"`
		} `json:"MediaListCollection"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}
