// Package model はドメインモデルを定義する。
package model

import "time"

// User はAniListユーザーのローカルミラーを表す。
// UserIDはAniList側の数値IDをそのまま主キーとして使用する（不変）。
type User struct {
	UserID          int
	Name            string
	AvatarS3        string
	AvatarSourceURL string
}

// Media はアニメ作品のローカルミラーを表す。
// Descriptionはサニタイズ済みHTML、DescriptionTextはタグ除去済みプレーンテキスト。
type Media struct {
	MediaID         int
	Description     string
	DescriptionText string
	CoverS3         string
	CoverSourceURL  string
	Average         *int16
	TitleNative     *string
	TitleRomaji     *string
	TitleEnglish    *string
}

// ListEntry はユーザーのリスト1行を表す。
// (UserID, MediaID) が複合主キー。
type ListEntry struct {
	UserID    int
	MediaID   int
	UserTitle *string
	StartDay  *time.Time
	EndDay    *time.Time
	Score     *int16
}

// EntryKey はリストエントリの複合キー。
type EntryKey struct {
	UserID  int
	MediaID int
}

// Key はエントリの複合キーを返す。
func (e ListEntry) Key() EntryKey {
	return EntryKey{UserID: e.UserID, MediaID: e.MediaID}
}

// ListEntryWithMedia はリストエントリと作品情報を結合した読み取り用ビュー。
type ListEntryWithMedia struct {
	ListEntry
	Media Media
}

// LocalSnapshot は1ユーザー分の永続化済み状態のスナップショット。
// 初回同期前のユーザーではUserがnil、Entriesが空になる。
type LocalSnapshot struct {
	User    *User
	Entries []ListEntry
}
