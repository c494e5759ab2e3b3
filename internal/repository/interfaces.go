// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/animirror/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID int) (*model.User, error)

	// FindByName は指定名のユーザーを取得する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.User, error)

	// ListAll は登録済みの全ユーザーを取得する。
	ListAll(ctx context.Context) ([]*model.User, error)

	// Upsert はユーザーを主キーでUPSERTする（既存行は非キー列を全更新）。
	Upsert(ctx context.Context, user *model.User) error
}

// MediaRepository は作品データの永続化インターフェース。
type MediaRepository interface {
	// FindByID は指定IDの作品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, mediaID int) (*model.Media, error)

	// Upsert は作品を主キーでUPSERTする（既存行は非キー列を全更新）。
	Upsert(ctx context.Context, media *model.Media) error
}

// ListEntryRepository はリストエントリの永続化インターフェース。
type ListEntryRepository interface {
	// ListByUserID は指定ユーザーの全エントリを取得する。
	ListByUserID(ctx context.Context, userID int) ([]model.ListEntry, error)

	// ListByUserIDWithMedia は指定ユーザーの全エントリを作品情報と結合して取得する。
	ListByUserIDWithMedia(ctx context.Context, userID int) ([]model.ListEntryWithMedia, error)

	// Upsert はエントリを複合主キー(user_id, media_id)でUPSERTする。
	Upsert(ctx context.Context, entry *model.ListEntry) error

	// Delete は指定キーのエントリを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key model.EntryKey) error
}
