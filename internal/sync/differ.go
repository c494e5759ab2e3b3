package sync

import (
	"github.com/hitoshi/animirror/internal/anilist"
	"github.com/hitoshi/animirror/internal/model"
	"github.com/hitoshi/animirror/internal/security"
)

// Differ はローカルスナップショットと正規化済みエントリ列からChangeSetを計算する。
// 副作用を持たない純粋な計算で、同一入力に対して常に構造的に等しい結果を返す。
type Differ struct {
	sanitizer security.DescriptionSanitizerService
}

// NewDiffer はDifferの新しいインスタンスを生成する。
func NewDiffer(sanitizer security.DescriptionSanitizerService) *Differ {
	return &Differ{sanitizer: sanitizer}
}

// Diff はローカル状態をリモートの正規化済みビューに一致させるChangeSetを計算する。
//
//   - EntryDeletions: ローカルに存在し正規化済みビューに存在しないキー
//     （リモートで削除されたか対象外リストへ移動したエントリ）
//   - EntryUpserts: 正規化済みエントリ1件につき1レコード。変更有無は判定しない
//     （永続化層のUPSERTが無変更書き込みを吸収するため冪等）
//   - MediaUpserts: EntryUpsertsと作品IDで1対1に対応
//   - UserUpsert: 同期サイクルごとに無条件で設定する
//
// S3参照フィールド（AvatarS3/CoverS3）はここでは設定しない。
// 適用時にAssetCacheの結果で埋められる。
// 不正な部分日付があった場合はmodel.InvalidDateErrorを返し、
// 部分的なChangeSetは生成しない（フェイルファスト）。
func (d *Differ) Diff(local model.LocalSnapshot, remoteUser *anilist.User, canonical []CanonicalEntry) (*model.ChangeSet, error) {
	cs := &model.ChangeSet{
		UserUpsert: &model.User{
			UserID:          remoteUser.ID,
			Name:            remoteUser.Name,
			AvatarSourceURL: remoteUser.Avatar.Large,
		},
	}

	target := make(map[model.EntryKey]struct{}, len(canonical))

	for _, entry := range canonical {
		start, err := NormalizeDate(entry.StartedAt)
		if err != nil {
			return nil, err
		}
		end, err := NormalizeDate(entry.CompletedAt)
		if err != nil {
			return nil, err
		}

		key := model.EntryKey{UserID: remoteUser.ID, MediaID: entry.MediaID}
		target[key] = struct{}{}

		cs.EntryUpserts = append(cs.EntryUpserts, model.ListEntry{
			UserID:    remoteUser.ID,
			MediaID:   entry.MediaID,
			UserTitle: entry.UserTitle,
			StartDay:  start,
			EndDay:    end,
			Score:     entry.Score,
		})

		cs.MediaUpserts = append(cs.MediaUpserts, d.buildMedia(entry.Media))
	}

	// ローカルにあって対象ビューにないエントリは削除対象
	for _, entry := range local.Entries {
		if _, ok := target[entry.Key()]; !ok {
			cs.EntryDeletions = append(cs.EntryDeletions, entry.Key())
		}
	}

	return cs, nil
}

// buildMedia はリモート作品情報から永続化用レコードを構築する。
// 説明文はサニタイズ済みHTMLとタグ除去済みテキストの両方を保持する。
func (d *Differ) buildMedia(m anilist.Media) model.Media {
	sanitized := d.sanitizer.Sanitize(m.Description)
	return model.Media{
		MediaID:         m.ID,
		Description:     sanitized,
		DescriptionText: d.sanitizer.StripTags(sanitized),
		CoverSourceURL:  m.CoverImage.Large,
		Average:         m.AverageScore,
		TitleNative:     m.Title.Native,
		TitleRomaji:     m.Title.Romaji,
		TitleEnglish:    m.Title.English,
	}
}
