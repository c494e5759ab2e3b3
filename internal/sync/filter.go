// Package sync はAniListのリモートスナップショットとローカルDBの
// 突き合わせ（フィルタ・差分計算・適用）を提供する。
package sync

import (
	"strings"

	"github.com/hitoshi/animirror/internal/anilist"
)

// CanonicalEntry は同期対象リストから正規化・重複排除された作品1件分のエントリ。
// 差分計算の入力になる。
type CanonicalEntry struct {
	MediaID     int
	Score       *int16
	StartedAt   anilist.PartialDate
	CompletedAt anilist.PartialDate
	UserTitle   *string
	Media       anilist.Media
}

// inScopeSubstrings は同期対象リスト名の部分一致パターン（小文字化して比較）。
// "Completed"/"Watching"のほか"Rewatching"等のカスタムリストも拾う部分一致方式を
// 採用している（完全一致方式は不採用。DESIGN.md参照）。
var inScopeSubstrings = []string{"completed", "watching"}

// isInScope はリスト名が同期対象かを判定する。
func isInScope(name string) bool {
	lower := strings.ToLower(name)
	for _, sub := range inScopeSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// FilterLists は同期対象リストのエントリを1本の列に平坦化し、正規化して返す。
//
// 同一作品IDが複数の対象リストに現れた場合は後勝ち（リスト順→エントリ順）で
// 1件に畳み込む。出力順は初出順で安定している。
// 表示タイトルはuserPreferredのみを採用し、欠けていてもenglish/romaji/nativeへの
// フォールバックは行わない。
func FilterLists(lists []anilist.MediaList) []CanonicalEntry {
	byMedia := make(map[int]int) // media id → entries内の位置
	var entries []CanonicalEntry

	for _, list := range lists {
		if !isInScope(list.Name) {
			continue
		}

		for _, e := range list.Entries {
			canonical := CanonicalEntry{
				MediaID:     e.Media.ID,
				Score:       e.ScoreRaw,
				StartedAt:   e.StartedAt,
				CompletedAt: e.CompletedAt,
				UserTitle:   e.Media.Title.UserPreferred,
				Media:       e.Media,
			}

			if pos, ok := byMedia[e.Media.ID]; ok {
				// 後勝ちで上書き、位置は初出のまま維持する
				entries[pos] = canonical
				continue
			}

			byMedia[e.Media.ID] = len(entries)
			entries = append(entries, canonical)
		}
	}

	return entries
}
