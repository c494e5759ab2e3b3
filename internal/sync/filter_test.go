package sync

import (
	"testing"

	"github.com/hitoshi/animirror/internal/anilist"
)

func strPtr(s string) *string { return &s }

func int16Ptr(v int16) *int16 { return &v }

func intPtr(v int) *int { return &v }

// makeEntry はテスト用のリストエントリを生成する。
func makeEntry(mediaID int, title string, score int16) anilist.Entry {
	e := anilist.Entry{ScoreRaw: int16Ptr(score)}
	e.Media.ID = mediaID
	e.Media.Title.UserPreferred = strPtr(title)
	return e
}

// TestIsInScope はリスト名の同期対象判定を検証する。
func TestIsInScope(t *testing.T) {
	tests := []struct {
		name     string
		listName string
		want     bool
	}{
		{"Completed標準リスト", "Completed", true},
		{"Watching標準リスト", "Watching", true},
		{"小文字のcompleted", "completed", true},
		{"部分一致するカスタムリスト", "Rewatching", true},
		{"completedを含むカスタムリスト", "Completed TV", true},
		{"対象外のDropped", "Dropped", false},
		{"対象外のPlanning", "Planning", false},
		{"対象外のPaused", "Paused", false},
		{"空文字列", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isInScope(tt.listName); got != tt.want {
				t.Errorf("isInScope(%q) = %v, want %v", tt.listName, got, tt.want)
			}
		})
	}
}

// TestFilterLists_ScopeAndOrder は対象リストのみが平坦化され、
// 出力順がリスト順→エントリ順で安定することを検証する。
func TestFilterLists_ScopeAndOrder(t *testing.T) {
	lists := []anilist.MediaList{
		{Name: "Completed", Entries: []anilist.Entry{
			makeEntry(1, "Alpha", 80),
			makeEntry(2, "Beta", 70),
		}},
		{Name: "Planning", Entries: []anilist.Entry{
			makeEntry(99, "Ignored", 0),
		}},
		{Name: "Watching", Entries: []anilist.Entry{
			makeEntry(3, "Gamma", 60),
		}},
	}

	got := FilterLists(lists)

	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	wantIDs := []int{1, 2, 3}
	for i, want := range wantIDs {
		if got[i].MediaID != want {
			t.Errorf("got[%d].MediaID = %d, want %d", i, got[i].MediaID, want)
		}
	}
}

// TestFilterLists_DedupLastWins は同一作品が複数の対象リストに現れた場合に
// 後勝ちで1件に畳み込まれ、位置は初出順を保つことを検証する。
func TestFilterLists_DedupLastWins(t *testing.T) {
	lists := []anilist.MediaList{
		{Name: "Completed", Entries: []anilist.Entry{
			makeEntry(5, "First occurrence", 50),
			makeEntry(6, "Other", 60),
		}},
		{Name: "Watching", Entries: []anilist.Entry{
			makeEntry(5, "Last occurrence", 90),
		}},
	}

	got := FilterLists(lists)

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	// 位置は初出順（media 5が先頭）
	if got[0].MediaID != 5 || got[1].MediaID != 6 {
		t.Fatalf("order = [%d, %d], want [5, 6]", got[0].MediaID, got[1].MediaID)
	}

	// 内容は後勝ち
	if got[0].UserTitle == nil || *got[0].UserTitle != "Last occurrence" {
		t.Errorf("UserTitle = %v, want Last occurrence", got[0].UserTitle)
	}
	if got[0].Score == nil || *got[0].Score != 90 {
		t.Errorf("Score = %v, want 90", got[0].Score)
	}
}

// TestFilterLists_DedupScopedOnly は対象外リストのエントリが
// 重複排除に関与しないことを検証する。
func TestFilterLists_DedupScopedOnly(t *testing.T) {
	lists := []anilist.MediaList{
		{Name: "Completed", Entries: []anilist.Entry{
			makeEntry(5, "Kept", 80),
		}},
		{Name: "Dropped", Entries: []anilist.Entry{
			makeEntry(5, "Must not win", 10),
		}},
	}

	got := FilterLists(lists)

	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].UserTitle == nil || *got[0].UserTitle != "Kept" {
		t.Errorf("UserTitle = %v, want Kept", got[0].UserTitle)
	}
}

// TestFilterLists_NoFallbackTitle はuserPreferredが欠けていても
// 他のタイトル表記にフォールバックしないことを検証する。
func TestFilterLists_NoFallbackTitle(t *testing.T) {
	e := anilist.Entry{}
	e.Media.ID = 7
	e.Media.Title.English = strPtr("English Title")
	e.Media.Title.Romaji = strPtr("Romaji Title")

	lists := []anilist.MediaList{
		{Name: "Watching", Entries: []anilist.Entry{e}},
	}

	got := FilterLists(lists)

	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].UserTitle != nil {
		t.Errorf("UserTitle = %q, want nil", *got[0].UserTitle)
	}
}

// TestFilterLists_Empty は空入力で空出力になることを検証する。
func TestFilterLists_Empty(t *testing.T) {
	if got := FilterLists(nil); len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
	if got := FilterLists([]anilist.MediaList{{Name: "Completed"}}); len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}
