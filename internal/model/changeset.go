package model

// ChangeSet はリモートスナップショットとローカル状態を一致させるための
// UPSERTと削除の集合。1回の同期で1回だけ生成・適用され、その後破棄される。
//
// 不変条件:
//   - EntryUpsertsのキーとEntryDeletionsのキーは互いに素
//   - MediaUpsertsはEntryUpsertsとメディアIDで1対1に対応する（重複排除済み）
type ChangeSet struct {
	UserUpsert     *User
	MediaUpserts   []Media
	EntryUpserts   []ListEntry
	EntryDeletions []EntryKey
}
