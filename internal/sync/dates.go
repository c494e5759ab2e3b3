package sync

import (
	"time"

	"github.com/hitoshi/animirror/internal/anilist"
	"github.com/hitoshi/animirror/internal/model"
)

// NormalizeDate は部分日付を暦日付に変換する。
// 年・月・日のいずれかが欠けている場合はnilを返す（部分日付は永続化しない）。
// 3要素が揃っているのに暦として成立しない場合（例: 2月30日）は
// model.InvalidDateErrorを返す。上流データの異常であり、黙って落とさない。
func NormalizeDate(d anilist.PartialDate) (*time.Time, error) {
	if d.Year == nil || d.Month == nil || d.Day == nil {
		return nil, nil
	}

	year, month, day := *d.Year, *d.Month, *d.Day
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)

	// time.Dateは範囲外の値を正規化してしまうため、往復で一致するか検証する
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return nil, &model.InvalidDateError{Year: year, Month: month, Day: day}
	}

	return &t, nil
}
