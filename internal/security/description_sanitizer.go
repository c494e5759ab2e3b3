// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DescriptionSanitizerService はAniListから取得した作品説明のHTMLをサニタイズし、
// 保存前にXSS攻撃などのセキュリティリスクを除去する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグのみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// DescriptionSanitizerService は作品説明HTMLのサニタイズ機能のインターフェースを定義する。
type DescriptionSanitizerService interface {
	// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
	// AniListの説明文に現れる書式タグ（p, br, i, b, em, strong, a）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string

	// StripTags はHTMLからタグを除去したプレーンテキストを返す。
	// HTMLを表示できないクライアント向けのテキスト列の生成に使用する。
	StripTags(rawHTML string) string
}

// descriptionSanitizer はDescriptionSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はDescriptionSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, i, b, em, strong, a（AniListの説明文が使う書式タグ）
//   - aタグ: target="_blank" と rel="noreferrer noopener" を強制付与
//   - script, iframe, style等は許可リストに含めないことで自動的に除去される
func NewDescriptionSanitizer() *descriptionSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("p", "br", "i", "b", "em", "strong")

	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &descriptionSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
func (s *descriptionSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// StripTags はHTMLからタグを除去したプレーンテキストを返す。
// brタグとブロック要素の終了は空白1つに置き換え、連続する空白は畳み込む。
func (s *descriptionSanitizer) StripTags(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}

	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOFを含むすべてのエラーで走査を終了する
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(tokenizer.Text())
		case html.SelfClosingTagToken, html.StartTagToken, html.EndTagToken:
			b.WriteByte(' ')
		}
	}
}

// compile-time interface check
var _ DescriptionSanitizerService = (*descriptionSanitizer)(nil)
