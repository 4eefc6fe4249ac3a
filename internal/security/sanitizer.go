// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// linkPattern は本文中で自動リンクにするURL。
var linkPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// TextSanitizer は投稿本文や自己紹介などのプレーンテキストを表示用HTMLに変換する。
// 保存済みのテキストは変更せず、表示時にのみ使う。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
// ポリシーの内容:
//   - 許可タグ: a, br
//   - aのhref: http, httpsの完全URLのみ
//   - aタグ: target="_blank" と rel="nofollow noreferrer noopener" を自動付与
func NewTextSanitizer() *TextSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("br")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return &TextSanitizer{policy: p}
}

// HTML はテキストをエスケープし、URLをリンクに、改行を<br>に変換したHTMLを返す。
// 入力中の < > & はタグとして解釈せず文字として表示される。
// 同一入力に対して常に同一出力を返す。
func (s *TextSanitizer) HTML(text string) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	last := 0
	for _, loc := range linkPattern.FindAllStringIndex(text, -1) {
		b.WriteString(html.EscapeString(text[last:loc[0]]))
		href := html.EscapeString(text[loc[0]:loc[1]])
		b.WriteString(`<a href="` + href + `">` + href + `</a>`)
		last = loc[1]
	}
	b.WriteString(html.EscapeString(text[last:]))

	out := strings.ReplaceAll(b.String(), "\r\n", "\n")
	out = strings.ReplaceAll(out, "\n", "<br>")
	return s.policy.Sanitize(out)
}
