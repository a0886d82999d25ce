package service

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"mention-bot/project/domain"
)

// bracketRe は入れ子なしの [ ... ] を左から順に拾います
var bracketRe = regexp.MustCompile(`\[([^\[\]]*)\]`)

// ParsedCommand はメンション本文から取り出したコマンド
type ParsedCommand struct {
	// Tokens は括弧内の文字列（出現順、前後空白は保持）
	Tokens []string

	// Proxy は先頭トークンが代理宣言だったかどうか
	Proxy bool

	// Command はコマンド位置のトークン（前後空白除去済み）
	Command string

	// Targets はコマンド以降のトークン
	Targets []string

	// Diagnostics は解析段階のエラー
	Diagnostics []string
}

// StripHTML はマークアップを取り除いたプレーンテキストを返します
// 属性値は本文に含めず、<br> と段落の終わりを改行にします
func StripHTML(content string) string {
	if content == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return strings.TrimSpace(content)
	}

	var sb strings.Builder
	writeText(doc, &sb)
	return strings.TrimSpace(sb.String())
}

func writeText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style":
			return
		case "br":
			sb.WriteString("\n")
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(c, sb)
	}
	if n.Type == html.ElementNode && n.Data == "p" {
		sb.WriteString("\n")
	}
}

// ExtractTokens は括弧で囲まれた部分文字列を左から順に返します
// 対応の取れない括弧は無視し、括弧がなければ空スライスを返します
func ExtractTokens(text string) []string {
	matches := bracketRe.FindAllStringSubmatch(text, -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, m[1])
	}
	return tokens
}

// IsCandidate は本文がコマンド候補かどうかを判定します
// 括弧が1組以上あり、かつトリガー文字列のいずれかを含む必要があります
func IsCandidate(text string, triggers []string) bool {
	if !bracketRe.MatchString(text) {
		return false
	}
	for _, t := range triggers {
		if t != "" && strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// Parse はトークンを抽出し、代理宣言を考慮してコマンドとターゲットに分けます
func Parse(text string, g domain.Grammar) ParsedCommand {
	p := ParsedCommand{Tokens: ExtractTokens(text)}
	if len(p.Tokens) == 0 {
		return p
	}

	pos := 0
	if g.ProxyMarker != "" && strings.TrimSpace(p.Tokens[0]) == g.ProxyMarker {
		p.Proxy = true
		pos = 1
		if len(p.Tokens) == 1 {
			p.Diagnostics = append(p.Diagnostics, "["+g.ProxyMarker+"] 뒤에 커맨드가 없습니다.")
			return p
		}
	}

	p.Command = strings.TrimSpace(p.Tokens[pos])
	p.Targets = p.Tokens[pos+1:]
	return p
}
