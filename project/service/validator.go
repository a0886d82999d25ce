package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"mention-bot/project/domain"
)

// Target はターゲットトークンを区切り文字で分けたもの
type Target struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Verdict はコマンド検証の結果
type Verdict struct {
	// Valid は認識済みかつ全ルールを満たしたかどうか
	Valid bool

	// Kind は解決できたコマンド。解決できなければ CommandUnknown
	Kind domain.CommandKind

	// Spec は解決できたコマンドの設定
	Spec domain.CommandSpec

	Parsed      ParsedCommand
	Diagnostics []string

	// Targets は形式の正しいターゲット
	Targets []Target

	// TargetsJSON はログ用に直列化したターゲット
	TargetsJSON string
}

// Diagnostic は診断メッセージを結合して返します
func (v Verdict) Diagnostic() string {
	return strings.Join(v.Diagnostics, " / ")
}

// Validate は本文を解析し、文法に沿って検証します
// 診断は途中で打ち切らずにすべて積み上げます（コマンド解決が前提のルールを除く）
func Validate(text string, g domain.Grammar) Verdict {
	parsed := Parse(text, g)
	v := Verdict{Parsed: parsed, Kind: domain.CommandUnknown, TargetsJSON: "[]"}

	// 1. 括弧なし
	if len(parsed.Tokens) == 0 {
		v.Diagnostics = append(v.Diagnostics, "커맨드 괄호가 없습니다.")
		return v
	}
	if len(parsed.Diagnostics) > 0 {
		v.Diagnostics = append(v.Diagnostics, parsed.Diagnostics...)
		return v
	}

	// 2・3. 区切り文字の誤り / 未知のコマンド
	spec, ok := g.Lookup(parsed.Command)
	if ok {
		v.Kind = spec.Kind
		v.Spec = spec
	} else if fixed, found := fixSeparator(parsed.Command, g); found {
		v.Diagnostics = append(v.Diagnostics,
			fmt.Sprintf("[%s] 구분자가 잘못되었습니다. [%s] 형식으로 입력해 주세요.", parsed.Command, fixed))
	} else {
		v.Diagnostics = append(v.Diagnostics, fmt.Sprintf("존재하지 않는 커맨드입니다: [%s]", parsed.Command))
	}

	// 4. ターゲットの区切り文字
	if g.TargetSeparator != "" {
		for _, raw := range parsed.Targets {
			t := strings.TrimSpace(raw)
			name, value, found := strings.Cut(t, g.TargetSeparator)
			if !found {
				v.Diagnostics = append(v.Diagnostics,
					fmt.Sprintf("[%s] 대상 형식이 잘못되었습니다. '이름%s수치' 형식이어야 합니다.", raw, g.TargetSeparator))
				continue
			}
			v.Targets = append(v.Targets, Target{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
		}
		if b, err := json.Marshal(targetsOrEmpty(v.Targets)); err == nil {
			v.TargetsJSON = string(b)
		}
	}

	// 5. 最小ターゲット数
	if v.Kind != domain.CommandUnknown {
		min := v.Spec.MinTargetsFor(text)
		supplied := len(v.Targets)
		switch {
		case min > 0 && supplied == 0:
			v.Diagnostics = append(v.Diagnostics,
				fmt.Sprintf("[%s] 대상이 지정되지 않았습니다. 최소 %d명이 필요합니다.", v.Spec.Token, min))
		case supplied < min:
			v.Diagnostics = append(v.Diagnostics,
				fmt.Sprintf("[%s] 대상이 부족합니다. 최소 %d명이 필요하지만 %d명만 지정되었습니다.", v.Spec.Token, min, supplied))
		}
	}

	v.Valid = v.Kind != domain.CommandUnknown && len(v.Diagnostics) == 0
	return v
}

// fixSeparator は禁止区切り文字を正しい区切り文字に置き換えると既知のコマンドになるかを調べます
func fixSeparator(command string, g domain.Grammar) (string, bool) {
	for _, sep := range g.DisallowedSeparators {
		if sep == "" || sep == g.CommandSeparator || !strings.Contains(command, sep) {
			continue
		}
		candidate := strings.ReplaceAll(command, sep, g.CommandSeparator)
		if spec, ok := g.Lookup(candidate); ok {
			return spec.Token, true
		}
	}
	return "", false
}

func targetsOrEmpty(ts []Target) []Target {
	if ts == nil {
		return []Target{}
	}
	return ts
}
