package domain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CommandKind は認識可能なコマンドの列挙
type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandCandyClaim
	CommandRegisterHead
	CommandRegisterBody
	CommandRoll
	CommandShave
	CommandThrow
	CommandDecorate
	CommandAttack
	CommandDefend
	CommandHeal
	CommandTaunt
	CommandJointAttack
)

var commandKindNames = map[CommandKind]string{
	CommandUnknown:      "unknown",
	CommandCandyClaim:   "candy",
	CommandRegisterHead: "register_head",
	CommandRegisterBody: "register_body",
	CommandRoll:         "roll",
	CommandShave:        "shave",
	CommandThrow:        "throw",
	CommandDecorate:     "decorate",
	CommandAttack:       "attack",
	CommandDefend:       "defend",
	CommandHeal:         "heal",
	CommandTaunt:        "taunt",
	CommandJointAttack:  "joint_attack",
}

func (k CommandKind) String() string {
	if s, ok := commandKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// ParseCommandKind は名前から CommandKind を復元します
func ParseCommandKind(s string) (CommandKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range commandKindNames {
		if n == name && k != CommandUnknown {
			return k, nil
		}
	}
	return CommandUnknown, fmt.Errorf("%w: 不明なコマンド種別です (kind=%s)", ErrInvalid, s)
}

// UnmarshalYAML はコマンドテーブルファイルの kind 文字列を読み込みます
func (k *CommandKind) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseCommandKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MinOverride は本文に特定の文字列が含まれるときに最小ターゲット数を引き上げます
type MinOverride struct {
	Substring string `yaml:"substring"`
	Min       int    `yaml:"min"`
}

// CommandSpec はコマンド1種類分の設定
type CommandSpec struct {
	Kind         CommandKind   `yaml:"kind"`
	Token        string        `yaml:"token"`
	MinTargets   int           `yaml:"min_targets"`
	MinOverrides []MinOverride `yaml:"min_overrides"`

	// Group はクールダウングループ。登録系は GroupNone
	Group CooldownGroup `yaml:"group"`

	// Role は登録系コマンドが割り当てる役割
	Role Role `yaml:"role"`

	// SizeDelta / SizeJitter は눈덩이 サイズの変化量（Jitter > 0 なら ±Jitter の一様乱数）
	SizeDelta  int `yaml:"size_delta"`
	SizeJitter int `yaml:"size_jitter"`

	// Intro は返信冒頭の文言
	Intro string `yaml:"intro"`
}

// MinTargetsFor は本文を見て最小ターゲット数を決めます
func (c CommandSpec) MinTargetsFor(text string) int {
	min := c.MinTargets
	for _, o := range c.MinOverrides {
		if o.Substring != "" && strings.Contains(text, o.Substring) && o.Min > min {
			min = o.Min
		}
	}
	return min
}

// Grammar はバリアントごとのコマンド文法
type Grammar struct {
	// Triggers は候補判定に使う部分文字列（いずれかを含むこと）
	Triggers []string `yaml:"triggers"`

	// ProxyMarker は代理宣言トークン。空なら代理宣言なし
	ProxyMarker string `yaml:"proxy_marker"`

	// CommandSeparator はコマンドトークン内の正しい区切り文字
	CommandSeparator string `yaml:"command_separator"`

	// DisallowedSeparators は誤った区切り文字
	DisallowedSeparators []string `yaml:"disallowed_separators"`

	// TargetSeparator はターゲットトークンに必須の区切り文字。空ならターゲットを検査しません
	TargetSeparator string `yaml:"target_separator"`

	Commands []CommandSpec `yaml:"commands"`
}

// Lookup はトークン（前後空白除去・大文字小文字無視）に一致するコマンドを返します
func (g Grammar) Lookup(token string) (CommandSpec, bool) {
	t := strings.TrimSpace(token)
	for _, c := range g.Commands {
		if strings.EqualFold(c.Token, t) {
			return c, true
		}
	}
	return CommandSpec{}, false
}

// Spec は Kind からコマンド設定を返します
func (g Grammar) Spec(kind CommandKind) (CommandSpec, bool) {
	for _, c := range g.Commands {
		if c.Kind == kind {
			return c, true
		}
	}
	return CommandSpec{}, false
}

// Validate は起動時にテーブルの整合性を検証します
func (g Grammar) Validate() error {
	if len(g.Triggers) == 0 {
		return fmt.Errorf("%w: トリガーが空です", ErrInvalid)
	}
	if len(g.Commands) == 0 {
		return fmt.Errorf("%w: コマンドが空です", ErrInvalid)
	}
	kinds := make(map[CommandKind]bool, len(g.Commands))
	tokens := make(map[string]bool, len(g.Commands))
	for _, c := range g.Commands {
		if c.Kind == CommandUnknown {
			return fmt.Errorf("%w: kind 未設定のコマンドがあります (token=%s)", ErrInvalid, c.Token)
		}
		if kinds[c.Kind] {
			return fmt.Errorf("%w: kind が重複しています (kind=%s)", ErrInvalid, c.Kind)
		}
		kinds[c.Kind] = true

		t := strings.ToLower(strings.TrimSpace(c.Token))
		if t == "" {
			return fmt.Errorf("%w: token が空です (kind=%s)", ErrInvalid, c.Kind)
		}
		if tokens[t] {
			return fmt.Errorf("%w: token が重複しています (token=%s)", ErrInvalid, c.Token)
		}
		tokens[t] = true

		for _, sep := range g.DisallowedSeparators {
			if sep != "" && sep != g.CommandSeparator && strings.Contains(c.Token, sep) {
				return fmt.Errorf("%w: token に禁止区切り文字が含まれます (token=%s, sep=%q)", ErrInvalid, c.Token, sep)
			}
		}
		if c.MinTargets < 0 {
			return fmt.Errorf("%w: min_targets は0以上である必要があります (token=%s)", ErrInvalid, c.Token)
		}
		for _, o := range c.MinOverrides {
			if o.Substring == "" || o.Min < 0 {
				return fmt.Errorf("%w: min_overrides が不正です (token=%s)", ErrInvalid, c.Token)
			}
		}
		if c.MinTargets > 0 && g.TargetSeparator == "" {
			return fmt.Errorf("%w: target_separator なしで min_targets は使えません (token=%s)", ErrInvalid, c.Token)
		}
		if _, err := ParseRole(string(c.Role)); err != nil {
			return err
		}
		isRegistration := c.Kind == CommandRegisterHead || c.Kind == CommandRegisterBody
		if isRegistration && (c.Role == RoleNone || c.Group != GroupNone) {
			return fmt.Errorf("%w: 登録コマンドは役割必須・グループなしです (token=%s)", ErrInvalid, c.Token)
		}
		if c.SizeJitter < 0 {
			return fmt.Errorf("%w: size_jitter は0以上である必要があります (token=%s)", ErrInvalid, c.Token)
		}
	}
	return nil
}

// CandyGrammar は사탕 봇の文法
func CandyGrammar(trigger string) Grammar {
	token := strings.TrimSuffix(strings.TrimPrefix(trigger, "["), "]")
	return Grammar{
		Triggers: []string{trigger},
		Commands: []CommandSpec{
			{Kind: CommandCandyClaim, Token: token, Group: GroupCandy},
		},
	}
}

// SnowmanGrammar は눈사람 게임の文法
func SnowmanGrammar() Grammar {
	return Grammar{
		Triggers:             []string{"[눈사람"},
		CommandSeparator:     "/",
		DisallowedSeparators: []string{" ", "_", "-", ".", ","},
		Commands: []CommandSpec{
			{Kind: CommandRegisterHead, Token: "눈사람/머리", Role: RoleHead},
			{Kind: CommandRegisterBody, Token: "눈사람/몸통", Role: RoleBody},
			{Kind: CommandRoll, Token: "눈사람/굴리기", Group: GroupSnowman, SizeDelta: 10, Intro: "눈덩이를 데굴데굴 굴리자⋯"},
			{Kind: CommandShave, Token: "눈사람/깎기", Group: GroupSnowman, SizeDelta: -10, Intro: "눈덩이를 조심스레 깎아내자⋯"},
			{Kind: CommandThrow, Token: "눈사람/던지기", Group: GroupSnowman, SizeJitter: 10, Intro: "눈덩이를 휙 던지자⋯"},
			{Kind: CommandDecorate, Token: "눈사람/장식", Group: GroupDecoration},
		},
	}
}

// BattleLogGrammar は전투 로그 봇の既定文法
func BattleLogGrammar() Grammar {
	return Grammar{
		Triggers:             []string{"[공격", "[방어", "[치유", "[도발", "[합동", "[대리"},
		ProxyMarker:          "대리",
		CommandSeparator:     " ",
		DisallowedSeparators: []string{"_", "-", "/", ".", ","},
		TargetSeparator:      "/",
		Commands: []CommandSpec{
			{Kind: CommandAttack, Token: "공격", MinTargets: 1, MinOverrides: []MinOverride{{Substring: "광역", Min: 2}}},
			{Kind: CommandDefend, Token: "방어"},
			{Kind: CommandHeal, Token: "치유", MinTargets: 1},
			{Kind: CommandTaunt, Token: "도발"},
			{Kind: CommandJointAttack, Token: "합동 공격", MinTargets: 2},
		},
	}
}

// LoadGrammar は YAML ファイルから文法を読み込み検証します
func LoadGrammar(path string) (Grammar, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Grammar{}, fmt.Errorf("コマンドテーブル読み込み失敗 (path=%s): %w", path, err)
	}
	var g Grammar
	if err := yaml.Unmarshal(b, &g); err != nil {
		return Grammar{}, fmt.Errorf("%w: コマンドテーブル解析失敗 (path=%s): %v", ErrInvalid, path, err)
	}
	if err := g.Validate(); err != nil {
		return Grammar{}, err
	}
	return g, nil
}
