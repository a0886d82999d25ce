package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role はチーム内の役割（머리 / 몸통）
type Role string

const (
	// RoleNone は役割未割り当て
	RoleNone Role = ""

	// RoleHead は頭担当（A列）
	RoleHead Role = "머리"

	// RoleBody は胴体担当（B列）
	RoleBody Role = "몸통"
)

// Column は役割に対応するチームシートの列番号（1始まり）を返します
func (r Role) Column() int {
	switch r {
	case RoleHead:
		return 1
	case RoleBody:
		return 2
	}
	return 0
}

// ColumnLetter は役割に対応する列記号を返します
func (r Role) ColumnLetter() string {
	switch r {
	case RoleHead:
		return "A"
	case RoleBody:
		return "B"
	}
	return ""
}

// ParseRole は文字列から役割を復元します
func ParseRole(s string) (Role, error) {
	switch Role(strings.TrimSpace(s)) {
	case RoleNone:
		return RoleNone, nil
	case RoleHead:
		return RoleHead, nil
	case RoleBody:
		return RoleBody, nil
	}
	return RoleNone, fmt.Errorf("%w: 不明な役割です (role=%s)", ErrInvalid, s)
}

// CooldownGroup はクールダウンを共有するコマンドのまとまり
type CooldownGroup string

const (
	// GroupNone は登録系コマンド（クールダウンなし）
	GroupNone CooldownGroup = ""

	// GroupSnowman は 굴리기 / 깎기 / 던지기
	GroupSnowman CooldownGroup = "snowman_cmd"

	// GroupDecoration は 장식
	GroupDecoration CooldownGroup = "decoration_cmd"

	// GroupCandy は 사탕 受け取り（ログ走査で判定）
	GroupCandy CooldownGroup = "candy_claim"
)

// PlayerGroups はプレイヤーレコードに常に保存されるグループ
var PlayerGroups = []CooldownGroup{GroupSnowman, GroupDecoration}

// Player はプレイヤーDBの1レコード
type Player struct {
	// Team は所属チーム（チームシート名）
	Team string

	// Role は割り当て済みの役割。未割り当ては RoleNone
	Role Role

	// Cooldowns はグループごとの最終成功時刻。nil は一度も実行していないことを表します
	Cooldowns map[CooldownGroup]*time.Time
}

// Column は役割から導出される列番号を返します
func (p Player) Column() int {
	return p.Role.Column()
}

// LastAction は指定グループの最終成功時刻を返します
func (p Player) LastAction(g CooldownGroup) *time.Time {
	if p.Cooldowns == nil {
		return nil
	}
	return p.Cooldowns[g]
}

// Clone は Cooldowns を含めた複製を返します
func (p Player) Clone() Player {
	c := p
	c.Cooldowns = make(map[CooldownGroup]*time.Time, len(p.Cooldowns))
	for g, t := range p.Cooldowns {
		if t == nil {
			c.Cooldowns[g] = nil
			continue
		}
		v := *t
		c.Cooldowns[g] = &v
	}
	return c
}

// Validate はPlayerの必須項目を検証します
func (p Player) Validate() error {
	if _, err := ParseRole(string(p.Role)); err != nil {
		return err
	}
	if p.Role != RoleNone && strings.TrimSpace(p.Team) == "" {
		return fmt.Errorf("%w: 役割があるのにTeamが空です", ErrInvalid)
	}
	return nil
}
