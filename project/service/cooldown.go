package service

import (
	"fmt"
	"time"

	"mention-bot/project/domain"
)

// CooldownState はユーザー×グループごとのクールダウン状態
type CooldownState int

const (
	// CooldownNeverActed は一度も成功していない状態（即実行可）
	CooldownNeverActed CooldownState = iota

	// CooldownCooling は待機中
	CooldownCooling

	// CooldownReady は待機時間経過済み
	CooldownReady
)

func (s CooldownState) String() string {
	switch s {
	case CooldownNeverActed:
		return "never_acted"
	case CooldownCooling:
		return "cooling"
	case CooldownReady:
		return "ready"
	}
	return "unknown"
}

// CooldownVerdict はクールダウン判定結果
type CooldownVerdict struct {
	State     CooldownState
	Remaining time.Duration
}

// Allowed は対象の操作を実行してよいかを返します
func (v CooldownVerdict) Allowed() bool {
	return v.State != CooldownCooling
}

// MinutesSeconds は残り時間を分・秒に分解します（秒未満切り捨て）
func (v CooldownVerdict) MinutesSeconds() (int, int) {
	total := int(v.Remaining / time.Second)
	if total < 0 {
		total = 0
	}
	return total / 60, total % 60
}

// RemainingText は「m분 s초」形式の残り時間
func (v CooldownVerdict) RemainingText() string {
	m, s := v.MinutesSeconds()
	return fmt.Sprintf("%d분 %d초", m, s)
}

// EvaluateCooldown は保存済みの最終成功時刻から状態を毎回計算し直します
// 状態遷移そのものは保存しません
func EvaluateCooldown(last *time.Time, now time.Time, window time.Duration) CooldownVerdict {
	if last == nil {
		return CooldownVerdict{State: CooldownNeverActed}
	}
	elapsed := now.Sub(*last)
	if elapsed >= window {
		return CooldownVerdict{State: CooldownReady}
	}
	return CooldownVerdict{State: CooldownCooling, Remaining: window - elapsed}
}

// PlayerCooldown はプレイヤーレコードに保存されたグループ別時刻で判定します
// 登録系（グループなし）は常に実行可です
func PlayerCooldown(p domain.Player, group domain.CooldownGroup, now time.Time, window time.Duration) CooldownVerdict {
	if group == domain.GroupNone {
		return CooldownVerdict{State: CooldownReady}
	}
	return EvaluateCooldown(p.LastAction(group), now, window)
}

// LogScanCooldown は追記専用ログを後ろから走査して最終成功時刻を求めます
// ログが小さい前提で O(n) を許容します
type LogScanCooldown struct {
	// ActorColumn はハンドルが入るヘッダー名
	ActorColumn string

	// TimeColumn は時刻が入るヘッダー名
	TimeColumn string

	// Layout は時刻の書式
	Layout string

	// Location は時刻を解釈するタイムゾーン
	Location *time.Location
}

// LastAction は acct に一致する最新行の時刻を返します
// 一致なし・時刻が解釈できない場合は nil（即実行可）です
func (c LogScanCooldown) LastAction(records []domain.Record, acct string) *time.Time {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i][c.ActorColumn] != acct {
			continue
		}
		loc := c.Location
		if loc == nil {
			loc = time.UTC
		}
		t, err := time.ParseInLocation(c.Layout, records[i][c.TimeColumn], loc)
		if err != nil {
			return nil
		}
		return &t
	}
	return nil
}
