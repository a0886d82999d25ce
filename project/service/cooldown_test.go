package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mention-bot/project/domain"
)

func TestEvaluateCooldown(t *testing.T) {
	now := baseTime
	ago := func(d time.Duration) *time.Time {
		t := now.Add(-d)
		return &t
	}

	v := EvaluateCooldown(nil, now, time.Hour)
	assert.Equal(t, CooldownNeverActed, v.State)
	assert.True(t, v.Allowed())

	v = EvaluateCooldown(ago(10*time.Minute), now, time.Hour)
	assert.Equal(t, CooldownCooling, v.State)
	assert.False(t, v.Allowed())
	assert.Equal(t, 50*time.Minute, v.Remaining)
	assert.Equal(t, "50분 0초", v.RemainingText())

	// ちょうど待機時間で解除
	v = EvaluateCooldown(ago(time.Hour), now, time.Hour)
	assert.Equal(t, CooldownReady, v.State)
	assert.True(t, v.Allowed())
}

func TestCooldownVerdict_MinutesSeconds(t *testing.T) {
	m, s := CooldownVerdict{Remaining: 90*time.Second + 900*time.Millisecond}.MinutesSeconds()
	assert.Equal(t, 1, m)
	assert.Equal(t, 30, s)

	m, s = CooldownVerdict{Remaining: -time.Second}.MinutesSeconds()
	assert.Zero(t, m)
	assert.Zero(t, s)
}

func TestPlayerCooldown(t *testing.T) {
	last := baseTime.Add(-30 * time.Minute)
	p := domain.Player{
		Team: "1조",
		Role: domain.RoleHead,
		Cooldowns: map[domain.CooldownGroup]*time.Time{
			domain.GroupSnowman:    &last,
			domain.GroupDecoration: nil,
		},
	}

	assert.False(t, PlayerCooldown(p, domain.GroupSnowman, baseTime, time.Hour).Allowed())
	assert.Equal(t, CooldownNeverActed, PlayerCooldown(p, domain.GroupDecoration, baseTime, time.Hour).State)
	assert.True(t, PlayerCooldown(p, domain.GroupNone, baseTime, time.Hour).Allowed(), "登録系は常に可")
}

func TestLogScanCooldown_LastAction(t *testing.T) {
	scan := LogScanCooldown{ActorColumn: CandyColAcct, TimeColumn: CandyColTime, Layout: LogTimeLayout, Location: time.UTC}
	records := []domain.Record{
		{CandyColAcct: "alice", CandyColTime: "2025-10-31 18:00:00"},
		{CandyColAcct: "bob", CandyColTime: "2025-10-31 19:00:00"},
		{CandyColAcct: "alice", CandyColTime: "2025-10-31 19:30:00"},
	}

	got := scan.LastAction(records, "alice")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 10, 31, 19, 30, 0, 0, time.UTC), *got)

	assert.Nil(t, scan.LastAction(records, "carol"))

	broken := append(records, domain.Record{CandyColAcct: "bob", CandyColTime: "어제"})
	assert.Nil(t, scan.LastAction(broken, "bob"), "解釈できない時刻は即実行可")
}
