package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mention-bot/project/domain"
	"mention-bot/project/dto"
	"mention-bot/project/service"
)

type memPlayers struct {
	mu sync.Mutex
	m  map[string]domain.Player
}

func (p *memPlayers) Get(ctx context.Context, key string) (domain.Player, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	if !ok {
		return domain.Player{}, fmt.Errorf("key=%s: %w", key, domain.ErrNotFound)
	}
	return v, nil
}

func (p *memPlayers) Put(ctx context.Context, key string, v domain.Player) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[key] = v
	return nil
}

type fakeRecomputer struct {
	final int
	teams []string
}

func (f *fakeRecomputer) RecomputeJob(team string, done func(service.ScoreResult, error)) service.Job {
	return service.Job{
		Name: "recompute",
		Run: func(ctx context.Context, wb domain.Workbook) error {
			f.teams = append(f.teams, team)
			return nil
		},
		Done: func(ctx context.Context, err error) { done(service.ScoreResult{Final: f.final}, err) },
	}
}

type immediateQueue struct{ full bool }

func (q immediateQueue) Enqueue(job service.Job) error {
	if q.full {
		return domain.ErrQueueFull
	}
	err := job.Run(context.Background(), nil)
	if job.Done != nil {
		job.Done(context.Background(), err)
	}
	return nil
}

func slashRequest(t *testing.T, user, command, text string) *http.Request {
	t.Helper()
	form := url.Values{
		"team_id":    {"T1"},
		"channel_id": {"C1"},
		"user_id":    {user},
		"user_name":  {"operator"},
		"command":    {command},
		"text":       {text},
	}
	return signedRequest(t, "/slack/commands", form.Encode(), map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	})
}

func decodeSlash(t *testing.T, rec *httptest.ResponseRecorder) dto.SlackSlashResponse {
	t.Helper()
	var res dto.SlackSlashResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "ephemeral", res.ResponseType)
	return res
}

func newCommands(q service.QueuePort) (*CommandsHandler, *memPlayers, *fakeRecomputer) {
	last := time.Date(2025, 12, 24, 9, 30, 0, 0, time.UTC)
	players := &memPlayers{m: map[string]domain.Player{
		"101": {Team: "1조", Role: domain.RoleHead, Cooldowns: map[domain.CooldownGroup]*time.Time{
			domain.GroupSnowman:    &last,
			domain.GroupDecoration: nil,
		}},
	}}
	rc := &fakeRecomputer{final: 176}
	return NewCommandsHandler(testSecret, []string{" UOP ", ""}, players, rc, q), players, rc
}

func TestCommandsHandler_PlayerAdd(t *testing.T) {
	h, players, _ := newCommands(immediateQueue{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, slashRequest(t, "UOP", "/_player_add", "@carol 2조"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeSlash(t, rec).Text, "carol 을/를 2조에 등록했습니다.")

	p, err := players.Get(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, "2조", p.Team)
	assert.Equal(t, domain.RoleNone, p.Role)

	// 役割を持つプレイヤーのチーム変更は拒否
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, slashRequest(t, "UOP", "/_player_add", "101 3조"))
	assert.Contains(t, decodeSlash(t, rec).Text, "이미 1조의 머리 역할입니다")
	p, _ = players.Get(context.Background(), "101")
	assert.Equal(t, "1조", p.Team)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, slashRequest(t, "UOP", "/_player_add", "only-one"))
	assert.Contains(t, decodeSlash(t, rec).Text, "사용법")
}

func TestCommandsHandler_PlayerShow(t *testing.T) {
	h, _, _ := newCommands(immediateQueue{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, slashRequest(t, "UOP", "/_player_show", "101"))
	text := decodeSlash(t, rec).Text
	assert.Contains(t, text, "조: 1조 / 역할: 머리")
	assert.Contains(t, text, "decoration_cmd: 없음")
	assert.Contains(t, text, "snowman_cmd: 2025-12-24 09:30:00")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, slashRequest(t, "UOP", "/_player_show", "nobody"))
	assert.Contains(t, decodeSlash(t, rec).Text, "등록되지 않았습니다")
}

func TestCommandsHandler_Score(t *testing.T) {
	h, _, rc := newCommands(immediateQueue{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, slashRequest(t, "UOP", "/_score", "1조"))
	assert.Contains(t, decodeSlash(t, rec).Text, "1조 점수 재계산을 접수했습니다.")
	assert.Equal(t, []string{"1조"}, rc.teams)

	full, _, _ := newCommands(immediateQueue{full: true})
	rec = httptest.NewRecorder()
	full.ServeHTTP(rec, slashRequest(t, "UOP", "/_score", "1조"))
	assert.Contains(t, decodeSlash(t, rec).Text, "대기열이 가득 찼습니다")
}

func TestCommandsHandler_Rejects(t *testing.T) {
	h, players, _ := newCommands(immediateQueue{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, slashRequest(t, "UOTHER", "/_player_add", "carol 2조"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeSlash(t, rec).Text, "운영 계정만")
	_, err := players.Get(context.Background(), "carol")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, slashRequest(t, "UOP", "/_unknown", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := slashRequest(t, "UOP", "/_score", "1조")
	req.Header.Set("X-Slack-Signature", "v0=00")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
