package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mention-bot/project/domain"
	"mention-bot/project/dto"
	"mention-bot/project/infrastructure/httpsec"
	"mention-bot/project/service"
)

// PlayerAdmin は運営によるプレイヤーDB操作のポートです
type PlayerAdmin interface {
	Get(ctx context.Context, key string) (domain.Player, error)
	Put(ctx context.Context, key string, p domain.Player) error
}

// ScoreRecomputer はチーム点数の再計算ジョブを作るポートです
type ScoreRecomputer interface {
	RecomputeJob(team string, done func(service.ScoreResult, error)) service.Job
}

// CommandsHandler は運営向け Slack スラッシュコマンドを処理します
//
//	/_player_add <ID またはハンドル> <チーム名>
//	/_player_show <ID またはハンドル>
//	/_score <チーム名>
type CommandsHandler struct {
	signingSecret string
	operators     map[string]bool
	players       PlayerAdmin
	scores        ScoreRecomputer
	queue         service.QueuePort
}

// NewCommandsHandler はコマンドハンドラーを作成します
// operators は実行を許可する Slack ユーザーIDです
func NewCommandsHandler(signingSecret string, operators []string, players PlayerAdmin, scores ScoreRecomputer, queue service.QueuePort) *CommandsHandler {
	ops := make(map[string]bool, len(operators))
	for _, id := range operators {
		if id = strings.TrimSpace(id); id != "" {
			ops[id] = true
		}
	}
	return &CommandsHandler{
		signingSecret: signingSecret,
		operators:     ops,
		players:       players,
		scores:        scores,
		queue:         queue,
	}
}

// ServeHTTP は Slack スラッシュコマンド受信エンドポイントです
func (h *CommandsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeSlash(w, http.StatusInternalServerError, "요청을 읽지 못했습니다.")
		return
	}

	// Slack 署名検証
	if err := httpsec.VerifySlackSignature(h.signingSecret,
		r.Header.Get("X-Slack-Signature"),
		r.Header.Get("X-Slack-Request-Timestamp"),
		string(body)); err != nil {
		writeSlash(w, http.StatusUnauthorized, "서명 검증에 실패했습니다.")
		return
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		writeSlash(w, http.StatusBadRequest, "요청 형식이 잘못되었습니다.")
		return
	}
	cmd := dto.SlackCommandRequest{
		TeamID:    values.Get("team_id"),
		ChannelID: values.Get("channel_id"),
		UserID:    values.Get("user_id"),
		UserName:  values.Get("user_name"),
		Command:   values.Get("command"),
		Text:      values.Get("text"),
	}

	if !h.operators[cmd.UserID] {
		log.Warn().Str("user", cmd.UserID).Str("command", cmd.Command).Msg("commands: 権限のないユーザー")
		writeSlash(w, http.StatusOK, "운영 계정만 사용할 수 있는 명령입니다.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Str("user", cmd.UserID).Str("command", cmd.Command).Str("text", cmd.Text).Msg("commands: 受信")
	args := strings.Fields(cmd.Text)

	switch cmd.Command {
	case "/_player_add":
		h.handlePlayerAdd(ctx, w, args)
	case "/_player_show":
		h.handlePlayerShow(ctx, w, args)
	case "/_score":
		h.handleScore(w, args)
	default:
		writeSlash(w, http.StatusBadRequest, "알 수 없는 명령입니다: "+cmd.Command)
	}
}

// handlePlayerAdd はプレイヤーを登録し、既存ならチームだけを変更します
func (h *CommandsHandler) handlePlayerAdd(ctx context.Context, w http.ResponseWriter, args []string) {
	if len(args) != 2 {
		writeSlash(w, http.StatusOK, "사용법: /_player_add <아이디> <조 이름>")
		return
	}
	key, team := strings.TrimPrefix(args[0], "@"), args[1]

	p, err := h.players.Get(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Error().Err(err).Str("key", key).Msg("commands: プレイヤー取得失敗")
		writeSlash(w, http.StatusInternalServerError, "플레이어 조회에 실패했습니다.")
		return
	}
	if p.Role != domain.RoleNone && p.Team != team {
		writeSlash(w, http.StatusOK, fmt.Sprintf("%s 은/는 이미 %s의 %s 역할입니다.", key, p.Team, p.Role))
		return
	}
	p.Team = team

	if err := h.players.Put(ctx, key, p); err != nil {
		log.Error().Err(err).Str("key", key).Msg("commands: プレイヤー保存失敗")
		writeSlash(w, http.StatusInternalServerError, "플레이어 저장에 실패했습니다.")
		return
	}
	writeSlash(w, http.StatusOK, fmt.Sprintf("%s 을/를 %s에 등록했습니다.", key, team))
}

// handlePlayerShow はプレイヤーの現在の状態を返します
func (h *CommandsHandler) handlePlayerShow(ctx context.Context, w http.ResponseWriter, args []string) {
	if len(args) != 1 {
		writeSlash(w, http.StatusOK, "사용법: /_player_show <아이디>")
		return
	}
	key := strings.TrimPrefix(args[0], "@")

	p, err := h.players.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		writeSlash(w, http.StatusOK, key+" 은/는 등록되지 않았습니다.")
		return
	}
	if err != nil {
		writeSlash(w, http.StatusInternalServerError, "플레이어 조회에 실패했습니다.")
		return
	}
	writeSlash(w, http.StatusOK, describePlayer(key, p))
}

// handleScore は点数の再計算をキューに積みます（結果はログのみ）
func (h *CommandsHandler) handleScore(w http.ResponseWriter, args []string) {
	if len(args) != 1 {
		writeSlash(w, http.StatusOK, "사용법: /_score <조 이름>")
		return
	}
	team := args[0]

	job := h.scores.RecomputeJob(team, func(res service.ScoreResult, err error) {
		if err != nil {
			log.Error().Err(err).Str("team", team).Msg("commands: 点数再計算失敗")
			return
		}
		log.Info().Str("team", team).Int("final", res.Final).Msg("commands: 点数再計算完了")
	})
	if err := h.queue.Enqueue(job); err != nil {
		writeSlash(w, http.StatusOK, "대기열이 가득 찼습니다. 잠시 후 다시 시도해 주세요.")
		return
	}
	writeSlash(w, http.StatusOK, team+" 점수 재계산을 접수했습니다.")
}

func describePlayer(key string, p domain.Player) string {
	role := string(p.Role)
	if role == "" {
		role = "미등록"
	}
	lines := []string{fmt.Sprintf("%s ― 조: %s / 역할: %s", key, p.Team, role)}

	groups := make([]string, 0, len(p.Cooldowns))
	for g := range p.Cooldowns {
		groups = append(groups, string(g))
	}
	sort.Strings(groups)
	for _, g := range groups {
		at := "없음"
		if t := p.Cooldowns[domain.CooldownGroup(g)]; t != nil {
			at = t.Format("2006-01-02 15:04:05")
		}
		lines = append(lines, fmt.Sprintf("%s: %s", g, at))
	}
	return strings.Join(lines, "\n")
}

func writeSlash(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.SlackSlashResponse{ResponseType: "ephemeral", Text: text})
}
