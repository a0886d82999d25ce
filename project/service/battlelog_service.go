package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"mention-bot/project/domain"
)

// 전투 로그の列
var BattleLogHeader = []string{"시각", "닉네임", "아이디", "대리", "커맨드", "대상", "유효", "오류", "원문"}

// BattleLogConfig は전투 로그 봇の設定
type BattleLogConfig struct {
	LogSheet   string
	Location   *time.Location
	Visibility string
}

// BattleLogService は候補メンションを検証結果ごと監査ログに記録します
// 無効なコマンドも記録対象です（クールダウンの概念はありません）
type BattleLogService struct {
	cfg     BattleLogConfig
	grammar domain.Grammar
	queue   QueuePort
	rp      ReplyPort
	now     func() time.Time
}

// NewBattleLogService は BattleLogService のインスタンスを作成します
func NewBattleLogService(cfg BattleLogConfig, grammar domain.Grammar, queue QueuePort, rp ReplyPort) *BattleLogService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &BattleLogService{
		cfg:     cfg,
		grammar: grammar,
		queue:   queue,
		rp:      rp,
		now:     time.Now,
	}
}

// SetupJob はログシートのヘッダーを整えるジョブを返します
func (s *BattleLogService) SetupJob() Job {
	return Job{
		Name: "battlelog_setup",
		Run: func(ctx context.Context, wb domain.Workbook) error {
			return wb.EnsureWorksheet(ctx, s.cfg.LogSheet, BattleLogHeader)
		},
	}
}

// HandleMention は検証結果にかかわらず候補をログ用ジョブとして積みます
func (s *BattleLogService) HandleMention(ctx context.Context, m domain.Mention) error {
	text := StripHTML(m.Content)
	if !IsCandidate(text, s.grammar.Triggers) {
		return nil
	}

	v := Validate(text, s.grammar)
	row := BattleLogRow(s.now().In(s.cfg.Location), m.Actor, v, text)

	job := Job{
		Name: "battlelog_append",
		Acct: m.Actor.Acct,
		Run: func(ctx context.Context, wb domain.Workbook) error {
			if err := wb.AppendRow(ctx, s.cfg.LogSheet, row); err != nil {
				return fmt.Errorf("battlelog: ログ追記失敗 (acct=%s): %w", m.Actor.Acct, err)
			}
			return nil
		},
		Done: func(ctx context.Context, err error) {
			if err != nil {
				return
			}
			s.reply(ctx, m, s.replyText(v))
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		return fmt.Errorf("battlelog: ジョブ投入失敗 (acct=%s): %w", m.Actor.Acct, err)
	}
	return nil
}

// BattleLogRow はログ1行を組み立てます
func BattleLogRow(at time.Time, actor domain.Actor, v Verdict, text string) []string {
	command := v.Parsed.Command
	if v.Kind != domain.CommandUnknown {
		command = v.Spec.Token
	}
	return []string{
		at.Format(LogTimeLayout),
		actor.Name(),
		actor.Acct,
		strconv.FormatBool(v.Parsed.Proxy),
		command,
		v.TargetsJSON,
		strconv.FormatBool(v.Valid),
		v.Diagnostic(),
		text,
	}
}

func (s *BattleLogService) replyText(v Verdict) string {
	if v.Valid {
		return fmt.Sprintf("[%s] 기록되었습니다.", v.Spec.Token)
	}
	return "커맨드를 확인해 주세요: " + v.Diagnostic()
}

func (s *BattleLogService) reply(ctx context.Context, m domain.Mention, text string) {
	err := s.rp.Reply(ctx, NewReply(m, text, s.cfg.Visibility))
	if err != nil {
		log.Error().Err(err).Str("acct", m.Actor.Acct).Msg("battlelog: 返信失敗")
	}
}
