package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"mention-bot/project/domain"
)

// 사탕 ログの列
const (
	CandyColTime   = "시각"
	CandyColName   = "닉네임"
	CandyColAcct   = "아이디"
	CandyColAmount = "사탕개수"

	// ScriptHeader はスクリプトシート A 列のヘッダー
	ScriptHeader = "문구"

	// LogTimeLayout はシートに書く可読形式の時刻
	LogTimeLayout = "2006-01-02 15:04:05"
)

// CandyLogHeader はログシートの1行目
var CandyLogHeader = []string{CandyColTime, CandyColName, CandyColAcct, CandyColAmount}

// CandyConfig は사탕 봇の設定
type CandyConfig struct {
	Trigger     string
	LogSheet    string
	ScriptSheet string
	Cooldown    time.Duration
	Location    *time.Location
	Visibility  string
}

// CandyService は [사탕] の受け取りを処理します
// クールダウンはログシートの後方走査で判定するため、判定から追記までをワーカー上の1ジョブで行います
type CandyService struct {
	cfg     CandyConfig
	grammar domain.Grammar
	queue   QueuePort
	rp      ReplyPort
	reward  *RewardResolver
	scan    LogScanCooldown
	now     func() time.Time
}

// NewCandyService は CandyService のインスタンスを作成します
func NewCandyService(cfg CandyConfig, queue QueuePort, rp ReplyPort, reward *RewardResolver) *CandyService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &CandyService{
		cfg:     cfg,
		grammar: domain.CandyGrammar(cfg.Trigger),
		queue:   queue,
		rp:      rp,
		reward:  reward,
		scan: LogScanCooldown{
			ActorColumn: CandyColAcct,
			TimeColumn:  CandyColTime,
			Layout:      LogTimeLayout,
			Location:    cfg.Location,
		},
		now: time.Now,
	}
}

// SetupJob はログシートのヘッダーを整えるジョブを返します（起動時に投入）
func (s *CandyService) SetupJob() Job {
	return Job{
		Name: "candy_setup",
		Run: func(ctx context.Context, wb domain.Workbook) error {
			return wb.EnsureWorksheet(ctx, s.cfg.LogSheet, CandyLogHeader)
		},
	}
}

// candyResult はジョブの結果（再試行しても同じ結果を使う）
type candyResult struct {
	at      time.Time
	cooling *CooldownVerdict
	outcome *domain.RewardOutcome
}

// HandleMention はキーワードを含むメンションをキューに積みます
func (s *CandyService) HandleMention(ctx context.Context, m domain.Mention) error {
	text := StripHTML(m.Content)
	if !IsCandidate(text, s.grammar.Triggers) {
		return nil
	}

	roll := s.reward.Roll()
	res := &candyResult{}
	job := Job{
		Name: "candy_claim",
		Acct: m.Actor.Acct,
		Run: func(ctx context.Context, wb domain.Workbook) error {
			return s.claim(ctx, wb, m.Actor, roll, res)
		},
		Done: func(ctx context.Context, err error) {
			if err != nil {
				return
			}
			s.reply(ctx, m, s.replyText(m.Actor, res))
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		return fmt.Errorf("candy: ジョブ投入失敗 (acct=%s): %w", m.Actor.Acct, err)
	}
	return nil
}

// claim はクールダウン確認→文言選択→ログ追記を行います（ワーカー上で実行）
// ハズレでも 0 個で記録し、クールダウンを適用します
func (s *CandyService) claim(ctx context.Context, wb domain.Workbook, actor domain.Actor, roll int, res *candyResult) error {
	if res.outcome == nil {
		records, err := wb.ReadAll(ctx, s.cfg.LogSheet)
		if err != nil {
			return fmt.Errorf("candy: ログ読み込み失敗 (sheet=%s): %w", s.cfg.LogSheet, err)
		}

		now := s.now()
		v := EvaluateCooldown(s.scan.LastAction(records, actor.Acct), now, s.cfg.Cooldown)
		if !v.Allowed() {
			res.cooling = &v
			return nil
		}

		scripts, err := s.loadScripts(ctx, wb)
		if err != nil {
			return err
		}
		out := s.reward.Resolve(scripts, roll)
		res.at = now
		res.outcome = &out
	}

	row := []string{
		res.at.In(s.cfg.Location).Format(LogTimeLayout),
		actor.Name(),
		actor.Acct,
		strconv.Itoa(res.outcome.Award),
	}
	if err := wb.AppendRow(ctx, s.cfg.LogSheet, row); err != nil {
		return fmt.Errorf("candy: ログ追記失敗 (acct=%s): %w", actor.Acct, err)
	}
	return nil
}

// loadScripts はスクリプトシートの文言を読みます。シートがなければ空です
func (s *CandyService) loadScripts(ctx context.Context, wb domain.Workbook) ([]string, error) {
	if s.cfg.ScriptSheet == "" {
		return nil, nil
	}
	records, err := wb.ReadAll(ctx, s.cfg.ScriptSheet)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("candy: スクリプト読み込み失敗 (sheet=%s): %w", s.cfg.ScriptSheet, err)
	}
	scripts := make([]string, 0, len(records))
	for _, r := range records {
		scripts = append(scripts, r[ScriptHeader])
	}
	return scripts, nil
}

func (s *CandyService) replyText(actor domain.Actor, res *candyResult) string {
	if res.cooling != nil {
		return fmt.Sprintf("%s 님, 쿨다운 남음: %s.", actor.Name(), res.cooling.RemainingText())
	}
	return fmt.Sprintf("%s이/가 호박을 잡기 위해 움직인다 . . . \n\n %s", actor.Name(), res.outcome.Text)
}

func (s *CandyService) reply(ctx context.Context, m domain.Mention, text string) {
	err := s.rp.Reply(ctx, NewReply(m, text, s.cfg.Visibility))
	if err != nil {
		log.Error().Err(err).Str("acct", m.Actor.Acct).Msg("candy: 返信失敗")
	}
}
