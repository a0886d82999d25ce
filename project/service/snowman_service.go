package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mention-bot/project/domain"
)

// SnowmanConfig は눈사람 게임の設定
type SnowmanConfig struct {
	Cooldown   time.Duration
	Visibility string

	// Operator は問い合わせ先として案内する運営アカウント
	Operator string

	Targets ScoreTargets
}

// sizeBands は役割ごとのサイズ判定の境界
type sizeBands struct {
	Low, High            int
	PerfectLo, PerfectHi int
	LowMsg, HighMsg      string
}

const (
	encourageMsg = "눈덩이가 격려의 말을 던진다. “조금 더 노력해 봐. 거의 다 왔어!”"
	perfectMsg   = "눈덩이가 자신감에 겨워 외친다. “올해의 가장 완벽한 눈사람은 분명 나일 거야!”"
)

var roleBands = map[domain.Role]sizeBands{
	domain.RoleHead: {
		Low: 80, High: 190, PerfectLo: 131, PerfectHi: 139,
		LowMsg:  "눈덩이가 투덜거린다. “이렇게 작은 머리로 뭘 보라는 거야?”",
		HighMsg: "눈덩이가 화를 낸다. “무거워, 무거워, 무거워! 이러다 무너지겠어!”",
	},
	domain.RoleBody: {
		Low: 220, High: 330, PerfectLo: 271, PerfectHi: 279,
		LowMsg:  "눈덩이가 투덜거린다. “이렇게나 작게 만들 거면 차라리 나를 머리로 올리지 그래?”",
		HighMsg: "눈덩이가 비아냥 댄다. “온 사방의 눈이란 눈은 다 끌어 모았군. 너무 뚱뚱해!”",
	},
}

// SizeFlavor はサイズに応じた눈덩이 の反応を返します
func SizeFlavor(role domain.Role, size int) string {
	b, ok := roleBands[role]
	if !ok {
		return "눈덩이가 잠잠하다."
	}
	switch {
	case size <= b.Low:
		return b.LowMsg
	case size >= b.High:
		return b.HighMsg
	case size >= b.PerfectLo && size <= b.PerfectHi:
		return perfectMsg
	}
	return encourageMsg
}

// SnowmanService は눈사람 게임のコマンドを処理します
// プレイヤーDBは受信側で同期的に読み書きし、チームシートへの書き込みはキュー経由でワーカーが行います
type SnowmanService struct {
	cfg     SnowmanConfig
	grammar domain.Grammar
	players domain.PlayerRepository
	queue   QueuePort
	rp      ReplyPort
	reward  *RewardResolver
	scorer  Scorer
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]bool
}

// NewSnowmanService は SnowmanService のインスタンスを作成します
func NewSnowmanService(cfg SnowmanConfig, players domain.PlayerRepository, queue QueuePort, rp ReplyPort, reward *RewardResolver) *SnowmanService {
	return &SnowmanService{
		cfg:      cfg,
		grammar:  domain.SnowmanGrammar(),
		players:  players,
		queue:    queue,
		rp:       rp,
		reward:   reward,
		scorer:   Scorer{Targets: cfg.Targets, Decorations: reward.Decorations},
		now:      time.Now,
		inflight: make(map[string]bool),
	}
}

// HandleMention はコマンドを検証し、登録・サイズ変更・装飾のいずれかに振り分けます
func (s *SnowmanService) HandleMention(ctx context.Context, m domain.Mention) error {
	text := StripHTML(m.Content)
	if !IsCandidate(text, s.grammar.Triggers) {
		return nil
	}

	key, player, err := s.players.Resolve(ctx, m.Actor.ID, m.Actor.Acct)
	if err != nil {
		if errors.Is(err, domain.ErrNotParticipant) {
			s.reply(ctx, m, "참여가 확인되지 않았습니다. "+s.contact())
			return nil
		}
		return fmt.Errorf("snowman: プレイヤー解決失敗 (acct=%s): %w", m.Actor.Acct, err)
	}

	v := Validate(text, s.grammar)
	if v.Kind == domain.CommandUnknown {
		log.Debug().Str("acct", m.Actor.Acct).Str("diag", v.Diagnostic()).Msg("snowman: 未知のコマンド")
		s.reply(ctx, m, "존재하지 않는 커맨드입니다. 오타가 없는지 점검 부탁드리며, 오기재 · 미등록 등으로 판단될 시 "+s.contact())
		return nil
	}

	switch v.Kind {
	case domain.CommandRegisterHead, domain.CommandRegisterBody:
		return s.register(ctx, m, key, player, v.Spec)
	}

	if player.Role == domain.RoleNone {
		s.reply(ctx, m, "역할이 할당되지 않았습니다. [눈사람/머리] · [눈사람/몸통] 역할 등록이 완료되었는지 확인 부탁드리며, 미등록으로 판단될 시 "+s.contact())
		return nil
	}

	cd := PlayerCooldown(player, v.Spec.Group, s.now(), s.cfg.Cooldown)
	if !cd.Allowed() {
		log.Debug().Str("acct", m.Actor.Acct).Str("group", string(v.Spec.Group)).Msg("snowman: クールダウン中")
		s.reply(ctx, m, "손이 녹을 때까지 잠시 기다리자.\n\n대기 시간 ― "+cd.RemainingText())
		return nil
	}

	flight := key + "|" + string(v.Spec.Group)
	if !s.begin(flight) {
		s.reply(ctx, m, "앞선 명령을 처리하는 중이다. 잠시 기다리자.")
		return nil
	}

	var job Job
	if v.Kind == domain.CommandDecorate {
		job = s.decorateJob(m, player)
	} else {
		job = s.sizeJob(m, player, v.Spec)
	}
	done := job.Done
	job.Done = func(ctx context.Context, err error) {
		defer s.end(flight)
		if err != nil {
			s.reply(ctx, m, "연동 오류가 발생하였습니다. "+s.contact())
			return
		}
		// ゲーム状態の書き込みが完了してからクールダウンを進めます
		if err := s.players.TouchCooldown(ctx, key, v.Spec.Group, s.now()); err != nil {
			log.Error().Err(err).Str("key", key).Msg("snowman: クールダウン保存失敗")
		}
		done(ctx, nil)
	}

	if err := s.queue.Enqueue(job); err != nil {
		s.end(flight)
		return fmt.Errorf("snowman: ジョブ投入失敗 (acct=%s): %w", m.Actor.Acct, err)
	}
	return nil
}

// register は役割を予約し、チームシートへの書き込みをキューに積みます
// シート書き込みが放棄された場合は予約を取り消します
func (s *SnowmanService) register(ctx context.Context, m domain.Mention, key string, player domain.Player, spec domain.CommandSpec) error {
	if player.Team == "" {
		s.reply(ctx, m, "등록된 캐릭터가 아닙니다. "+s.contact())
		return nil
	}

	assigned, err := s.players.AssignRole(ctx, key, spec.Role)
	switch {
	case errors.Is(err, domain.ErrAlreadyRegistered):
		s.reply(ctx, m, fmt.Sprintf("%s의 %s 역할이 이미 할당되었습니다. %s", player.Team, player.Role, s.contact()))
		return nil
	case errors.Is(err, domain.ErrRoleTaken):
		s.reply(ctx, m, fmt.Sprintf("%s의 %s 역할이 이미 존재합니다. %s", player.Team, spec.Role, s.contact()))
		return nil
	case err != nil:
		return fmt.Errorf("snowman: 役割割り当て失敗 (acct=%s): %w", m.Actor.Acct, err)
	}

	team, col := assigned.Team, assigned.Column()
	job := Job{
		Name: "snowman_register",
		Acct: m.Actor.Acct,
		Run: func(ctx context.Context, wb domain.Workbook) error {
			// チームシートは運営が用意しますが、なければ作ります
			if err := wb.EnsureWorksheet(ctx, team, nil); err != nil {
				return fmt.Errorf("snowman: チームシート準備失敗 (team=%s): %w", team, err)
			}
			if err := wb.UpdateCell(ctx, team, RowHandle, col, m.Actor.Acct); err != nil {
				return fmt.Errorf("snowman: ハンドル書き込み失敗 (team=%s): %w", team, err)
			}
			if err := wb.UpdateCell(ctx, team, RowSize, col, strconv.Itoa(InitialSize)); err != nil {
				return fmt.Errorf("snowman: 初期サイズ書き込み失敗 (team=%s): %w", team, err)
			}
			_, err := s.scorer.Recompute(ctx, wb, team)
			return err
		},
		Done: func(ctx context.Context, err error) {
			if err != nil {
				if rerr := s.players.ReleaseRole(ctx, key, spec.Role); rerr != nil {
					log.Error().Err(rerr).Str("key", key).Msg("snowman: 役割の巻き戻し失敗")
				}
				s.reply(ctx, m, "연동 오류가 발생하였습니다. "+s.contact())
				return
			}
			s.reply(ctx, m, fmt.Sprintf("눈사람의 %s 을/를 멋지게 만들어 보자.\n\n조 이름 ― %s\n눈덩이 크기 ― %d", spec.Role, team, InitialSize))
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		if rerr := s.players.ReleaseRole(ctx, key, spec.Role); rerr != nil {
			log.Error().Err(rerr).Str("key", key).Msg("snowman: 役割の巻き戻し失敗")
		}
		return fmt.Errorf("snowman: 登録ジョブ投入失敗 (acct=%s): %w", m.Actor.Acct, err)
	}
	return nil
}

// sizeJob は눈덩이 サイズを変更し点数を再計算するジョブを作ります
// 再試行時も最初に決めたサイズを書き込みます
func (s *SnowmanService) sizeJob(m domain.Mention, player domain.Player, spec domain.CommandSpec) Job {
	team, col := player.Team, player.Column()
	var planned *int
	return Job{
		Name: "snowman_size",
		Acct: m.Actor.Acct,
		Run: func(ctx context.Context, wb domain.Workbook) error {
			if planned == nil {
				cur, err := wb.GetCell(ctx, team, RowSize, col)
				if err != nil {
					return fmt.Errorf("snowman: サイズ読み込み失敗 (team=%s): %w", team, err)
				}
				next := parseCount(cur, InitialSize) + spec.SizeDelta
				if spec.SizeJitter > 0 {
					next += s.reward.Jitter(spec.SizeJitter)
				}
				planned = &next
			}
			if err := wb.UpdateCell(ctx, team, RowSize, col, strconv.Itoa(*planned)); err != nil {
				return fmt.Errorf("snowman: サイズ書き込み失敗 (team=%s): %w", team, err)
			}
			_, err := s.scorer.Recompute(ctx, wb, team)
			return err
		},
		Done: func(ctx context.Context, _ error) {
			text := fmt.Sprintf("%s\n%s\n\n현재 크기 ― %d", spec.Intro, SizeFlavor(player.Role, *planned), *planned)
			s.reply(ctx, m, text)
		},
	}
}

// decorateJob は装飾を1つ抽選してカウンターを増やすジョブを作ります
func (s *SnowmanService) decorateJob(m domain.Mention, player domain.Player) Job {
	team, col := player.Team, player.Column()
	var (
		picked   *domain.Decoration
		newCount int
	)
	return Job{
		Name: "snowman_decorate",
		Acct: m.Actor.Acct,
		Run: func(ctx context.Context, wb domain.Workbook) error {
			if picked == nil {
				d := s.reward.PickDecoration()
				cur, err := wb.GetCell(ctx, team, d.Row, col)
				if err != nil {
					return fmt.Errorf("snowman: 装飾数読み込み失敗 (team=%s): %w", team, err)
				}
				newCount = parseCount(cur, 0) + d.Yield
				picked = &d
			}
			if err := wb.UpdateCell(ctx, team, picked.Row, col, strconv.Itoa(newCount)); err != nil {
				return fmt.Errorf("snowman: 装飾数書き込み失敗 (team=%s): %w", team, err)
			}
			_, err := s.scorer.Recompute(ctx, wb, team)
			return err
		},
		Done: func(ctx context.Context, _ error) {
			text := fmt.Sprintf("장식들이 담긴 주머니를 뒤적거리자⋯\n\n%s 이/가 나왔다! 어디에 장식해야 예쁠까?\n\n획득 ― %s\n보유 현황 ― %d 개",
				picked.Name, picked.Name, newCount)
			s.reply(ctx, m, text)
		},
	}
}

func (s *SnowmanService) begin(flight string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[flight] {
		return false
	}
	s.inflight[flight] = true
	return true
}

func (s *SnowmanService) end(flight string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, flight)
}

func (s *SnowmanService) contact() string {
	return fmt.Sprintf("운영 계정(@%s)으로 문의해 주십시오.", s.cfg.Operator)
}

func (s *SnowmanService) reply(ctx context.Context, m domain.Mention, text string) {
	err := s.rp.Reply(ctx, NewReply(m, text, s.cfg.Visibility))
	if err != nil {
		log.Error().Err(err).Str("acct", m.Actor.Acct).Msg("snowman: 返信失敗")
	}
}

// RecomputeJob はチームの点数だけを再計算するジョブを返します（運営コマンド用）
func (s *SnowmanService) RecomputeJob(team string, done func(ScoreResult, error)) Job {
	var res ScoreResult
	return Job{
		Name: "snowman_recompute",
		Run: func(ctx context.Context, wb domain.Workbook) error {
			r, err := s.scorer.Recompute(ctx, wb, team)
			if err != nil {
				return err
			}
			res = r
			return nil
		},
		Done: func(ctx context.Context, err error) {
			if done != nil {
				done(res, err)
			}
		},
	}
}
