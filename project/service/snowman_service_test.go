package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mention-bot/project/domain"
	"mention-bot/project/infrastructure/store"
)

type snowmanFixture struct {
	svc     *SnowmanService
	players *store.PlayerFile
	wb      *store.MemoryWorkbook
	q       *syncQueue
	rp      *recordedReplies
	now     time.Time
}

func newSnowmanFixture(t *testing.T, rng Randomizer) *snowmanFixture {
	t.Helper()
	ctx := context.Background()

	players, err := store.OpenPlayerFile(filepath.Join(t.TempDir(), "player_db.json"))
	require.NoError(t, err)
	require.NoError(t, players.Put(ctx, "alice", domain.Player{Team: "1조"}))
	require.NoError(t, players.Put(ctx, "bob", domain.Player{Team: "1조"}))
	require.NoError(t, players.Put(ctx, "erin", domain.Player{Team: "2조"}))
	require.NoError(t, players.Put(ctx, "dave", domain.Player{}))

	f := &snowmanFixture{players: players, wb: store.NewMemoryWorkbook(), rp: &recordedReplies{}, now: baseTime}
	f.q = &syncQueue{wb: f.wb}
	f.svc = NewSnowmanService(SnowmanConfig{
		Cooldown:   time.Hour,
		Visibility: "public",
		Operator:   "MARCH",
		Targets:    testTargets,
	}, players, f.q, f.rp, NewRewardResolver(rng, 0, 0))
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *snowmanFixture) send(t *testing.T, id, acct, text string) Reply {
	t.Helper()
	require.NoError(t, f.svc.HandleMention(context.Background(), mention(id, acct, text)))
	return f.rp.last()
}

func TestSnowmanService_Register(t *testing.T) {
	ctx := context.Background()
	f := newSnowmanFixture(t, &seqRand{})

	r := f.send(t, "101", "alice", "@bot [눈사람/머리]")
	assert.Contains(t, r.Text, "눈사람의 머리 을/를 멋지게 만들어 보자.")
	assert.Contains(t, r.Text, "조 이름 ― 1조")
	assert.Contains(t, r.Text, "눈덩이 크기 ― 200")

	// ハンドルから数値IDへ昇格している
	p, err := f.players.Get(ctx, "101")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleHead, p.Role)
	_, err = f.players.Get(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	snap := f.wb.Snapshot("1조")
	require.GreaterOrEqual(t, len(snap), RowFinalScore)
	assert.Equal(t, "alice", snap[RowHandle-1][0])
	assert.Equal(t, "200", snap[RowSize-1][0])
	assert.Equal(t, "63", snap[RowFinalScore-1][0])

	r = f.send(t, "102", "bob", "[눈사람/머리]")
	assert.Contains(t, r.Text, "1조의 머리 역할이 이미 존재합니다.")
	assert.Contains(t, r.Text, "@MARCH")

	// 拒否された登録は何も書き換えない（キーの昇格のみ）
	bob, err := f.players.Get(ctx, "102")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleNone, bob.Role)
	assert.Nil(t, bob.LastAction(domain.GroupSnowman))
	head, err := f.wb.GetCell(ctx, "1조", RowHandle, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", head)
	body, err := f.wb.GetCell(ctx, "1조", RowHandle, 2)
	require.NoError(t, err)
	assert.Empty(t, body)

	r = f.send(t, "101", "alice", "[눈사람/몸통]")
	assert.Contains(t, r.Text, "이미 할당되었습니다")

	r = f.send(t, "102", "bob", "[눈사람/몸통]")
	assert.Contains(t, r.Text, "눈사람의 몸통 을/를")
	assert.Equal(t, "bob", f.wb.Snapshot("1조")[RowHandle-1][1])

	assert.Contains(t, f.send(t, "103", "carol", "[눈사람/머리]").Text, "참여가 확인되지 않았습니다")
	assert.Contains(t, f.send(t, "104", "dave", "[눈사람/머리]").Text, "등록된 캐릭터가 아닙니다")
}

func TestSnowmanService_RegisterRollbackOnAbandon(t *testing.T) {
	ctx := context.Background()
	f := newSnowmanFixture(t, &seqRand{})
	f.q.fail = domain.ErrRateLimited

	r := f.send(t, "101", "alice", "[눈사람/머리]")
	assert.Contains(t, r.Text, "연동 오류가 발생하였습니다.")

	p, err := f.players.Get(ctx, "101")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleNone, p.Role, "予約した役割は取り消される")

	f.q.fail = nil
	f.q.full = true
	err = f.svc.HandleMention(ctx, mention("101", "alice", "[눈사람/머리]"))
	assert.ErrorIs(t, err, domain.ErrQueueFull)
	p, _ = f.players.Get(ctx, "101")
	assert.Equal(t, domain.RoleNone, p.Role)
}

func TestSnowmanService_SizeDecorationAndCooldown(t *testing.T) {
	ctx := context.Background()
	// 던지기の Jitter: IntN(21)=15 → +5
	f := newSnowmanFixture(t, &seqRand{ints: []int{15}, floats: []float64{0}})
	f.send(t, "101", "alice", "[눈사람/머리]")

	r := f.send(t, "101", "alice", "[눈사람/굴리기]")
	assert.Contains(t, r.Text, "눈덩이를 데굴데굴 굴리자")
	assert.Contains(t, r.Text, "현재 크기 ― 210")
	assert.Equal(t, "210", f.wb.Snapshot("1조")[RowSize-1][0])

	p, err := f.players.Get(ctx, "101")
	require.NoError(t, err)
	last := p.LastAction(domain.GroupSnowman)
	require.NotNil(t, last)
	assert.True(t, last.Equal(baseTime))
	assert.Nil(t, p.LastAction(domain.GroupDecoration))

	// 同じグループは待機
	r = f.send(t, "101", "alice", "[눈사람/깎기]")
	assert.Contains(t, r.Text, "손이 녹을 때까지 잠시 기다리자.")
	assert.Contains(t, r.Text, "60분 0초")
	assert.Equal(t, "210", f.wb.Snapshot("1조")[RowSize-1][0])

	// 装飾は別グループ
	r = f.send(t, "101", "alice", "[눈사람/장식]")
	assert.Contains(t, r.Text, "획득 ― 당근")
	assert.Contains(t, r.Text, "보유 현황 ― 1 개")
	snap := f.wb.Snapshot("1조")
	assert.Equal(t, "1", snap[2][0])
	// 137 目標で 210 → 27点、몸통 未登録(200) → 26点、당근 10点
	assert.Equal(t, "63", snap[RowFinalScore-1][0])

	f.now = baseTime.Add(time.Hour)
	r = f.send(t, "101", "alice", "[눈사람/던지기]")
	assert.Contains(t, r.Text, "현재 크기 ― 215")
}

func TestSnowmanService_Rejections(t *testing.T) {
	f := newSnowmanFixture(t, &seqRand{})

	assert.Contains(t, f.send(t, "105", "erin", "[눈사람/굴리기]").Text, "역할이 할당되지 않았습니다")
	assert.Contains(t, f.send(t, "105", "erin", "[눈사람/점프]").Text, "존재하지 않는 커맨드입니다")

	n := f.rp.count()
	require.NoError(t, f.svc.HandleMention(context.Background(), mention("105", "erin", "눈사람 굴리기")))
	assert.Equal(t, n, f.rp.count(), "候補でなければ無視")
}

func TestSnowmanService_InflightGuard(t *testing.T) {
	ctx := context.Background()
	f := newSnowmanFixture(t, &seqRand{})
	f.send(t, "101", "alice", "[눈사람/머리]")

	f.q.hold = true
	require.NoError(t, f.svc.HandleMention(ctx, mention("101", "alice", "[눈사람/굴리기]")))
	r := f.send(t, "101", "alice", "[눈사람/굴리기]")
	assert.Contains(t, r.Text, "앞선 명령을 처리하는 중")

	// 書き込み完了まではクールダウンを進めない
	p, _ := f.players.Get(ctx, "101")
	assert.Nil(t, p.LastAction(domain.GroupSnowman))

	f.q.flush()
	assert.Contains(t, f.rp.last().Text, "현재 크기 ― 210")
	p, _ = f.players.Get(ctx, "101")
	assert.NotNil(t, p.LastAction(domain.GroupSnowman))

	f.now = baseTime.Add(time.Hour)
	assert.Contains(t, f.send(t, "101", "alice", "[눈사람/깎기]").Text, "현재 크기 ― 200")
}

func TestSnowmanService_RecomputeJob(t *testing.T) {
	f := newSnowmanFixture(t, &seqRand{})
	f.send(t, "101", "alice", "[눈사람/머리]")

	var got ScoreResult
	var gotErr error
	require.NoError(t, f.q.Enqueue(f.svc.RecomputeJob("1조", func(res ScoreResult, err error) {
		got, gotErr = res, err
	})))
	require.NoError(t, gotErr)
	assert.Equal(t, 63, got.Final)

	require.NoError(t, f.q.Enqueue(f.svc.RecomputeJob("없는조", func(res ScoreResult, err error) {
		gotErr = err
	})))
	assert.ErrorIs(t, gotErr, domain.ErrNotFound)
}
