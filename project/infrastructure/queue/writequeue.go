package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"mention-bot/project/domain"
	"mention-bot/project/service"
)

// 処理結果ラベル
const (
	resultOK        = "ok"
	resultAbandoned = "abandoned"
	resultExhausted = "exhausted"
)

// Options は書き込みキューの設定
type Options struct {
	// Capacity はキューの上限
	Capacity int

	// Pacing は1件処理するごとに必ず空ける間隔
	Pacing time.Duration

	// MaxAttempts はレート制限時の試行回数の上限（初回を含む）
	MaxAttempts int

	// BackoffBase は最初の再試行までの待機時間（以後倍々）
	BackoffBase time.Duration

	// Sleep は待機関数（テスト用に差し替え可能。nil なら実時間で待機）
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions は既定値
func DefaultOptions() Options {
	return Options{
		Capacity:    1024,
		Pacing:      50 * time.Millisecond,
		MaxAttempts: 5,
		BackoffBase: time.Second,
	}
}

// item はキューの要素。stop は停止用の番兵です
type item struct {
	job  service.Job
	stop bool
}

// WriteQueue は service.QueuePort の実装です
// 投入は受信側から非ブロッキングで行い、単一のワーカーが FIFO 順に1件ずつ Workbook へ書き込みます
// Workbook ハンドルはワーカーだけが保持します
type WriteQueue struct {
	items chan item
	wb    domain.Workbook
	opts  Options

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// New は WriteQueue を作成します。ワーカーは Run で起動します
func New(wb domain.Workbook, opts Options) *WriteQueue {
	def := DefaultOptions()
	if opts.Capacity <= 0 {
		opts.Capacity = def.Capacity
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = def.BackoffBase
	}
	if opts.Pacing < 0 {
		opts.Pacing = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &WriteQueue{
		items: make(chan item, opts.Capacity),
		wb:    wb,
		opts:  opts,
		done:  make(chan struct{}),
	}
}

// Backoff は attempt 回目の失敗後の待機時間を返します（base, 2base, 4base, ...）
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		attempt = 30
	}
	return base << (attempt - 1)
}

// Enqueue はジョブを非ブロッキングで投入します
// 満杯なら捨てて domain.ErrQueueFull を返します
func (q *WriteQueue) Enqueue(job service.Job) error {
	if job.Run == nil {
		return fmt.Errorf("%w: Run が未設定です (job=%s)", domain.ErrInvalid, job.Name)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.ErrQueueClosed
	}

	select {
	case q.items <- item{job: job}:
		jobsEnqueued.WithLabelValues(job.Name).Inc()
		queueDepth.Set(float64(len(q.items)))
		return nil
	default:
		jobsDropped.WithLabelValues(job.Name).Inc()
		log.Error().Str("job", job.Name).Str("job_id", job.ID).Str("acct", job.Acct).Msg("queue: キュー満杯のためジョブを破棄")
		return fmt.Errorf("%w (job=%s, capacity=%d)", domain.ErrQueueFull, job.Name, cap(q.items))
	}
}

// Len は待機中のジョブ数を返します
func (q *WriteQueue) Len() int {
	return len(q.items)
}

// Run はワーカーループです。番兵を受け取るか ctx が終わるまで戻りません
func (q *WriteQueue) Run(ctx context.Context) error {
	defer close(q.done)
	log.Info().Int("capacity", cap(q.items)).Msg("queue: ワーカー開始")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case it := <-q.items:
			queueDepth.Set(float64(len(q.items)))
			if it.stop {
				log.Info().Msg("queue: ワーカー停止")
				return nil
			}
			q.process(ctx, it.job)
			if err := q.opts.Sleep(ctx, q.opts.Pacing); err != nil {
				return err
			}
		}
	}
}

// Close は番兵を投入し、それまでに積まれたジョブを処理し終えるのを待ちます
func (q *WriteQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.items <- item{stop: true}:
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// process は1件のジョブを実行します
// レート制限のみ再試行し、それ以外のエラーは即座に放棄します
func (q *WriteQueue) process(ctx context.Context, job service.Job) {
	logger := log.With().Str("job", job.Name).Str("job_id", job.ID).Str("acct", job.Acct).Logger()

	var (
		err    error
		result = resultOK
	)
	for attempt := 1; ; attempt++ {
		err = runJob(ctx, q.wb, job)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrRateLimited) {
			result = resultAbandoned
			logger.Error().Err(err).Int("attempt", attempt).Msg("queue: 再試行対象外のエラーのため放棄")
			break
		}
		if attempt >= q.opts.MaxAttempts {
			result = resultExhausted
			logger.Error().Err(err).Int("attempt", attempt).Msg("queue: 再試行上限に達したため放棄")
			break
		}

		delay := Backoff(q.opts.BackoffBase, attempt)
		jobRetries.WithLabelValues(job.Name).Inc()
		logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("queue: レート制限のため再試行")
		if serr := q.opts.Sleep(ctx, delay); serr != nil {
			result = resultAbandoned
			err = serr
			break
		}
	}

	jobsProcessed.WithLabelValues(job.Name, result).Inc()
	if result == resultOK {
		logger.Debug().Msg("queue: ジョブ完了")
	}
	if job.Done != nil {
		runDone(ctx, job, err)
	}
}

// runJob はジョブ内の panic をエラーに変換します（ワーカーを止めないため）
func runJob(ctx context.Context, wb domain.Workbook, job service.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: ジョブ実行中に panic (job=%s): %v", job.Name, r)
		}
	}()
	return job.Run(ctx, wb)
}

func runDone(ctx context.Context, job service.Job, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("job", job.Name).Interface("panic", r).Msg("queue: 完了コールバックで panic")
		}
	}()
	job.Done(ctx, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
