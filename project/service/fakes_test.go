package service

import (
	"context"
	"sync"
	"time"

	"mention-bot/project/domain"
)

// syncQueue は投入されたジョブをその場で Workbook に対して実行します
type syncQueue struct {
	wb domain.Workbook

	// hold が true の間はジョブを溜めるだけにします
	hold bool
	// fail を設定すると Run を呼ばずに放棄扱いにします
	fail error
	// full を設定すると満杯として拒否します
	full bool

	pending []Job
	names   []string
}

func (q *syncQueue) Enqueue(job Job) error {
	if q.full {
		return domain.ErrQueueFull
	}
	q.names = append(q.names, job.Name)
	if q.hold {
		q.pending = append(q.pending, job)
		return nil
	}
	q.exec(job)
	return nil
}

func (q *syncQueue) exec(job Job) {
	ctx := context.Background()
	err := q.fail
	if err == nil {
		err = job.Run(ctx, q.wb)
	}
	if job.Done != nil {
		job.Done(ctx, err)
	}
}

func (q *syncQueue) flush() {
	q.hold = false
	jobs := q.pending
	q.pending = nil
	for _, j := range jobs {
		q.exec(j)
	}
}

type recordedReplies struct {
	mu      sync.Mutex
	replies []Reply
}

func (r *recordedReplies) Reply(ctx context.Context, rep Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, rep)
	return nil
}

func (r *recordedReplies) last() Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		return Reply{}
	}
	return r.replies[len(r.replies)-1]
}

func (r *recordedReplies) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.replies)
}

// seqRand は指定した値を順番に返す乱数源です。尽きたら 0 を返します
type seqRand struct {
	ints   []int
	floats []float64
}

func (s *seqRand) IntN(n int) int {
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[0]
	s.ints = s.ints[1:]
	return v % n
}

func (s *seqRand) Float64() float64 {
	if len(s.floats) == 0 {
		return 0
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

var baseTime = time.Date(2025, 10, 31, 20, 0, 0, 0, time.UTC)

func mention(id, acct, content string) domain.Mention {
	return domain.Mention{
		StatusID:   "status-" + acct,
		Actor:      domain.Actor{ID: id, Acct: acct},
		Content:    content,
		ReceivedAt: baseTime,
	}
}
