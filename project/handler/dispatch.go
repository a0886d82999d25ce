package handler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"mention-bot/project/domain"
	"mention-bot/project/dto"
	"mention-bot/project/service"
)

// Dispatcher は通知ストリームからメンションだけを取り出してバリアントに渡します
type Dispatcher struct {
	handler service.MentionHandler
	now     func() time.Time
}

// NewDispatcher は Dispatcher を作成します
func NewDispatcher(h service.MentionHandler) *Dispatcher {
	return &Dispatcher{handler: h, now: time.Now}
}

// Dispatch は通知1件を処理します
// mention 以外は無視し、処理エラーはログに残すだけで呼び出し元には返しません
func (d *Dispatcher) Dispatch(ctx context.Context, n dto.Notification) {
	if n.Type != dto.NotificationTypeMention || n.Status == nil {
		return
	}

	m := domain.Mention{
		StatusID: n.Status.ID,
		Actor: domain.Actor{
			ID:          n.Status.Account.ID,
			Acct:        n.Status.Account.Acct,
			DisplayName: n.Status.Account.DisplayName,
		},
		Content:    n.Status.Content,
		ReceivedAt: n.CreatedAt,
	}
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = d.now()
	}
	if err := m.Validate(); err != nil {
		log.Warn().Err(err).Str("notification_id", n.ID).Msg("dispatch: 不完全なメンションを無視")
		return
	}

	if err := d.handler.HandleMention(ctx, m); err != nil {
		ev := log.Error()
		if errors.Is(err, domain.ErrQueueFull) {
			ev = log.Warn()
		}
		ev.Err(err).Str("acct", m.Actor.Acct).Str("status_id", m.StatusID).Msg("dispatch: メンション処理失敗")
	}
}
