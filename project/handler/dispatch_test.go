package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mention-bot/project/domain"
	"mention-bot/project/dto"
)

type recordingHandler struct {
	mu       sync.Mutex
	mentions []domain.Mention
	err      error
}

func (h *recordingHandler) HandleMention(ctx context.Context, m domain.Mention) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mentions = append(h.mentions, m)
	return h.err
}

func (h *recordingHandler) got() []domain.Mention {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Mention(nil), h.mentions...)
}

func mentionNotification(id, acct, content string) dto.Notification {
	return dto.Notification{
		ID:        "n-" + id,
		Type:      dto.NotificationTypeMention,
		CreatedAt: time.Date(2025, 10, 31, 20, 0, 0, 0, time.UTC),
		Status: &dto.NotificationStatus{
			ID:      "s-" + id,
			Content: content,
			Account: dto.NotificationAccount{ID: id, Acct: acct, DisplayName: "표시 " + acct},
		},
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	h := &recordingHandler{}
	d := NewDispatcher(h)
	ctx := context.Background()

	d.Dispatch(ctx, mentionNotification("1", "alice", "[사탕]"))

	got := h.got()
	require.Len(t, got, 1)
	assert.Equal(t, "s-1", got[0].StatusID)
	assert.Equal(t, domain.Actor{ID: "1", Acct: "alice", DisplayName: "표시 alice"}, got[0].Actor)
	assert.Equal(t, "[사탕]", got[0].Content)
}

func TestDispatcher_IgnoresOthers(t *testing.T) {
	h := &recordingHandler{}
	d := NewDispatcher(h)
	ctx := context.Background()

	fav := mentionNotification("1", "alice", "[사탕]")
	fav.Type = "favourite"
	d.Dispatch(ctx, fav)

	d.Dispatch(ctx, dto.Notification{ID: "x", Type: dto.NotificationTypeMention})

	noAcct := mentionNotification("2", "", "[사탕]")
	d.Dispatch(ctx, noAcct)

	assert.Empty(t, h.got())
}

func TestDispatcher_FillsMissingTimeAndSwallowsErrors(t *testing.T) {
	h := &recordingHandler{err: domain.ErrQueueFull}
	d := NewDispatcher(h)
	fixed := time.Date(2025, 12, 24, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	n := mentionNotification("1", "alice", "[눈사람/굴리기]")
	n.CreatedAt = time.Time{}
	d.Dispatch(context.Background(), n)
	d.Dispatch(context.Background(), n)

	got := h.got()
	require.Len(t, got, 2, "エラーでも次の通知を処理する")
	assert.Equal(t, fixed, got[0].ReceivedAt)
}
