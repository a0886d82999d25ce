package mastodon

import (
	"testing"
	"time"

	"github.com/mattn/go-mastodon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mention-bot/project/dto"
)

func TestReplyBody(t *testing.T) {
	assert.Equal(t, "@alice 안녕", ReplyBody("alice", "안녕"))
	assert.Equal(t, "@alice 안녕", ReplyBody("@alice", "안녕"))
	assert.Equal(t, "안녕", ReplyBody(" ", "안녕"))
}

func TestToNotification(t *testing.T) {
	at := time.Date(2024, 10, 31, 12, 0, 0, 0, time.UTC)
	n := &mastodon.Notification{
		ID:        "n1",
		Type:      "mention",
		CreatedAt: at,
		Status: &mastodon.Status{
			ID:      "s1",
			Content: "<p>@bot [사탕]</p>",
			Account: mastodon.Account{ID: "10001", Acct: "alice", DisplayName: "앨리스"},
		},
	}

	got := ToNotification(n)
	require.NotNil(t, got.Status)
	assert.Equal(t, dto.Notification{
		ID:        "n1",
		Type:      dto.NotificationTypeMention,
		CreatedAt: at,
		Status: &dto.NotificationStatus{
			ID:      "s1",
			Content: "<p>@bot [사탕]</p>",
			Account: dto.NotificationAccount{ID: "10001", Acct: "alice", DisplayName: "앨리스"},
		},
	}, got)

	follow := ToNotification(&mastodon.Notification{ID: "n2", Type: "follow"})
	assert.Nil(t, follow.Status)
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(Options{Server: "https://example.social"})
	require.Error(t, err)

	c, err := NewClient(Options{Server: "https://example.social", AccessToken: "t"})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.reconnect)
}
