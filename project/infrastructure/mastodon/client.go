package mastodon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-mastodon"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"mention-bot/project/dto"
	"mention-bot/project/service"
)

// Options は Mastodon クライアントの設定
type Options struct {
	Server      string
	AccessToken string

	// ReplyEvery は返信投稿の最小間隔（0 なら制限なし）
	ReplyEvery time.Duration

	// ReconnectDelay はストリーム切断後に再接続するまでの固定待ち時間
	ReconnectDelay time.Duration
}

// Client は service.ReplyPort と通知ストリームの Mastodon 実装です
type Client struct {
	cli       *mastodon.Client
	limiter   *rate.Limiter
	reconnect time.Duration
}

// NewClient は Mastodon クライアントを初期化します
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Server) == "" || strings.TrimSpace(opts.AccessToken) == "" {
		return nil, fmt.Errorf("mastodon: サーバーURLとアクセストークンは必須です")
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}

	return &Client{
		cli: mastodon.NewClient(&mastodon.Config{
			Server:      opts.Server,
			AccessToken: opts.AccessToken,
		}),
		limiter:   newLimiter(opts.ReplyEvery),
		reconnect: opts.ReconnectDelay,
	}, nil
}

func newLimiter(every time.Duration) *rate.Limiter {
	if every <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(every), 1)
}

// Reply は元投稿への返信を投稿します
// 通知が確実に届くよう本文の先頭に宛先ハンドルを付けます
func (c *Client) Reply(ctx context.Context, r service.Reply) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mastodon: 返信待機中断 (status=%s): %w", r.InReplyTo, err)
	}

	toot := &mastodon.Toot{
		Status:      ReplyBody(r.Acct, r.Text),
		InReplyToID: mastodon.ID(r.InReplyTo),
		Visibility:  r.Visibility,
	}
	if _, err := c.cli.PostStatus(ctx, toot); err != nil {
		return fmt.Errorf("mastodon: 返信投稿失敗 (status=%s, acct=%s): %w", r.InReplyTo, r.Acct, err)
	}
	return nil
}

// ReplyBody は "@acct 本文" 形式の本文を組み立てます
func ReplyBody(acct, text string) string {
	acct = strings.TrimPrefix(strings.TrimSpace(acct), "@")
	if acct == "" {
		return text
	}
	return "@" + acct + " " + text
}

// Stream はユーザーストリームを購読し、通知を1件ずつ fn に渡します
// 切断やエラーはログに残して固定時間後に再接続し、ctx が終わるまで戻りません
func (c *Client) Stream(ctx context.Context, fn func(ctx context.Context, n dto.Notification)) error {
	for {
		events, err := c.cli.StreamingUser(ctx)
		if err != nil {
			log.Error().Err(err).Dur("retry_in", c.reconnect).Msg("mastodon: ストリーム接続失敗")
		} else {
			log.Info().Msg("mastodon: ストリーム接続")
			c.consume(ctx, events, fn)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnect):
		}
	}
}

// consume はチャネルが閉じるまでイベントを処理します
func (c *Client) consume(ctx context.Context, events chan mastodon.Event, fn func(ctx context.Context, n dto.Notification)) {
	for ev := range events {
		switch e := ev.(type) {
		case *mastodon.NotificationEvent:
			if e.Notification == nil {
				continue
			}
			fn(ctx, ToNotification(e.Notification))
		case *mastodon.ErrorEvent:
			log.Warn().Str("error", e.Error()).Msg("mastodon: ストリームエラー")
		}
	}
	log.Warn().Msg("mastodon: ストリーム切断")
}

// ToNotification は SDK の通知を dto.Notification に変換します
func ToNotification(n *mastodon.Notification) dto.Notification {
	out := dto.Notification{
		ID:        string(n.ID),
		Type:      n.Type,
		CreatedAt: n.CreatedAt,
	}
	if n.Status != nil {
		out.Status = &dto.NotificationStatus{
			ID:      string(n.Status.ID),
			Content: n.Status.Content,
			Account: dto.NotificationAccount{
				ID:          string(n.Status.Account.ID),
				Acct:        n.Status.Account.Acct,
				DisplayName: n.Status.Account.DisplayName,
			},
		}
	}
	return out
}
