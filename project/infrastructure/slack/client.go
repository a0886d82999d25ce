package slack

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"mention-bot/project/service"
)

// SlackAPI は使用する Slack Web API の最小インターフェースです（テストで差し替え）
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
}

// User は送信者の表示用情報
type User struct {
	ID          string
	Name        string // ハンドル相当
	DisplayName string
}

// SlackClient は service.ReplyPort の Slack SDK 実装です
type SlackClient struct {
	api     SlackAPI
	limiter *rate.Limiter

	mu    sync.Mutex
	users map[string]User // userID -> User
}

// NewSlackClient は Bot トークンから Slack クライアントを初期化します
func NewSlackClient(botToken string, replyEvery time.Duration) *SlackClient {
	return NewSlackClientWithAPI(slack.New(botToken), replyEvery)
}

// NewSlackClientWithAPI は任意の API 実装で Slack クライアントを作成します
func NewSlackClientWithAPI(api SlackAPI, replyEvery time.Duration) *SlackClient {
	limit := rate.Inf
	if replyEvery > 0 {
		limit = rate.Every(replyEvery)
	}
	return &SlackClient{
		api:     api,
		limiter: rate.NewLimiter(limit, 1),
		users:   make(map[string]User),
	}
}

// ThreadRef はチャンネルと投稿TSを返信先IDにまとめます
// 形式: "channel:ts"
func ThreadRef(channelID, ts string) string {
	return channelID + ":" + ts
}

// SplitThreadRef は ThreadRef の逆変換です
func SplitThreadRef(ref string) (channelID, ts string, err error) {
	channelID, ts, ok := strings.Cut(ref, ":")
	if !ok || channelID == "" || ts == "" {
		return "", "", fmt.Errorf("slack: 返信先IDの形式が不正です (ref=%s)", ref)
	}
	return channelID, ts, nil
}

// Reply はスレッドにメッセージを投稿します
func (sc *SlackClient) Reply(ctx context.Context, r service.Reply) error {
	channelID, ts, err := SplitThreadRef(r.InReplyTo)
	if err != nil {
		return err
	}
	if err := sc.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("slack: 返信待機中断 (channel=%s): %w", channelID, err)
	}

	_, _, err = sc.api.PostMessageContext(
		ctx,
		channelID,
		slack.MsgOptionText(replyText(r), false),
		slack.MsgOptionTS(ts),
	)
	if err != nil {
		return fmt.Errorf("slack: スレッドメッセージ投稿失敗 (channel=%s, ts=%s): %w", channelID, ts, err)
	}

	return nil
}

// replyText は宛先のメンションを先頭に付けた本文を返します
// Slack は名前ではメンションできないため、ユーザーIDがあればそちらを使います
func replyText(r service.Reply) string {
	switch {
	case r.ActorID != "":
		return fmt.Sprintf("<@%s> %s", r.ActorID, r.Text)
	case r.Acct != "":
		return "@" + r.Acct + " " + r.Text
	}
	return r.Text
}

// LookupUser はユーザー情報を取得します（プロセス内キャッシュあり）
func (sc *SlackClient) LookupUser(ctx context.Context, userID string) (User, error) {
	sc.mu.Lock()
	if u, ok := sc.users[userID]; ok {
		sc.mu.Unlock()
		return u, nil
	}
	sc.mu.Unlock()

	info, err := sc.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return User{}, fmt.Errorf("slack: ユーザー情報取得失敗 (user=%s): %w", userID, err)
	}

	u := User{ID: info.ID, Name: info.Name, DisplayName: info.Profile.DisplayName}
	if u.DisplayName == "" {
		u.DisplayName = info.RealName
	}

	sc.mu.Lock()
	sc.users[userID] = u
	sc.mu.Unlock()
	return u, nil
}
