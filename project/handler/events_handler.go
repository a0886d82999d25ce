package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mention-bot/project/dto"
	"mention-bot/project/infrastructure/httpsec"
	slackinfra "mention-bot/project/infrastructure/slack"
)

// UserLookup は Slack ユーザーIDから表示情報を引くポートです
type UserLookup interface {
	LookupUser(ctx context.Context, userID string) (slackinfra.User, error)
}

// EventsHandler は Slack Events API からの app_mention を Dispatcher に渡します
type EventsHandler struct {
	signingSecret string
	users         UserLookup
	dispatcher    *Dispatcher

	// mu はメンション処理を1件ずつに直列化します
	mu sync.Mutex
}

// NewEventsHandler はイベントハンドラーを作成します
func NewEventsHandler(signingSecret string, users UserLookup, dispatcher *Dispatcher) *EventsHandler {
	return &EventsHandler{
		signingSecret: signingSecret,
		users:         users,
		dispatcher:    dispatcher,
	}
}

// ServeHTTP は Slack イベント受信エンドポイントです
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// リクエスト本体を読み込む
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "リクエスト本体の読み込み失敗", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// Slack 署名検証
	signature := r.Header.Get("X-Slack-Signature")
	timestamp := r.Header.Get("X-Slack-Request-Timestamp")
	if err := httpsec.VerifySlackSignature(h.signingSecret, signature, timestamp, string(body)); err != nil {
		log.Warn().Err(err).Msg("events: 署名検証失敗")
		http.Error(w, "署名検証失敗", http.StatusUnauthorized)
		return
	}

	var req dto.SlackEventEnvelope
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "JSON パース失敗", http.StatusBadRequest)
		return
	}

	// URL 検証に応答
	if req.Type == "url_verification" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(req.Challenge))
		return
	}

	// 再送は処理済みとして扱う（二重付与を防ぐ）
	if r.Header.Get("X-Slack-Retry-Num") != "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if req.Type != "event_callback" {
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// ユーザー名の解決から投入までを到着順に1件ずつ行います
	h.mu.Lock()
	if n, ok := h.toNotification(ctx, req); ok {
		h.dispatcher.Dispatch(ctx, n)
	}
	h.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

// toNotification は app_mention イベントを dto.Notification に変換します
// Bot 自身の投稿や app_mention 以外は false を返します
func (h *EventsHandler) toNotification(ctx context.Context, req dto.SlackEventEnvelope) (dto.Notification, bool) {
	ev := req.Event
	if ev.Type != "app_mention" || ev.BotID != "" || ev.SubType == "bot_message" {
		return dto.Notification{}, false
	}

	// スレッド内ならスレッドに、そうでなければ投稿自体にぶら下げる
	root := ev.TS
	if ev.ThreadTS != "" {
		root = ev.ThreadTS
	}

	account := dto.NotificationAccount{ID: ev.User, Acct: ev.User}
	if h.users != nil {
		u, err := h.users.LookupUser(ctx, ev.User)
		if err != nil {
			log.Warn().Err(err).Str("user", ev.User).Msg("events: ユーザー情報取得失敗（IDで続行）")
		} else {
			account.Acct = u.Name
			account.DisplayName = u.DisplayName
		}
	}

	createdAt := time.Now()
	if req.EventTime > 0 {
		createdAt = time.Unix(req.EventTime, 0)
	}

	return dto.Notification{
		ID:        req.EventID,
		Type:      dto.NotificationTypeMention,
		CreatedAt: createdAt,
		Status: &dto.NotificationStatus{
			ID:      slackinfra.ThreadRef(ev.Channel, root),
			Content: ev.Text,
			Account: account,
		},
	}, true
}
