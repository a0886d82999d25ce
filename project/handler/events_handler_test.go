package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mention-bot/project/infrastructure/httpsec"
	slackinfra "mention-bot/project/infrastructure/slack"
)

const testSecret = "signing-secret"

type fakeUsers map[string]slackinfra.User

func (f fakeUsers) LookupUser(ctx context.Context, id string) (slackinfra.User, error) {
	u, ok := f[id]
	if !ok {
		return slackinfra.User{}, errors.New("user_not_found")
	}
	return u, nil
}

// gatedUsers は gate に登録された ID の照会を解放されるまで止めます
type gatedUsers struct {
	fakeUsers
	gate    map[string]chan struct{}
	entered chan string
}

func (g gatedUsers) LookupUser(ctx context.Context, id string) (slackinfra.User, error) {
	if ch, ok := g.gate[id]; ok {
		g.entered <- id
		select {
		case <-ch:
		case <-ctx.Done():
			return slackinfra.User{}, ctx.Err()
		}
	}
	return g.fakeUsers.LookupUser(ctx, id)
}

func signedRequest(t *testing.T, path, body string, headers map[string]string) *http.Request {
	t.Helper()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", httpsec.ComputeSlackSignature(testSecret, ts, body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

const appMention = `{
  "type": "event_callback",
  "event_id": "Ev1",
  "event_time": 1761940800,
  "event": {
    "type": "app_mention",
    "user": "U100",
    "text": "<@UBOT> [사탕]",
    "channel": "C1",
    "ts": "1761940800.000100"
  }
}`

func TestEventsHandler_AppMention(t *testing.T) {
	h := &recordingHandler{}
	users := fakeUsers{"U100": {ID: "U100", Name: "alice", DisplayName: "앨리스"}}
	eh := NewEventsHandler(testSecret, users, NewDispatcher(h))

	rec := httptest.NewRecorder()
	eh.ServeHTTP(rec, signedRequest(t, "/slack/events", appMention, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	got := h.got()
	require.Len(t, got, 1)
	m := got[0]
	assert.Equal(t, slackinfra.ThreadRef("C1", "1761940800.000100"), m.StatusID)
	assert.Equal(t, "U100", m.Actor.ID)
	assert.Equal(t, "alice", m.Actor.Acct)
	assert.Equal(t, "앨리스", m.Actor.DisplayName)
	assert.Equal(t, "<@UBOT> [사탕]", m.Content)
	assert.Equal(t, time.Unix(1761940800, 0), m.ReceivedAt)
}

func TestEventsHandler_ThreadAndUnknownUser(t *testing.T) {
	h := &recordingHandler{}
	eh := NewEventsHandler(testSecret, fakeUsers{}, NewDispatcher(h))

	body := strings.Replace(appMention, `"ts": "1761940800.000100"`,
		`"ts": "1761940900.000200", "thread_ts": "1761940800.000100"`, 1)
	rec := httptest.NewRecorder()
	eh.ServeHTTP(rec, signedRequest(t, "/slack/events", body, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	got := h.got()
	require.Len(t, got, 1)
	assert.Equal(t, "C1:1761940800.000100", got[0].StatusID, "スレッドの親に返信")
	assert.Equal(t, "U100", got[0].Actor.Acct, "取得失敗時は ID で続行")
}

func TestEventsHandler_URLVerification(t *testing.T) {
	eh := NewEventsHandler(testSecret, nil, NewDispatcher(&recordingHandler{}))
	rec := httptest.NewRecorder()
	eh.ServeHTTP(rec, signedRequest(t, "/slack/events", `{"type":"url_verification","challenge":"abc123"}`, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc123", rec.Body.String())
}

func TestEventsHandler_Rejects(t *testing.T) {
	h := &recordingHandler{}
	eh := NewEventsHandler(testSecret, nil, NewDispatcher(h))

	t.Run("bad signature", func(t *testing.T) {
		req := signedRequest(t, "/slack/events", appMention, map[string]string{"X-Slack-Signature": "v0=deadbeef"})
		rec := httptest.NewRecorder()
		eh.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("retry is skipped", func(t *testing.T) {
		req := signedRequest(t, "/slack/events", appMention, map[string]string{"X-Slack-Retry-Num": "1"})
		rec := httptest.NewRecorder()
		eh.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bot message", func(t *testing.T) {
		body := strings.Replace(appMention, `"user": "U100",`, `"user": "U100", "bot_id": "B1",`, 1)
		rec := httptest.NewRecorder()
		eh.ServeHTTP(rec, signedRequest(t, "/slack/events", body, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("broken json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		eh.ServeHTTP(rec, signedRequest(t, "/slack/events", `{"type":`, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	assert.Empty(t, h.got())
}

func TestEventsHandler_KeepsArrivalOrderDuringLookup(t *testing.T) {
	h := &recordingHandler{}
	release := make(chan struct{})
	users := gatedUsers{
		fakeUsers: fakeUsers{
			"U100": {ID: "U100", Name: "alice"},
			"U200": {ID: "U200", Name: "bob"},
		},
		gate:    map[string]chan struct{}{"U100": release},
		entered: make(chan string, 1),
	}
	eh := NewEventsHandler(testSecret, users, NewDispatcher(h))

	var wg sync.WaitGroup
	serve := func(body string) {
		defer wg.Done()
		eh.ServeHTTP(httptest.NewRecorder(), signedRequest(t, "/slack/events", body, nil))
	}

	wg.Add(1)
	go serve(appMention)
	select {
	case <-users.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("ユーザー照会に入りませんでした")
	}

	second := strings.NewReplacer(`"U100"`, `"U200"`, `"Ev1"`, `"Ev2"`, `000100`, `000200`).Replace(appMention)
	wg.Add(1)
	go serve(second)

	// 先着の照会が終わるまで後続は投入されない
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.got())

	close(release)
	wg.Wait()

	got := h.got()
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].Actor.Acct)
	assert.Equal(t, "bob", got[1].Actor.Acct)
}
