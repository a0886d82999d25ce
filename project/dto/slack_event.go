package dto

// SlackEventEnvelope は Slack Events API の外側のペイロードです
// url_verification の場合は Challenge だけが意味を持ちます
type SlackEventEnvelope struct {
	Type      string          `json:"type"` // "event_callback", "url_verification"
	TeamID    string          `json:"team_id"`
	EventID   string          `json:"event_id"`
	EventTime int64           `json:"event_time"`
	Challenge string          `json:"challenge,omitempty"`
	Event     SlackAppMention `json:"event"`
}

// SlackAppMention は app_mention イベントの本体です
type SlackAppMention struct {
	Type     string `json:"type"`                // "app_mention"
	User     string `json:"user"`                // 送信者のユーザーID
	Text     string `json:"text"`                // "<@BOT> [사탕]" のような本文
	Channel  string `json:"channel"`             // チャンネルID
	TS       string `json:"ts"`                  // 投稿TS
	ThreadTS string `json:"thread_ts,omitempty"` // スレッド内の投稿ならスレッドTS
	BotID    string `json:"bot_id,omitempty"`    // Bot 投稿の場合
	SubType  string `json:"subtype,omitempty"`
}
