package dto

import "time"

// NotificationTypeMention はメンション通知の種別
const NotificationTypeMention = "mention"

// Notification はトランスポート（Mastodon / Slack）から受け取った通知を表します
type Notification struct {
	ID        string              `json:"id"`
	Type      string              `json:"type"` // "mention", "favourite", "follow" など
	CreatedAt time.Time           `json:"created_at"`
	Status    *NotificationStatus `json:"status,omitempty"` // mention 以外では nil の場合あり
}

// NotificationStatus は通知に付随する投稿です
type NotificationStatus struct {
	ID      string              `json:"id"`      // 返信先として使う投稿ID
	Content string              `json:"content"` // HTML を含む本文
	Account NotificationAccount `json:"account"`
}

// NotificationAccount は投稿者の情報です
type NotificationAccount struct {
	ID          string `json:"id"`   // 数値ID（変わらない）
	Acct        string `json:"acct"` // ハンドル（変わりうる）
	DisplayName string `json:"display_name"`
}
