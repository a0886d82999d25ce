package dto

// SlackCommandRequest は Slack スラッシュコマンドのリクエストを表します
type SlackCommandRequest struct {
	TeamID    string `form:"team_id"`
	ChannelID string `form:"channel_id"`
	UserID    string `form:"user_id"`
	UserName  string `form:"user_name"`
	Command   string `form:"command"` // コマンド名 (/_player_add など)
	Text      string `form:"text"`    // コマンド引数
}

// SlackSlashResponse はスラッシュコマンドのレスポンスです
type SlackSlashResponse struct {
	ResponseType string `json:"response_type"` // "in_channel" or "ephemeral"
	Text         string `json:"text"`
}
