package service

import (
	"context"

	"mention-bot/project/domain"
)

// ReplyPort は返信投稿のポートです（Mastodon / Slack）
type ReplyPort interface {
	// Reply は元メッセージへ返信します
	Reply(ctx context.Context, r Reply) error
}

// QueuePort は書き込みキューへの投入ポートです
type QueuePort interface {
	// Enqueue はブロックせずにジョブを投入します
	// 満杯の場合は domain.ErrQueueFull を返します
	Enqueue(job Job) error
}

// MentionHandler はメンション1件を処理するバリアント（사탕 / 눈사람 / 전투 로그）の共通インターフェースです
type MentionHandler interface {
	// HandleMention はメンションを解析し、必要なら書き込みジョブを投入して返信します
	// 1件の処理エラーが次のメンション処理を妨げてはいけません
	HandleMention(ctx context.Context, m domain.Mention) error
}
