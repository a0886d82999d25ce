package service

import (
	"context"

	"mention-bot/project/domain"
)

// Reply は返信1件分の内容を表します
type Reply struct {
	// InReplyTo は返信先メッセージのID
	InReplyTo string

	// Acct は通知を確実に届けるため本文先頭に埋め込む宛先ハンドル
	Acct string

	// ActorID は宛先の数値ID（ハンドルでメンションできないトランスポート用）
	ActorID string

	// Text は本文（宛先を除く）
	Text string

	// Visibility は公開範囲（public / unlisted / private / direct）
	Visibility string
}

// NewReply はメンションへの返信を組み立てます
func NewReply(m domain.Mention, text, visibility string) Reply {
	return Reply{
		InReplyTo:  m.StatusID,
		Acct:       m.Actor.Acct,
		ActorID:    m.Actor.ID,
		Text:       text,
		Visibility: visibility,
	}
}

// Job は書き込みキューに積まれる永続化処理1件分を表します
// Run は書き込みワーカー上でのみ実行され、Workbook へのアクセスはここに限られます
// レート制限で再試行されても結果が変わらないよう、Run は冪等に書く必要があります
type Job struct {
	// ID はログ用の一意ID（キュー投入時に未設定なら採番されます）
	ID string

	// Name は処理種別（ログ・メトリクス用）
	Name string

	// Acct は依頼元のハンドル（ログ用）
	Acct string

	// Run は永続化処理本体
	Run func(ctx context.Context, wb domain.Workbook) error

	// Done は成功・放棄・再試行上限のいずれの場合も最後に1回呼ばれます（nil 可）
	Done func(ctx context.Context, err error)
}
