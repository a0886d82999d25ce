package domain

import (
	"fmt"
	"strings"
	"time"
)

// Actor は送信者の識別情報
type Actor struct {
	// ID は安定した数値ID（文字列表現）
	ID string

	// Acct は人が読めるハンドル（@なし）
	Acct string

	// DisplayName は表示名
	DisplayName string
}

// Name は返信で使う表示名を返します。表示名が空ならハンドルを使います
func (a Actor) Name() string {
	if strings.TrimSpace(a.DisplayName) != "" {
		return a.DisplayName
	}
	return a.Acct
}

// Mention はトランスポートから届いた1件のメンション（不変）
type Mention struct {
	// StatusID は元メッセージのID（返信先）
	StatusID string

	// Actor は送信者
	Actor Actor

	// Content は本文（マークアップを含む場合があります）
	Content string

	// ReceivedAt は受信時刻
	ReceivedAt time.Time
}

// Validate はMentionの必須項目を検証します
func (m Mention) Validate() error {
	if strings.TrimSpace(m.StatusID) == "" {
		return fmt.Errorf("%w: StatusIDは必須項目です", ErrInvalid)
	}
	if strings.TrimSpace(m.Actor.Acct) == "" {
		return fmt.Errorf("%w: Acctは必須項目です", ErrInvalid)
	}
	if m.ReceivedAt.IsZero() {
		return fmt.Errorf("%w: ReceivedAtは必須項目です", ErrInvalid)
	}
	return nil
}

// RewardOutcome は報酬判定1回分の結果
type RewardOutcome struct {
	// Text は表示用の文言（ミス印は除去、{n} は置換済み）
	Text string

	// Miss はハズレかどうか
	Miss bool

	// Award は付与数。Miss の場合は必ず 0
	Award int
}

// Decoration は重み付き抽選テーブルの1行
type Decoration struct {
	// Name は表示名（例: 당근）
	Name string `yaml:"name"`

	// Weight は相対重み（合計1である必要はありません）
	Weight float64 `yaml:"weight"`

	// Yield は1回で増える個数
	Yield int `yaml:"yield"`

	// Score は1個あたりの点数
	Score int `yaml:"score"`

	// Row はチームシート上の保存行
	Row int `yaml:"row"`
}

// DefaultDecorations はチームシート3〜10行目に対応する装飾テーブル
func DefaultDecorations() []Decoration {
	return []Decoration{
		{Name: "당근", Weight: 0.20, Yield: 1, Score: 10, Row: 3},
		{Name: "가지", Weight: 0.20, Yield: 1, Score: 10, Row: 4},
		{Name: "초코볼", Weight: 0.20, Yield: 1, Score: 10, Row: 5},
		{Name: "솔잎*솔방울", Weight: 0.10, Yield: 1, Score: 20, Row: 6},
		{Name: "검은색 조약돌", Weight: 0.10, Yield: 1, Score: 20, Row: 7},
		{Name: "나뭇가지", Weight: 0.10, Yield: 1, Score: 20, Row: 8},
		{Name: "목도리", Weight: 0.05, Yield: 1, Score: 30, Row: 9},
		{Name: "거대 캔디케인", Weight: 0.05, Yield: 1, Score: 30, Row: 10},
	}
}
