package domain

import "errors"

// ドメインエラー定義
var (
	// ErrInvalid は不正な値が設定された場合のエラー
	ErrInvalid = errors.New("ドメイン: 不正な値です")

	// ErrNotFound は要求されたリソースが見つからない場合のエラー
	ErrNotFound = errors.New("ドメイン: リソースが見つかりません")

	// ErrRateLimited は外部ストアがレート制限を返した場合のエラー（再試行対象）
	ErrRateLimited = errors.New("ドメイン: レート制限に達しました")

	// ErrQueueFull は書き込みキューが満杯で投入できなかった場合のエラー
	ErrQueueFull = errors.New("ドメイン: 書き込みキューが満杯です")

	// ErrQueueClosed は停止済みキューへの投入エラー
	ErrQueueClosed = errors.New("ドメイン: 書き込みキューは停止しています")

	// ErrNotParticipant はプレイヤーDBに存在しない送信者のエラー
	ErrNotParticipant = errors.New("ドメイン: 参加者ではありません")

	// ErrNoTeam はチーム（シート）が未設定のプレイヤーのエラー
	ErrNoTeam = errors.New("ドメイン: チームが設定されていません")

	// ErrAlreadyRegistered は既に役割が割り当て済みのプレイヤーのエラー
	ErrAlreadyRegistered = errors.New("ドメイン: 役割は割り当て済みです")

	// ErrRoleTaken は同じチームの同じ役割が他のプレイヤーに取られている場合のエラー
	ErrRoleTaken = errors.New("ドメイン: 役割は既に存在します")
)
