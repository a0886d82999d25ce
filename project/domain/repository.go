package domain

import (
	"context"
	"time"
)

// Record はヘッダー行をキーにした1行分の値
type Record map[string]string

// Workbook は表形式の永続ストア（スプレッドシート相当）です
// 行・列は1始まり。1行目はヘッダー（ログ系ワークシートの場合）として扱います
// レート制限時は domain.ErrRateLimited を包んだエラーを返します
// 書き込みワーカー以外から呼び出してはいけません
type Workbook interface {
	// EnsureWorksheet はワークシートを作成し、1行目のヘッダーを補正します（冪等）
	EnsureWorksheet(ctx context.Context, name string, header []string) error

	// AppendRow は最終行の次に1行追加します
	AppendRow(ctx context.Context, sheet string, values []string) error

	// ReadAll は2行目以降をヘッダーをキーにしたレコード列として返します
	// ワークシートが存在しない場合は domain.ErrNotFound を返します
	ReadAll(ctx context.Context, sheet string) ([]Record, error)

	// GetCell はセル値を返します。未設定セルは空文字です
	GetCell(ctx context.Context, sheet string, row, col int) (string, error)

	// UpdateCell はセル値を上書きします
	UpdateCell(ctx context.Context, sheet string, row, col int, value string) error

	// ReadRange は (row, col) を左上とする rows×cols の範囲を返します。未設定セルは空文字です
	ReadRange(ctx context.Context, sheet string, row, col, rows, cols int) ([][]string, error)

	// BatchUpdate は (row, col) を左上として values を一括で書き込みます
	BatchUpdate(ctx context.Context, sheet string, row, col int, values [][]string) error
}

// PlayerRepository はプレイヤーDB（ローカル状態ファイル）の永続化を担当します
// 呼び出しは受信側で直列化されている前提ですが、実装は内部でロックを取ります
type PlayerRepository interface {
	// Resolve は数値IDまたはハンドルでプレイヤーを探します
	// ハンドルでのみ見つかった場合は数値IDへキーを昇格（Promote）してから返します
	// 見つからない場合は domain.ErrNotParticipant を返します
	Resolve(ctx context.Context, id, acct string) (key string, p Player, err error)

	// Get はキーでプレイヤーを取得します。存在しない場合は domain.ErrNotFound
	Get(ctx context.Context, key string) (Player, error)

	// Promote は oldKey のレコードを newKey に付け替えて保存します
	// 新キーの書き込みを先に行い、その後に旧キーを削除します
	Promote(ctx context.Context, oldKey, newKey string) error

	// AssignRole はチーム内一意性を検査してから役割を割り当てて保存します
	// 既に役割がある場合は domain.ErrAlreadyRegistered、
	// 同チームに同じ役割がある場合は domain.ErrRoleTaken を返します
	AssignRole(ctx context.Context, key string, role Role) (Player, error)

	// ReleaseRole は割り当て済みの役割を取り消します（シート書き込み放棄時の巻き戻し）
	ReleaseRole(ctx context.Context, key string, role Role) error

	// TouchCooldown は指定グループの最終成功時刻を at に進めて保存します
	TouchCooldown(ctx context.Context, key string, group CooldownGroup, at time.Time) error
}
