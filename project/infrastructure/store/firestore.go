package store

import (
	"context"
	"fmt"
	"time"

	"mention-bot/project/domain"
	"mention-bot/project/infrastructure/config"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// isNotFound は Firestore の NotFound エラーを判定するヘルパー関数です
func isNotFound(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.NotFound
}

// isRateLimited はクォータ超過・競合など、時間を置けば通るエラーを判定します
func isRateLimited(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.ResourceExhausted, codes.Aborted, codes.Unavailable:
		return true
	}
	return false
}

// classify は gRPC エラーをドメインエラーに寄せます
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case isRateLimited(err):
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	case isNotFound(err):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	return err
}

// sheetDoc はワークシートのメタ情報
type sheetDoc struct {
	Name      string    `firestore:"name"`
	RowCount  int       `firestore:"row_count"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// rowDoc はワークシート1行分
type rowDoc struct {
	Index int      `firestore:"index"`
	Cells []string `firestore:"cells"`
}

// FirestoreWorkbook は domain.Workbook の Firestore 実装です
// {collection}/{sheet} にメタ情報、{collection}/{sheet}/rows/{行番号} に各行を保存します
type FirestoreWorkbook struct {
	cli       *firestore.Client
	sheetsCol string
}

// NewFirestoreWorkbook は Firestore ワークブックを初期化します
func NewFirestoreWorkbook(ctx context.Context, cfg *config.Config) (*FirestoreWorkbook, error) {
	client, err := firestore.NewClient(ctx, cfg.FirestoreProjectID)
	if err != nil {
		return nil, fmt.Errorf("firestore: クライアント初期化失敗: %w", err)
	}

	return &FirestoreWorkbook{
		cli:       client,
		sheetsCol: cfg.CollectionSheets,
	}, nil
}

func (wb *FirestoreWorkbook) sheetRef(name string) *firestore.DocumentRef {
	return wb.cli.Collection(wb.sheetsCol).Doc(name)
}

func (wb *FirestoreWorkbook) rowRef(sheet string, row int) *firestore.DocumentRef {
	return wb.sheetRef(sheet).Collection("rows").Doc(rowDocID(row))
}

// EnsureWorksheet はワークシートを作成し、1行目のヘッダーを補正します
func (wb *FirestoreWorkbook) EnsureWorksheet(ctx context.Context, name string, header []string) error {
	sheetRef := wb.sheetRef(name)
	headerRef := wb.rowRef(name, 1)

	err := wb.cli.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		meta, exists, err := getSheet(tx, sheetRef)
		if err != nil {
			return err
		}
		var first rowDoc
		if exists && len(header) > 0 {
			snap, err := tx.Get(headerRef)
			if err != nil && !isNotFound(err) {
				return err
			}
			if err == nil {
				if err := snap.DataTo(&first); err != nil {
					return err
				}
			}
		}

		if !exists {
			meta = sheetDoc{Name: name}
		}
		if len(header) > 0 {
			g := grid{first.Cells}
			if g.ensureHeader(header) {
				if err := tx.Set(headerRef, rowDoc{Index: 1, Cells: g[0]}); err != nil {
					return err
				}
				meta.RowCount = max(meta.RowCount, 1)
			}
		}
		if !exists || len(header) > 0 {
			meta.UpdatedAt = time.Now()
			return tx.Set(sheetRef, meta)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("firestore: ワークシート準備失敗 (sheet=%s): %w", name, classify(err))
	}
	return nil
}

// AppendRow は row_count の次の行に追加します
func (wb *FirestoreWorkbook) AppendRow(ctx context.Context, sheet string, values []string) error {
	sheetRef := wb.sheetRef(sheet)

	err := wb.cli.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		meta, exists, err := getSheet(tx, sheetRef)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		meta.RowCount++
		meta.UpdatedAt = time.Now()
		if err := tx.Set(wb.rowRef(sheet, meta.RowCount), rowDoc{Index: meta.RowCount, Cells: values}); err != nil {
			return err
		}
		return tx.Set(sheetRef, meta)
	})
	if err != nil {
		return fmt.Errorf("firestore: 行追加失敗 (sheet=%s): %w", sheet, classify(err))
	}
	return nil
}

// ReadAll は全行を読み込み、ヘッダーをキーにしたレコードに変換します
func (wb *FirestoreWorkbook) ReadAll(ctx context.Context, sheet string) ([]domain.Record, error) {
	g, err := wb.load(ctx, sheet, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("firestore: 全行取得失敗 (sheet=%s): %w", sheet, err)
	}
	return g.records(), nil
}

// GetCell はセル値を返します
func (wb *FirestoreWorkbook) GetCell(ctx context.Context, sheet string, row, col int) (string, error) {
	if err := checkCell(sheet, row, col); err != nil {
		return "", err
	}
	if _, err := wb.sheetRef(sheet).Get(ctx); err != nil {
		return "", fmt.Errorf("firestore: ワークシート取得失敗 (sheet=%s): %w", sheet, classify(err))
	}

	snap, err := wb.rowRef(sheet, row).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			// 行が未作成なら空セル
			return "", nil
		}
		return "", fmt.Errorf("firestore: セル取得失敗 (sheet=%s, row=%d): %w", sheet, row, classify(err))
	}
	var r rowDoc
	if err := snap.DataTo(&r); err != nil {
		return "", fmt.Errorf("firestore: 行構造体変換失敗: %w", err)
	}
	return grid{r.Cells}.get(1, col), nil
}

// UpdateCell はセル値を上書きします
func (wb *FirestoreWorkbook) UpdateCell(ctx context.Context, sheet string, row, col int, value string) error {
	if err := checkCell(sheet, row, col); err != nil {
		return err
	}
	if err := wb.BatchUpdate(ctx, sheet, row, col, [][]string{{value}}); err != nil {
		return err
	}
	return nil
}

// ReadRange は範囲内の行だけをクエリして返します
func (wb *FirestoreWorkbook) ReadRange(ctx context.Context, sheet string, row, col, rows, cols int) ([][]string, error) {
	if err := checkCell(sheet, row, col); err != nil {
		return nil, err
	}
	g, err := wb.load(ctx, sheet, row, rows)
	if err != nil {
		return nil, fmt.Errorf("firestore: 範囲取得失敗 (sheet=%s, row=%d): %w", sheet, row, err)
	}
	return g.rangeOf(row, col, rows, cols), nil
}

// BatchUpdate は影響する行をトランザクション内でまとめて書き換えます
func (wb *FirestoreWorkbook) BatchUpdate(ctx context.Context, sheet string, row, col int, values [][]string) error {
	if err := checkCell(sheet, row, col); err != nil {
		return err
	}
	sheetRef := wb.sheetRef(sheet)

	err := wb.cli.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		meta, exists, err := getSheet(tx, sheetRef)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}

		// 読み込みはすべて書き込みより前に行う
		current := make([]rowDoc, len(values))
		for i := range values {
			snap, err := tx.Get(wb.rowRef(sheet, row+i))
			if err != nil {
				if isNotFound(err) {
					current[i] = rowDoc{Index: row + i}
					continue
				}
				return err
			}
			if err := snap.DataTo(&current[i]); err != nil {
				return err
			}
		}

		for i, vals := range values {
			if len(vals) == 0 {
				continue
			}
			g := grid{current[i].Cells}
			for j, v := range vals {
				g.set(1, col+j, v)
			}
			if err := tx.Set(wb.rowRef(sheet, row+i), rowDoc{Index: row + i, Cells: g[0]}); err != nil {
				return err
			}
			meta.RowCount = max(meta.RowCount, row+i)
		}
		meta.UpdatedAt = time.Now()
		return tx.Set(sheetRef, meta)
	})
	if err != nil {
		return fmt.Errorf("firestore: 一括更新失敗 (sheet=%s, row=%d): %w", sheet, row, classify(err))
	}
	return nil
}

// Close は Firestore クライアントを閉じます
func (wb *FirestoreWorkbook) Close() error {
	if wb.cli != nil {
		return wb.cli.Close()
	}
	return nil
}

// load は from 行目から rows 行分（0 なら末尾まで）を grid に読み込みます
func (wb *FirestoreWorkbook) load(ctx context.Context, sheet string, from, rows int) (grid, error) {
	if _, err := wb.sheetRef(sheet).Get(ctx); err != nil {
		return nil, classify(err)
	}

	q := wb.sheetRef(sheet).Collection("rows").Where("index", ">=", from)
	if rows > 0 {
		q = q.Where("index", "<", from+rows)
	}
	iter := q.OrderBy("index", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var g grid
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classify(err)
		}
		var r rowDoc
		if err := snap.DataTo(&r); err != nil {
			return nil, fmt.Errorf("firestore: 行構造体変換失敗: %w", err)
		}
		for j, v := range r.Cells {
			g.set(r.Index, j+1, v)
		}
	}
	return g, nil
}

// getSheet はトランザクション内でメタ情報を読みます。存在しなければ exists=false
func getSheet(tx *firestore.Transaction, ref *firestore.DocumentRef) (sheetDoc, bool, error) {
	var meta sheetDoc
	snap, err := tx.Get(ref)
	if err != nil {
		if isNotFound(err) {
			return meta, false, nil
		}
		return meta, false, err
	}
	if err := snap.DataTo(&meta); err != nil {
		return meta, false, fmt.Errorf("firestore: ワークシート構造体変換失敗: %w", err)
	}
	return meta, true, nil
}

// rowDocID は行番号をゼロ埋めしたドキュメントID にします
// 形式: "000042"
func rowDocID(row int) string {
	return fmt.Sprintf("%06d", row)
}
