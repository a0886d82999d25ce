package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"mention-bot/project/domain"
)

// SheetModel はワークシートのメタ情報
type SheetModel struct {
	Name      string `gorm:"primaryKey"`
	RowCount  int
	UpdatedAt time.Time
}

func (SheetModel) TableName() string { return "sheets" }

// RowModel はワークシート1行分。セルは JSON 配列で保存します
type RowModel struct {
	Sheet string   `gorm:"primaryKey"`
	Idx   int      `gorm:"primaryKey"`
	Cells []string `gorm:"serializer:json"`
}

func (RowModel) TableName() string { return "sheet_rows" }

// SQLiteWorkbook は domain.Workbook のローカル SQLite 実装です
// Firestore を使わない単一ホスト運用向けです
type SQLiteWorkbook struct {
	db *gorm.DB
}

// OpenSQLiteWorkbook は DSN を開いてスキーマを用意します
func OpenSQLiteWorkbook(dsn string) (*SQLiteWorkbook, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: オープン失敗 (dsn=%s): %w", dsn, err)
	}
	return NewSQLiteWorkbook(db)
}

// NewSQLiteWorkbook は既存の *gorm.DB から SQLiteWorkbook を作成します
func NewSQLiteWorkbook(db *gorm.DB) (*SQLiteWorkbook, error) {
	if err := db.AutoMigrate(&SheetModel{}, &RowModel{}); err != nil {
		return nil, fmt.Errorf("sqlite: マイグレーション失敗: %w", err)
	}
	return &SQLiteWorkbook{db: db}, nil
}

// isBusy は SQLite のロック競合を判定します（時間を置けば通る）
func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

func sqliteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	case isBusy(err):
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}
	return err
}

func findSheet(tx *gorm.DB, name string) (SheetModel, error) {
	var s SheetModel
	err := tx.Where("name = ?", name).Take(&s).Error
	return s, err
}

func upsertRow(tx *gorm.DB, r *RowModel) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sheet"}, {Name: "idx"}},
		DoUpdates: clause.AssignmentColumns([]string{"cells"}),
	}).Create(r).Error
}

func (w *SQLiteWorkbook) EnsureWorksheet(ctx context.Context, name string, header []string) error {
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := findSheet(tx, name)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s = SheetModel{Name: name}
		} else if err != nil {
			return err
		}

		if len(header) > 0 {
			var first RowModel
			if err := tx.Where("sheet = ? AND idx = ?", name, 1).Take(&first).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			g := grid{first.Cells}
			if g.ensureHeader(header) {
				if err := upsertRow(tx, &RowModel{Sheet: name, Idx: 1, Cells: g[0]}); err != nil {
					return err
				}
				s.RowCount = max(s.RowCount, 1)
			}
		}
		s.UpdatedAt = time.Now()
		return tx.Save(&s).Error
	})
	if err != nil {
		return fmt.Errorf("sqlite: ワークシート準備失敗 (sheet=%s): %w", name, sqliteErr(err))
	}
	return nil
}

func (w *SQLiteWorkbook) AppendRow(ctx context.Context, sheet string, values []string) error {
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := findSheet(tx, sheet)
		if err != nil {
			return err
		}
		s.RowCount++
		s.UpdatedAt = time.Now()
		if err := upsertRow(tx, &RowModel{Sheet: sheet, Idx: s.RowCount, Cells: values}); err != nil {
			return err
		}
		return tx.Save(&s).Error
	})
	if err != nil {
		return fmt.Errorf("sqlite: 行追加失敗 (sheet=%s): %w", sheet, sqliteErr(err))
	}
	return nil
}

func (w *SQLiteWorkbook) ReadAll(ctx context.Context, sheet string) ([]domain.Record, error) {
	g, err := w.load(ctx, sheet, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("sqlite: 全行取得失敗 (sheet=%s): %w", sheet, sqliteErr(err))
	}
	return g.records(), nil
}

func (w *SQLiteWorkbook) GetCell(ctx context.Context, sheet string, row, col int) (string, error) {
	if err := checkCell(sheet, row, col); err != nil {
		return "", err
	}
	g, err := w.load(ctx, sheet, row, 1)
	if err != nil {
		return "", fmt.Errorf("sqlite: セル取得失敗 (sheet=%s, row=%d): %w", sheet, row, sqliteErr(err))
	}
	return g.get(row, col), nil
}

func (w *SQLiteWorkbook) UpdateCell(ctx context.Context, sheet string, row, col int, value string) error {
	return w.BatchUpdate(ctx, sheet, row, col, [][]string{{value}})
}

func (w *SQLiteWorkbook) ReadRange(ctx context.Context, sheet string, row, col, rows, cols int) ([][]string, error) {
	if err := checkCell(sheet, row, col); err != nil {
		return nil, err
	}
	g, err := w.load(ctx, sheet, row, rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: 範囲取得失敗 (sheet=%s, row=%d): %w", sheet, row, sqliteErr(err))
	}
	return g.rangeOf(row, col, rows, cols), nil
}

func (w *SQLiteWorkbook) BatchUpdate(ctx context.Context, sheet string, row, col int, values [][]string) error {
	if err := checkCell(sheet, row, col); err != nil {
		return err
	}
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := findSheet(tx, sheet)
		if err != nil {
			return err
		}
		for i, vals := range values {
			if len(vals) == 0 {
				continue
			}
			var cur RowModel
			if err := tx.Where("sheet = ? AND idx = ?", sheet, row+i).Take(&cur).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			g := grid{cur.Cells}
			for j, v := range vals {
				g.set(1, col+j, v)
			}
			if err := upsertRow(tx, &RowModel{Sheet: sheet, Idx: row + i, Cells: g[0]}); err != nil {
				return err
			}
			s.RowCount = max(s.RowCount, row+i)
		}
		s.UpdatedAt = time.Now()
		return tx.Save(&s).Error
	})
	if err != nil {
		return fmt.Errorf("sqlite: 一括更新失敗 (sheet=%s, row=%d): %w", sheet, row, sqliteErr(err))
	}
	return nil
}

// Close は下層の接続を閉じます
func (w *SQLiteWorkbook) Close() error {
	sqlDB, err := w.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// load は from 行目から rows 行分（0 なら末尾まで）を grid に読み込みます
func (w *SQLiteWorkbook) load(ctx context.Context, sheet string, from, rows int) (grid, error) {
	db := w.db.WithContext(ctx)
	if _, err := findSheet(db, sheet); err != nil {
		return nil, err
	}

	q := db.Where("sheet = ? AND idx >= ?", sheet, from)
	if rows > 0 {
		q = q.Where("idx < ?", from+rows)
	}
	var list []RowModel
	if err := q.Order("idx ASC").Find(&list).Error; err != nil {
		return nil, err
	}

	var g grid
	for _, r := range list {
		for j, v := range r.Cells {
			g.set(r.Idx, j+1, v)
		}
	}
	return g, nil
}
