package store

import (
	"context"
	"fmt"
	"sync"

	"mention-bot/project/domain"
)

// MemoryWorkbook はプロセス内だけで完結する domain.Workbook 実装です
// STORE=memory での動作確認とテストで使います
type MemoryWorkbook struct {
	mu     sync.Mutex
	sheets map[string]*grid
}

// NewMemoryWorkbook は空の MemoryWorkbook を作成します
func NewMemoryWorkbook() *MemoryWorkbook {
	return &MemoryWorkbook{sheets: map[string]*grid{}}
}

func (w *MemoryWorkbook) sheet(name string) (*grid, error) {
	g, ok := w.sheets[name]
	if !ok {
		return nil, fmt.Errorf("memory: ワークシートなし (sheet=%s): %w", name, domain.ErrNotFound)
	}
	return g, nil
}

// EnsureWorksheet はワークシートを作成しヘッダーを補正します
func (w *MemoryWorkbook) EnsureWorksheet(ctx context.Context, name string, header []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	g, ok := w.sheets[name]
	if !ok {
		g = &grid{}
		w.sheets[name] = g
	}
	g.ensureHeader(header)
	return nil
}

func (w *MemoryWorkbook) AppendRow(ctx context.Context, sheet string, values []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	g, err := w.sheet(sheet)
	if err != nil {
		return err
	}
	row := g.lastRow() + 1
	for i, v := range values {
		g.set(row, i+1, v)
	}
	return nil
}

func (w *MemoryWorkbook) ReadAll(ctx context.Context, sheet string) ([]domain.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	g, err := w.sheet(sheet)
	if err != nil {
		return nil, err
	}
	return g.records(), nil
}

func (w *MemoryWorkbook) GetCell(ctx context.Context, sheet string, row, col int) (string, error) {
	if err := checkCell(sheet, row, col); err != nil {
		return "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	g, err := w.sheet(sheet)
	if err != nil {
		return "", err
	}
	return g.get(row, col), nil
}

func (w *MemoryWorkbook) UpdateCell(ctx context.Context, sheet string, row, col int, value string) error {
	if err := checkCell(sheet, row, col); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	g, err := w.sheet(sheet)
	if err != nil {
		return err
	}
	g.set(row, col, value)
	return nil
}

func (w *MemoryWorkbook) ReadRange(ctx context.Context, sheet string, row, col, rows, cols int) ([][]string, error) {
	if err := checkCell(sheet, row, col); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	g, err := w.sheet(sheet)
	if err != nil {
		return nil, err
	}
	return g.rangeOf(row, col, rows, cols), nil
}

func (w *MemoryWorkbook) BatchUpdate(ctx context.Context, sheet string, row, col int, values [][]string) error {
	if err := checkCell(sheet, row, col); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	g, err := w.sheet(sheet)
	if err != nil {
		return err
	}
	for i, r := range values {
		for j, v := range r {
			g.set(row+i, col+j, v)
		}
	}
	return nil
}

// Snapshot はワークシートの内容をコピーして返します（テスト用）
func (w *MemoryWorkbook) Snapshot(sheet string) [][]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	g, ok := w.sheets[sheet]
	if !ok {
		return nil
	}
	out := make([][]string, len(*g))
	for i, r := range *g {
		out[i] = append([]string(nil), r...)
	}
	return out
}
