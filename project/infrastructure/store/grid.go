package store

import (
	"fmt"

	"mention-bot/project/domain"
)

// grid は1枚のワークシートを行優先の可変長配列で保持します
// 各 Workbook 実装はこの形に読み込んでから操作します
type grid [][]string

func checkCell(sheet string, row, col int) error {
	if row < 1 || col < 1 {
		return fmt.Errorf("%w: セル位置が不正です (sheet=%s, row=%d, col=%d)", domain.ErrInvalid, sheet, row, col)
	}
	return nil
}

// get は未設定セルを空文字として返します
func (g grid) get(row, col int) string {
	if row > len(g) {
		return ""
	}
	r := g[row-1]
	if col > len(r) {
		return ""
	}
	return r[col-1]
}

// set は必要に応じて行・列を伸ばしてから値を書き込みます
func (g *grid) set(row, col int, value string) {
	for len(*g) < row {
		*g = append(*g, nil)
	}
	r := (*g)[row-1]
	for len(r) < col {
		r = append(r, "")
	}
	r[col-1] = value
	(*g)[row-1] = r
}

func (g grid) rangeOf(row, col, rows, cols int) [][]string {
	out := make([][]string, rows)
	for i := 0; i < rows; i++ {
		out[i] = make([]string, cols)
		for j := 0; j < cols; j++ {
			out[i][j] = g.get(row+i, col+j)
		}
	}
	return out
}

// lastRow は末尾の空行を除いた行数を返します
func (g grid) lastRow() int {
	for i := len(g); i > 0; i-- {
		for _, v := range g[i-1] {
			if v != "" {
				return i
			}
		}
	}
	return 0
}

// records は1行目をヘッダーとして2行目以降を Record に変換します
func (g grid) records() []domain.Record {
	last := g.lastRow()
	if last < 2 {
		return []domain.Record{}
	}
	header := g[0]
	out := make([]domain.Record, 0, last-1)
	for _, r := range g[1:last] {
		rec := make(domain.Record, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(r) {
				rec[h] = r[i]
			} else {
				rec[h] = ""
			}
		}
		out = append(out, rec)
	}
	return out
}

// ensureHeader はヘッダーが一致しなければ1行目を書き換え、変更したかを返します
func (g *grid) ensureHeader(header []string) bool {
	if len(header) == 0 {
		return false
	}
	changed := false
	for i, h := range header {
		if g.get(1, i+1) != h {
			g.set(1, i+1, h)
			changed = true
		}
	}
	return changed
}
