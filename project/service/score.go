package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"mention-bot/project/domain"
)

// チームシートの行配置
const (
	// RowHandle は役割ごとの登録ハンドル
	RowHandle = 1

	// RowSize は눈덩이 サイズ
	RowSize = 2

	// RowSizeScore / RowDecorationScore / RowFinalScore は集計結果（A11:B13）
	RowSizeScore       = 11
	RowDecorationScore = 12
	RowFinalScore      = 13

	// InitialSize は登録直後・未設定時のサイズ
	InitialSize = 200
)

var scoredRoles = []domain.Role{domain.RoleHead, domain.RoleBody}

// ScoreTargets は役割ごとの目標サイズ
type ScoreTargets struct {
	Head int
	Body int
}

// For は役割の目標サイズを返します
func (t ScoreTargets) For(r domain.Role) int {
	if r == domain.RoleBody {
		return t.Body
	}
	return t.Head
}

// Board はチームシートから読み取った現在値
type Board struct {
	// Size は役割ごとのサイズ
	Size map[domain.Role]int

	// Counts は役割ごと・保存行ごとの装飾数
	Counts map[domain.Role]map[int]int
}

// ScoreResult は集計結果
type ScoreResult struct {
	SizeScore       map[domain.Role]int
	DecorationScore map[domain.Role]int
	Final           int
}

// Grid は A11:B13 に書き込む値を返します（13行目は A 列のみ）
func (r ScoreResult) Grid() [][]string {
	return [][]string{
		{strconv.Itoa(r.SizeScore[domain.RoleHead]), strconv.Itoa(r.SizeScore[domain.RoleBody])},
		{strconv.Itoa(r.DecorationScore[domain.RoleHead]), strconv.Itoa(r.DecorationScore[domain.RoleBody])},
		{strconv.Itoa(r.Final)},
	}
}

// ComputeScore は現在のサイズと装飾数から最終点数を全量で計算し直します（純粋関数）
func ComputeScore(b Board, targets ScoreTargets, table []domain.Decoration) ScoreResult {
	res := ScoreResult{
		SizeScore:       make(map[domain.Role]int, 2),
		DecorationScore: make(map[domain.Role]int, 2),
	}
	for _, role := range scoredRoles {
		size := b.Size[role]
		res.SizeScore[role] = max(0, 100-abs(size-targets.For(role)))

		deco := 0
		for _, d := range table {
			deco += d.Score * b.Counts[role][d.Row]
		}
		res.DecorationScore[role] = deco
		res.Final += res.SizeScore[role] + deco
	}
	return res
}

// Scorer はチームシートを読み、点数を一括更新します
type Scorer struct {
	Targets     ScoreTargets
	Decorations []domain.Decoration
}

// ReadBoard はサイズ行から装飾の最終行までを1回で読み取ります
func (s Scorer) ReadBoard(ctx context.Context, wb domain.Workbook, team string) (Board, error) {
	lastRow := RowSize
	for _, d := range s.Decorations {
		lastRow = max(lastRow, d.Row)
	}
	grid, err := wb.ReadRange(ctx, team, RowSize, 1, lastRow-RowSize+1, len(scoredRoles))
	if err != nil {
		return Board{}, fmt.Errorf("score: チームシート読み込み失敗 (team=%s): %w", team, err)
	}

	b := Board{
		Size:   make(map[domain.Role]int, 2),
		Counts: make(map[domain.Role]map[int]int, 2),
	}
	for _, role := range scoredRoles {
		col := role.Column() - 1
		b.Size[role] = parseCount(cell(grid, 0, col), InitialSize)
		b.Counts[role] = make(map[int]int, len(s.Decorations))
		for _, d := range s.Decorations {
			b.Counts[role][d.Row] = parseCount(cell(grid, d.Row-RowSize, col), 0)
		}
	}
	return b, nil
}

// Recompute は読み取り→計算→A11:B13 への一括書き込みを行います
// 入力が変わらなければ何度呼んでも同じ値を書き込みます
func (s Scorer) Recompute(ctx context.Context, wb domain.Workbook, team string) (ScoreResult, error) {
	b, err := s.ReadBoard(ctx, wb, team)
	if err != nil {
		return ScoreResult{}, err
	}
	res := ComputeScore(b, s.Targets, s.Decorations)
	if err := wb.BatchUpdate(ctx, team, RowSizeScore, 1, res.Grid()); err != nil {
		return ScoreResult{}, fmt.Errorf("score: 点数一括更新失敗 (team=%s): %w", team, err)
	}
	return res, nil
}

// cell は範囲外なら空文字を返します
func cell(grid [][]string, row, col int) string {
	if row < 0 || row >= len(grid) || col < 0 || col >= len(grid[row]) {
		return ""
	}
	return grid[row][col]
}

// parseCount は非負整数だけを受け付け、それ以外は def を返します
func parseCount(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return def
	}
	return n
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
