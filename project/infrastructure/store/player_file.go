package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mention-bot/project/domain"
)

// isoLayouts は保存済み時刻として受け付ける形式（タイムゾーンなしはローカル時刻扱い）
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// playerDoc はプレイヤーファイル上の1レコード
// 未設定の役割・クールダウンは null で保存します
// col は role から導出して書き出します（手編集で role が空なら col から役割を補います）
type playerDoc struct {
	SheetName string             `json:"sheet_name"`
	Role      *string            `json:"role"`
	Col       *string            `json:"col"`
	Cooldowns map[string]*string `json:"cooldown_times"`
}

// PlayerFile は domain.PlayerRepository の JSON ファイル実装です
// 保存は一時ファイルへ書いてから rename するため、途中で落ちても元のファイルは壊れません
type PlayerFile struct {
	path string

	mu      sync.Mutex
	players map[string]domain.Player
}

// OpenPlayerFile はファイルを読み込みます。存在しない場合は空の DB で開始します
// 形式が壊れている場合も空の DB で開始し、元のファイルは <path>.corrupt-<時刻> に退避します
func OpenPlayerFile(path string) (*PlayerFile, error) {
	pf := &PlayerFile{path: path, players: map[string]domain.Player{}}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Msg("players: ファイルがないため空の DB で開始")
		return pf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("players: 読み込み失敗 (path=%s): %w", path, err)
	}

	players, err := decodePlayers(b)
	if err != nil {
		backup := fmt.Sprintf("%s.corrupt-%s", path, time.Now().Format("20060102T150405"))
		if werr := os.WriteFile(backup, b, 0o600); werr != nil {
			log.Error().Err(werr).Str("path", backup).Msg("players: 壊れたファイルの退避失敗")
		}
		log.Error().Err(err).Str("path", path).Str("backup", backup).Msg("players: 形式が不正なため空の DB で開始")
		return pf, nil
	}
	pf.players = players
	return pf, nil
}

func decodePlayers(b []byte) (map[string]domain.Player, error) {
	var docs map[string]playerDoc
	if err := json.Unmarshal(b, &docs); err != nil {
		return nil, err
	}

	out := make(map[string]domain.Player, len(docs))
	for key, d := range docs {
		p := domain.Player{Team: d.SheetName, Cooldowns: map[domain.CooldownGroup]*time.Time{}}
		if d.Role != nil {
			role, err := domain.ParseRole(*d.Role)
			if err != nil {
				return nil, fmt.Errorf("key=%s: %w", key, err)
			}
			p.Role = role
		}
		if p.Role == domain.RoleNone && d.Col != nil {
			p.Role = roleForColumn(*d.Col)
		}
		for _, g := range domain.PlayerGroups {
			p.Cooldowns[g] = nil
		}
		for g, s := range d.Cooldowns {
			p.Cooldowns[domain.CooldownGroup(g)] = parseStamp(s)
		}
		out[key] = p
	}
	return out, nil
}

func roleForColumn(col string) domain.Role {
	for _, r := range []domain.Role{domain.RoleHead, domain.RoleBody} {
		if strings.EqualFold(strings.TrimSpace(col), r.ColumnLetter()) {
			return r
		}
	}
	return domain.RoleNone
}

// parseStamp は空文字と null を「未実行」、読めない値を遠い過去として扱います
func parseStamp(s *string) *time.Time {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(*s), time.Local); err == nil {
			return &t
		}
	}
	past := time.Time{}
	return &past
}

func encodePlayers(players map[string]domain.Player) ([]byte, error) {
	docs := make(map[string]playerDoc, len(players))
	for key, p := range players {
		d := playerDoc{SheetName: p.Team, Cooldowns: map[string]*string{}}
		if p.Role != domain.RoleNone {
			r := string(p.Role)
			c := p.Role.ColumnLetter()
			d.Role = &r
			d.Col = &c
		}
		groups := make([]string, 0, len(p.Cooldowns)+len(domain.PlayerGroups))
		for _, g := range domain.PlayerGroups {
			groups = append(groups, string(g))
		}
		for g := range p.Cooldowns {
			groups = append(groups, string(g))
		}
		sort.Strings(groups)
		for _, g := range groups {
			t := p.Cooldowns[domain.CooldownGroup(g)]
			if t == nil {
				d.Cooldowns[g] = nil
				continue
			}
			s := t.Format(time.RFC3339Nano)
			d.Cooldowns[g] = &s
		}
		docs[key] = d
	}
	return json.MarshalIndent(docs, "", "    ")
}

// save は一時ファイル経由で原子的に書き換えます（ロック保持中に呼ぶこと）
func (pf *PlayerFile) save() error {
	b, err := encodePlayers(pf.players)
	if err != nil {
		return fmt.Errorf("players: エンコード失敗: %w", err)
	}

	dir := filepath.Dir(pf.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(pf.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("players: 一時ファイル作成失敗 (dir=%s): %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("players: 書き込み失敗: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("players: 同期失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("players: クローズ失敗: %w", err)
	}
	if err := os.Rename(tmpName, pf.path); err != nil {
		return fmt.Errorf("players: 置き換え失敗 (path=%s): %w", pf.path, err)
	}
	return nil
}

// Resolve は数値IDを優先し、なければハンドルで探して数値IDへ昇格します
func (pf *PlayerFile) Resolve(ctx context.Context, id, acct string) (string, domain.Player, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	if p, ok := pf.players[id]; ok && id != "" {
		return id, p.Clone(), nil
	}
	p, ok := pf.players[acct]
	if !ok || acct == "" {
		return "", domain.Player{}, fmt.Errorf("players: 未登録 (id=%s, acct=%s): %w", id, acct, domain.ErrNotParticipant)
	}
	if id == "" || id == acct {
		return acct, p.Clone(), nil
	}

	if err := pf.promoteLocked(acct, id); err != nil {
		// 昇格に失敗してもハンドルのまま続行
		log.Error().Err(err).Str("acct", acct).Str("id", id).Msg("players: キー昇格失敗")
		return acct, p.Clone(), nil
	}
	log.Info().Str("acct", acct).Str("id", id).Msg("players: ハンドルを数値IDへ昇格")
	return id, p.Clone(), nil
}

func (pf *PlayerFile) Get(ctx context.Context, key string) (domain.Player, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	p, ok := pf.players[key]
	if !ok {
		return domain.Player{}, fmt.Errorf("players: 取得失敗 (key=%s): %w", key, domain.ErrNotFound)
	}
	return p.Clone(), nil
}

func (pf *PlayerFile) Promote(ctx context.Context, oldKey, newKey string) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.promoteLocked(oldKey, newKey)
}

// promoteLocked は新キーを書いて保存し、その後に旧キーを消して保存します
func (pf *PlayerFile) promoteLocked(oldKey, newKey string) error {
	p, ok := pf.players[oldKey]
	if !ok {
		return fmt.Errorf("players: 昇格元なし (key=%s): %w", oldKey, domain.ErrNotFound)
	}
	if oldKey == newKey {
		return nil
	}

	pf.players[newKey] = p.Clone()
	if err := pf.save(); err != nil {
		delete(pf.players, newKey)
		return err
	}
	delete(pf.players, oldKey)
	if err := pf.save(); err != nil {
		// 新旧両方が残るだけで、次回起動時も数値IDが優先されます
		log.Warn().Err(err).Str("key", oldKey).Msg("players: 旧キー削除の保存失敗")
	}
	return nil
}

func (pf *PlayerFile) AssignRole(ctx context.Context, key string, role domain.Role) (domain.Player, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	p, ok := pf.players[key]
	if !ok {
		return domain.Player{}, fmt.Errorf("players: 役割割り当て対象なし (key=%s): %w", key, domain.ErrNotFound)
	}
	if strings.TrimSpace(p.Team) == "" {
		return domain.Player{}, fmt.Errorf("players: (key=%s): %w", key, domain.ErrNoTeam)
	}
	if p.Role != domain.RoleNone {
		return domain.Player{}, fmt.Errorf("players: (key=%s, role=%s): %w", key, p.Role, domain.ErrAlreadyRegistered)
	}
	for other, q := range pf.players {
		if other != key && q.Team == p.Team && q.Role == role {
			return domain.Player{}, fmt.Errorf("players: (team=%s, role=%s): %w", p.Team, role, domain.ErrRoleTaken)
		}
	}

	next := p.Clone()
	next.Role = role
	pf.players[key] = next
	if err := pf.save(); err != nil {
		pf.players[key] = p
		return domain.Player{}, err
	}
	return next.Clone(), nil
}

func (pf *PlayerFile) ReleaseRole(ctx context.Context, key string, role domain.Role) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	p, ok := pf.players[key]
	if !ok {
		return fmt.Errorf("players: 役割解除対象なし (key=%s): %w", key, domain.ErrNotFound)
	}
	if p.Role != role {
		return nil
	}
	next := p.Clone()
	next.Role = domain.RoleNone
	pf.players[key] = next
	if err := pf.save(); err != nil {
		pf.players[key] = p
		return err
	}
	return nil
}

func (pf *PlayerFile) TouchCooldown(ctx context.Context, key string, group domain.CooldownGroup, at time.Time) error {
	if group == domain.GroupNone {
		return nil
	}
	pf.mu.Lock()
	defer pf.mu.Unlock()

	p, ok := pf.players[key]
	if !ok {
		return fmt.Errorf("players: クールダウン更新対象なし (key=%s): %w", key, domain.ErrNotFound)
	}
	next := p.Clone()
	stamp := at
	next.Cooldowns[group] = &stamp
	pf.players[key] = next
	if err := pf.save(); err != nil {
		pf.players[key] = p
		return err
	}
	return nil
}

// Put はレコードを追加・上書きします（運営によるチーム登録用）
func (pf *PlayerFile) Put(ctx context.Context, key string, p domain.Player) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("players: 検証失敗 (key=%s): %w", key, err)
	}
	pf.mu.Lock()
	defer pf.mu.Unlock()

	prev, had := pf.players[key]
	pf.players[key] = p.Clone()
	if err := pf.save(); err != nil {
		if had {
			pf.players[key] = prev
		} else {
			delete(pf.players, key)
		}
		return err
	}
	return nil
}
