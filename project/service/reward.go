package service

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"mention-bot/project/domain"
)

const (
	// MissMarker を含む文言はハズレ（付与 0）
	MissMarker = "[꽝]"

	// AwardPlaceholder は最終付与数に置換されます
	AwardPlaceholder = "{n}"
)

// Randomizer は報酬判定に使う乱数源です
type Randomizer interface {
	// IntN は [0, n) の一様乱数を返します
	IntN(n int) int

	// Float64 は [0, 1) の一様乱数を返します
	Float64() float64
}

// lockedRand は受信側とワーカーの両方から使えるようロックした乱数源です
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandomizer は乱数源を作成します。seed が 0 の場合はランダムに初期化します
func NewRandomizer(seed uint64) Randomizer {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// DefaultScripts はスクリプトシートが空のときに使う文言
func DefaultScripts() []string {
	return []string{
		"할로윈 바구니에서 {n}개를 챙겼다.",
		"달달한 향기를 따라 {n}개의 사탕을 손에 넣었다.",
		"오늘의 횡재! 사탕 {n}개 확보.",
		"[꽝] 텅 빈 그릇만 남았다…",
	}
}

// RewardResolver は一様乱数＋文言によるハズレ判定と、重み付き抽選を行います
type RewardResolver struct {
	rng Randomizer

	// Min / Max は一様乱数の閉区間
	Min int
	Max int

	// Fallback はスクリプトが空のときの文言
	Fallback []string

	// Decorations は重み付き抽選テーブル
	Decorations []domain.Decoration
}

// NewRewardResolver は RewardResolver を作成します
func NewRewardResolver(rng Randomizer, min, max int) *RewardResolver {
	if max < min {
		min, max = max, min
	}
	return &RewardResolver{
		rng:         rng,
		Min:         min,
		Max:         max,
		Fallback:    DefaultScripts(),
		Decorations: domain.DefaultDecorations(),
	}
}

// Roll は [Min, Max] の一様乱数を返します
func (r *RewardResolver) Roll() int {
	return r.Min + r.rng.IntN(r.Max-r.Min+1)
}

// Jitter は [-j, j] の一様乱数を返します
func (r *RewardResolver) Jitter(j int) int {
	if j <= 0 {
		return 0
	}
	return r.rng.IntN(2*j+1) - j
}

// Resolve は文言を1つ選び、ハズレ印と {n} を処理した結果を返します
func (r *RewardResolver) Resolve(pool []string, roll int) domain.RewardOutcome {
	candidates := nonBlank(pool)
	if len(candidates) == 0 {
		candidates = nonBlank(r.Fallback)
	}
	if len(candidates) == 0 {
		candidates = DefaultScripts()
	}

	raw := candidates[r.rng.IntN(len(candidates))]
	out := domain.RewardOutcome{Miss: strings.Contains(raw, MissMarker)}
	if !out.Miss {
		out.Award = clamp(roll, r.Min, r.Max)
	}
	text := strings.TrimSpace(strings.ReplaceAll(raw, MissMarker, ""))
	out.Text = strings.ReplaceAll(text, AwardPlaceholder, strconv.Itoa(out.Award))
	return out
}

// PickDecoration は装飾テーブルから重み付きで1行選びます
// テーブルに有効な重みがなければ既定テーブルを使います
func (r *RewardResolver) PickDecoration() domain.Decoration {
	if d, ok := PickWeighted(r.rng, r.Decorations); ok {
		return d
	}
	d, _ := PickWeighted(r.rng, domain.DefaultDecorations())
	return d
}

// PickWeighted は相対重みに比例して1行選びます。重みが正の行がなければ false
func PickWeighted(rng Randomizer, table []domain.Decoration) (domain.Decoration, bool) {
	total := 0.0
	for _, d := range table {
		if d.Weight > 0 {
			total += d.Weight
		}
	}
	if total <= 0 {
		return domain.Decoration{}, false
	}

	x := rng.Float64() * total
	var last domain.Decoration
	for _, d := range table {
		if d.Weight <= 0 {
			continue
		}
		last = d
		if x < d.Weight {
			return d, true
		}
		x -= d.Weight
	}
	// 浮動小数点の誤差で末尾を越えた場合
	return last, true
}

func clamp(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func nonBlank(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
