package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Variant は起動するボットの種類
type Variant string

const (
	VariantCandy     Variant = "candy"
	VariantSnowman   Variant = "snowman"
	VariantBattleLog Variant = "battlelog"
)

// トランスポート
const (
	TransportMastodon = "mastodon"
	TransportSlack    = "slack"
)

// ワークブックの保存先
const (
	StoreFirestore = "firestore"
	StoreSQLite    = "sqlite"
	StoreMemory    = "memory"
)

// CandyConfig は사탕 봇固有の設定
type CandyConfig struct {
	Trigger     string
	LogSheet    string
	ScriptSheet string
	RewardMin   int
	RewardMax   int
	Cooldown    time.Duration
}

// SnowmanConfig は눈사람 게임固有の設定
type SnowmanConfig struct {
	PlayerFile string
	Cooldown   time.Duration
	TargetHead int
	TargetBody int
	Operator   string // 問い合わせ先ハンドル
}

// BattleLogConfig は전투 로그 봇固有の設定
type BattleLogConfig struct {
	LogSheet     string
	CommandsFile string // 空なら組み込みのコマンド表
}

// Config は環境変数から読み込まれるアプリケーション設定を表します
type Config struct {
	Variant Variant

	// 基本設定
	Port      string
	LogLevel  string
	LogPretty bool
	Timezone  *time.Location
	Seed      uint64 // 0 ならランダム

	// トランスポート設定
	Transport      string
	Visibility     string
	ReplyEvery     time.Duration
	ReconnectDelay time.Duration

	// Mastodon 設定
	MastodonServer      string
	MastodonToken       string
	MastodonTokenSecret string // Secret Manager のシークレット名

	// Slack API設定
	SlackBotToken            string
	SlackBotTokenSecret      string
	SlackSigningSecret       string
	SlackSigningSecretSecret string
	SlackOperators           []string

	// ワークブック設定
	Store              string
	GcpProject         string
	FirestoreProjectID string
	CollectionSheets   string
	SQLitePath         string

	// 書き込みキュー設定
	QueueCapacity int
	QueuePacing   time.Duration
	MaxAttempts   int
	BackoffBase   time.Duration

	Candy     CandyConfig
	Snowman   SnowmanConfig
	BattleLog BattleLogConfig
}

// SecretGetter はシークレット値の取得ポートです（Secret Manager）
type SecretGetter interface {
	GetSecret(ctx context.Context, secretName string) (string, error)
}

// LoadEnvFile は .env 形式のファイルを環境変数に読み込みます
// path が空の場合はカレントの .env を試し、なければ何もしません
func LoadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: env ファイル読み込み失敗 (path=%s): %w", path, err)
	}
	return nil
}

// NewConfig は環境変数から設定を読み込み、Config構造体を返します
// センシティブな情報は ResolveSecrets で Secret Manager から補完できます
func NewConfig(variant Variant) (*Config, error) {
	loc, err := time.LoadLocation(getenv("TIMEZONE", "Asia/Seoul"))
	if err != nil {
		return nil, fmt.Errorf("config: TIMEZONE が不正です: %w", err)
	}

	cfg := &Config{
		Variant: variant,

		// 基本設定
		Port:      getenv("PORT", "8080"),
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),
		Timezone:  loc,
		Seed:      uint64(getint("RANDOM_SEED", 0)),

		// トランスポート設定
		Transport:      strings.ToLower(getenv("TRANSPORT", TransportMastodon)),
		Visibility:     getenv("REPLY_VISIBILITY", "public"),
		ReplyEvery:     getdur("REPLY_EVERY", 200*time.Millisecond),
		ReconnectDelay: getdur("RECONNECT_DELAY", 5*time.Second),

		// Mastodon 設定
		MastodonServer:      getenv("MASTODON_SERVER", ""),
		MastodonToken:       getenv("MASTODON_ACCESS_TOKEN", ""),
		MastodonTokenSecret: getenv("MASTODON_ACCESS_TOKEN_SECRET", ""),

		// Slack API設定
		SlackBotToken:            getenv("SLACK_BOT_TOKEN", ""),
		SlackBotTokenSecret:      getenv("SLACK_BOT_TOKEN_SECRET", ""),
		SlackSigningSecret:       getenv("SLACK_SIGNING_SECRET", ""),
		SlackSigningSecretSecret: getenv("SLACK_SIGNING_SECRET_SECRET", ""),
		SlackOperators:           splitCSV(getenv("SLACK_OPERATORS", "")),

		// ワークブック設定
		Store:              strings.ToLower(getenv("STORE", StoreSQLite)),
		GcpProject:         getenv("GCP_PROJECT", ""),
		FirestoreProjectID: getenv("FIRESTORE_PROJECT_ID", getenv("GCP_PROJECT", "")),
		CollectionSheets:   getenv("FS_COLLECTION_SHEETS", "sheets"),
		SQLitePath:         getenv("SQLITE_PATH", "workbook.db"),

		// 書き込みキュー設定
		QueueCapacity: getint("QUEUE_CAPACITY", 1024),
		QueuePacing:   getdur("QUEUE_PACING", 50*time.Millisecond),
		MaxAttempts:   getint("QUEUE_MAX_ATTEMPTS", 5),
		BackoffBase:   getdur("QUEUE_BACKOFF_BASE", time.Second),

		Candy: CandyConfig{
			Trigger:     getenv("CANDY_TRIGGER", "[사탕]"),
			LogSheet:    getenv("CANDY_LOG_SHEET", "할로윈"),
			ScriptSheet: getenv("CANDY_SCRIPT_SHEET", "할로윈_스크립트"),
			RewardMin:   getint("CANDY_MIN", 1),
			RewardMax:   getint("CANDY_MAX", 10),
			Cooldown:    getdur("CANDY_COOLDOWN", time.Hour),
		},
		Snowman: SnowmanConfig{
			PlayerFile: getenv("SNOWMAN_PLAYER_FILE", "player_db.json"),
			Cooldown:   getdur("SNOWMAN_COOLDOWN", time.Hour),
			TargetHead: getint("SNOWMAN_TARGET_HEAD", 137),
			TargetBody: getint("SNOWMAN_TARGET_BODY", 274),
			Operator:   getenv("SNOWMAN_OPERATOR", "MARCH"),
		},
		BattleLog: BattleLogConfig{
			LogSheet:     getenv("BATTLELOG_SHEET", "전투로그"),
			CommandsFile: getenv("BATTLELOG_COMMANDS_FILE", ""),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	return cfg, nil
}

// ResolveSecrets は *_SECRET が設定された項目を Secret Manager から取得して埋めます
func (c *Config) ResolveSecrets(ctx context.Context, sm SecretGetter) error {
	targets := []struct {
		secretName string
		dst        *string
	}{
		{c.MastodonTokenSecret, &c.MastodonToken},
		{c.SlackBotTokenSecret, &c.SlackBotToken},
		{c.SlackSigningSecretSecret, &c.SlackSigningSecret},
	}
	for _, t := range targets {
		if t.secretName == "" || *t.dst != "" {
			continue
		}
		if sm == nil {
			return fmt.Errorf("config: シークレット %s の取得には GCP_PROJECT が必要です", t.secretName)
		}
		v, err := sm.GetSecret(ctx, t.secretName)
		if err != nil {
			return fmt.Errorf("config: シークレット取得失敗 (name=%s): %w", t.secretName, err)
		}
		*t.dst = v
	}
	return nil
}

// NeedsSecrets は Secret Manager を使う項目があるかを返します
func (c *Config) NeedsSecrets() bool {
	return c.MastodonTokenSecret != "" || c.SlackBotTokenSecret != "" || c.SlackSigningSecretSecret != ""
}

// Validate は起動を続けられない設定を検出します
func (c *Config) Validate() error {
	switch c.Variant {
	case VariantCandy, VariantSnowman, VariantBattleLog:
	default:
		return fmt.Errorf("config: 不明なバリアントです (variant=%s)", c.Variant)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("config: LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}

	switch c.Transport {
	case TransportMastodon:
		if c.MastodonServer == "" || c.MastodonToken == "" {
			return errors.New("config: MASTODON_SERVER と MASTODON_ACCESS_TOKEN は必須です")
		}
	case TransportSlack:
		if c.SlackBotToken == "" || c.SlackSigningSecret == "" {
			return errors.New("config: SLACK_BOT_TOKEN と SLACK_SIGNING_SECRET は必須です")
		}
	default:
		return fmt.Errorf("config: TRANSPORT は mastodon か slack です (transport=%s)", c.Transport)
	}

	switch c.Visibility {
	case "public", "unlisted", "private", "direct":
	default:
		return fmt.Errorf("config: REPLY_VISIBILITY が不正です (visibility=%s)", c.Visibility)
	}

	switch c.Store {
	case StoreFirestore:
		if c.FirestoreProjectID == "" {
			return errors.New("config: STORE=firestore には FIRESTORE_PROJECT_ID が必要です")
		}
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("config: SQLITE_PATH must not be empty")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: STORE が不正です (store=%s)", c.Store)
	}

	if c.QueueCapacity < 1 {
		return errors.New("config: QUEUE_CAPACITY must be >= 1")
	}
	if c.MaxAttempts < 1 {
		return errors.New("config: QUEUE_MAX_ATTEMPTS must be >= 1")
	}
	if c.BackoffBase <= 0 || c.QueuePacing < 0 {
		return errors.New("config: QUEUE_BACKOFF_BASE must be > 0 and QUEUE_PACING >= 0")
	}

	switch c.Variant {
	case VariantCandy:
		if strings.TrimSpace(c.Candy.Trigger) == "" {
			return errors.New("config: CANDY_TRIGGER must not be empty")
		}
		if c.Candy.RewardMin < 0 || c.Candy.RewardMax < c.Candy.RewardMin {
			return fmt.Errorf("config: CANDY_MIN/CANDY_MAX が不正です (%d..%d)", c.Candy.RewardMin, c.Candy.RewardMax)
		}
		if c.Candy.Cooldown < 0 {
			return errors.New("config: CANDY_COOLDOWN must be >= 0")
		}
	case VariantSnowman:
		if strings.TrimSpace(c.Snowman.PlayerFile) == "" {
			return errors.New("config: SNOWMAN_PLAYER_FILE must not be empty")
		}
		if c.Snowman.Cooldown < 0 {
			return errors.New("config: SNOWMAN_COOLDOWN must be >= 0")
		}
	}

	return nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
