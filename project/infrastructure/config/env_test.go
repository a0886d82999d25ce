package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets map[string]string

func (f fakeSecrets) GetSecret(ctx context.Context, name string) (string, error) {
	v, ok := f[name]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv("MASTODON_SERVER", "https://example.social")
	t.Setenv("MASTODON_ACCESS_TOKEN", "token")

	cfg, err := NewConfig(VariantCandy)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, TransportMastodon, cfg.Transport)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, "Asia/Seoul", cfg.Timezone.String())
	assert.Equal(t, "[사탕]", cfg.Candy.Trigger)
	assert.Equal(t, 1, cfg.Candy.RewardMin)
	assert.Equal(t, 10, cfg.Candy.RewardMax)
	assert.Equal(t, time.Hour, cfg.Candy.Cooldown)
	assert.Equal(t, 1024, cfg.QueueCapacity)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.BackoffBase)
	assert.Equal(t, 137, cfg.Snowman.TargetHead)
	assert.Equal(t, 274, cfg.Snowman.TargetBody)
}

func TestNewConfig_Overrides(t *testing.T) {
	t.Setenv("TRANSPORT", "Slack")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb")
	t.Setenv("SLACK_SIGNING_SECRET", "sign")
	t.Setenv("SLACK_OPERATORS", "U1, U2,,")
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("QUEUE_PACING", "10ms")
	t.Setenv("QUEUE_MAX_ATTEMPTS", "oops") // 不正値は既定値
	t.Setenv("STORE", "memory")

	cfg, err := NewConfig(VariantBattleLog)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, TransportSlack, cfg.Transport)
	assert.Equal(t, []string{"U1", "U2"}, cfg.SlackOperators)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 10*time.Millisecond, cfg.QueuePacing)
	assert.Equal(t, 5, cfg.MaxAttempts)
}

func TestNewConfig_BadTimezone(t *testing.T) {
	t.Setenv("TIMEZONE", "Mars/Olympus")
	_, err := NewConfig(VariantCandy)
	require.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	base := func() *Config {
		return &Config{
			Variant:        VariantCandy,
			LogLevel:       "info",
			Transport:      TransportMastodon,
			MastodonServer: "https://example.social",
			MastodonToken:  "t",
			Visibility:     "public",
			Store:          StoreMemory,
			QueueCapacity:  1,
			MaxAttempts:    1,
			BackoffBase:    time.Second,
			Candy:          CandyConfig{Trigger: "[사탕]", RewardMin: 1, RewardMax: 10},
			Snowman:        SnowmanConfig{PlayerFile: "p.json"},
		}
	}
	require.NoError(t, base().Validate())

	cases := map[string]func(c *Config){
		"variant":    func(c *Config) { c.Variant = "pumpkin" },
		"transport":  func(c *Config) { c.Transport = "irc" },
		"token":      func(c *Config) { c.MastodonToken = "" },
		"visibility": func(c *Config) { c.Visibility = "secret" },
		"store":      func(c *Config) { c.Store = "excel" },
		"firestore":  func(c *Config) { c.Store = StoreFirestore },
		"capacity":   func(c *Config) { c.QueueCapacity = 0 },
		"attempts":   func(c *Config) { c.MaxAttempts = 0 },
		"range":      func(c *Config) { c.Candy.RewardMax = 0 },
		"trigger":    func(c *Config) { c.Candy.Trigger = " " },
		"playerfile": func(c *Config) { c.Variant = VariantSnowman; c.Snowman.PlayerFile = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestResolveSecrets(t *testing.T) {
	cfg := &Config{MastodonTokenSecret: "mastodon-token", SlackBotToken: "keep", SlackBotTokenSecret: "slack-bot"}
	require.True(t, cfg.NeedsSecrets())

	require.NoError(t, cfg.ResolveSecrets(context.Background(), fakeSecrets{"mastodon-token": "from-sm"}))
	assert.Equal(t, "from-sm", cfg.MastodonToken)
	assert.Equal(t, "keep", cfg.SlackBotToken, "直接設定された値が優先")

	missing := &Config{MastodonTokenSecret: "absent"}
	require.Error(t, missing.ResolveSecrets(context.Background(), fakeSecrets{}))
	require.Error(t, missing.ResolveSecrets(context.Background(), nil))
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.env")
	require.NoError(t, os.WriteFile(path, []byte("CANDY_TRIGGER=[호박]\n"), 0o600))
	t.Setenv("CANDY_TRIGGER", "")
	os.Unsetenv("CANDY_TRIGGER")

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "[호박]", os.Getenv("CANDY_TRIGGER"))

	require.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}
