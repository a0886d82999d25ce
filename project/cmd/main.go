package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mention-bot/project/infrastructure/config"
)

var (
	flagEnvFile   string
	flagTransport string
)

var rootCmd = &cobra.Command{
	Use:           "mention-bot",
	Short:         "멘션으로 동작하는 이벤트 봇",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func variantCmd(v config.Variant, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(v),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "読み込む .env ファイル")
	rootCmd.PersistentFlags().StringVar(&flagTransport, "transport", "", "mastodon または slack（環境変数 TRANSPORT より優先）")

	rootCmd.AddCommand(
		variantCmd(config.VariantCandy, "[사탕] 멘션에 사탕을 나눠 주는 봇"),
		variantCmd(config.VariantSnowman, "눈사람 만들기 게임 봇"),
		variantCmd(config.VariantBattleLog, "전투 커맨드를 검증하고 기록하는 봇"),
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("main: 異常終了")
		os.Exit(1)
	}
}
