package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"mention-bot/project/domain"
	"mention-bot/project/handler"
	"mention-bot/project/infrastructure/config"
	"mention-bot/project/infrastructure/logging"
	"mention-bot/project/infrastructure/mastodon"
	"mention-bot/project/infrastructure/queue"
	"mention-bot/project/infrastructure/secret"
	"mention-bot/project/infrastructure/slack"
	"mention-bot/project/infrastructure/store"
	"mention-bot/project/service"
)

// shutdownTimeout は停止時にキューの残りを書き切るまで待つ上限
const shutdownTimeout = 30 * time.Second

// variantDeps はバリアントごとに組み立てた部品
type variantDeps struct {
	handler service.MentionHandler
	setup   []service.Job

	// 눈사람 게임のみ
	players *store.PlayerFile
	snowman *service.SnowmanService
}

func run(ctx context.Context, variant config.Variant) error {
	// 1. 設定を読み込む
	if err := config.LoadEnvFile(flagEnvFile); err != nil {
		return err
	}
	cfg, err := config.NewConfig(variant)
	if err != nil {
		return err
	}
	if flagTransport != "" {
		cfg.Transport = strings.ToLower(flagTransport)
	}

	logging.Setup(cfg.LogLevel, cfg.LogPretty)

	// Secret Manager（シークレット名が指定されている場合のみ）
	if cfg.NeedsSecrets() {
		sm, err := secret.NewManager(ctx, cfg.GcpProject)
		if err != nil {
			return fmt.Errorf("main: Secret Manager 初期化失敗: %w", err)
		}
		err = cfg.ResolveSecrets(ctx, sm)
		sm.Close()
		if err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// 2. ワークブックと書き込みキュー
	wb, closeWB, err := openWorkbook(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeWB()

	q := queue.New(wb, queue.Options{
		Capacity:    cfg.QueueCapacity,
		Pacing:      cfg.QueuePacing,
		MaxAttempts: cfg.MaxAttempts,
		BackoffBase: cfg.BackoffBase,
	})

	// 3. トランスポート（返信ポート）
	var (
		rp       service.ReplyPort
		masto    *mastodon.Client
		slackCli *slack.SlackClient
	)
	switch cfg.Transport {
	case config.TransportMastodon:
		masto, err = mastodon.NewClient(mastodon.Options{
			Server:         cfg.MastodonServer,
			AccessToken:    cfg.MastodonToken,
			ReplyEvery:     cfg.ReplyEvery,
			ReconnectDelay: cfg.ReconnectDelay,
		})
		if err != nil {
			return err
		}
		rp = masto
	case config.TransportSlack:
		slackCli = slack.NewSlackClient(cfg.SlackBotToken, cfg.ReplyEvery)
		rp = slackCli
	}

	// 4. サービス層
	deps, err := buildVariant(cfg, q, rp)
	if err != nil {
		return err
	}
	for _, job := range deps.setup {
		if err := q.Enqueue(job); err != nil {
			return fmt.Errorf("main: 初期化ジョブ投入失敗 (job=%s): %w", job.Name, err)
		}
	}
	dispatcher := handler.NewDispatcher(deps.handler)

	// 5. HTTP ハンドラー
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	if slackCli != nil {
		mux.Handle("/slack/events", handler.NewEventsHandler(cfg.SlackSigningSecret, slackCli, dispatcher))
		if deps.snowman != nil {
			mux.Handle("/slack/commands", handler.NewCommandsHandler(cfg.SlackSigningSecret, cfg.SlackOperators, deps.players, deps.snowman, q))
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6. 起動
	log.Info().
		Str("variant", string(cfg.Variant)).
		Str("transport", cfg.Transport).
		Str("store", cfg.Store).
		Str("addr", srv.Addr).
		Msg("main: 起動")

	// ワーカーは受信側の停止後にキューを書き切ってから止めるため、ctx とは独立に動かす
	workerCtx, cancelWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorker()
	workerDone := make(chan error, 1)
	go func() { workerDone <- q.Run(workerCtx) }()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("main: HTTP サーバー停止: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if masto != nil {
		g.Go(func() error {
			return masto.Stream(gctx, dispatcher.Dispatch)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	// 7. 残りのジョブを書き切って停止
	log.Info().Int("pending", q.Len()).Msg("main: 書き込みキューを排出中")
	cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if cerr := q.Close(cctx); cerr != nil {
		log.Error().Err(cerr).Msg("main: キュー排出失敗")
		cancelWorker()
	}
	if werr := <-workerDone; werr != nil && !errors.Is(werr, context.Canceled) {
		log.Error().Err(werr).Msg("main: ワーカー異常終了")
	}

	log.Info().Msg("main: 停止")
	return err
}

// openWorkbook は設定に応じたワークブックを開きます
func openWorkbook(ctx context.Context, cfg *config.Config) (domain.Workbook, func(), error) {
	switch cfg.Store {
	case config.StoreFirestore:
		wb, err := store.NewFirestoreWorkbook(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return wb, func() { wb.Close() }, nil
	case config.StoreSQLite:
		wb, err := store.OpenSQLiteWorkbook(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return wb, func() { wb.Close() }, nil
	case config.StoreMemory:
		log.Warn().Msg("main: メモリワークブックを使用します（再起動で消えます）")
		return store.NewMemoryWorkbook(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("main: 未対応のストア (store=%s): %w", cfg.Store, domain.ErrInvalid)
}

// buildVariant はバリアントのサービスを組み立てます
func buildVariant(cfg *config.Config, q service.QueuePort, rp service.ReplyPort) (variantDeps, error) {
	switch cfg.Variant {
	case config.VariantCandy:
		reward := service.NewRewardResolver(service.NewRandomizer(cfg.Seed), cfg.Candy.RewardMin, cfg.Candy.RewardMax)
		svc := service.NewCandyService(service.CandyConfig{
			Trigger:     cfg.Candy.Trigger,
			LogSheet:    cfg.Candy.LogSheet,
			ScriptSheet: cfg.Candy.ScriptSheet,
			Cooldown:    cfg.Candy.Cooldown,
			Location:    cfg.Timezone,
			Visibility:  cfg.Visibility,
		}, q, rp, reward)
		return variantDeps{handler: svc, setup: []service.Job{svc.SetupJob()}}, nil

	case config.VariantSnowman:
		players, err := store.OpenPlayerFile(cfg.Snowman.PlayerFile)
		if err != nil {
			return variantDeps{}, err
		}
		// 눈사람 게임は Jitter と装飾抽選だけを使う
		reward := service.NewRewardResolver(service.NewRandomizer(cfg.Seed), 0, 0)
		svc := service.NewSnowmanService(service.SnowmanConfig{
			Cooldown:   cfg.Snowman.Cooldown,
			Visibility: cfg.Visibility,
			Operator:   cfg.Snowman.Operator,
			Targets:    service.ScoreTargets{Head: cfg.Snowman.TargetHead, Body: cfg.Snowman.TargetBody},
		}, players, q, rp, reward)
		return variantDeps{handler: svc, players: players, snowman: svc}, nil

	case config.VariantBattleLog:
		grammar := domain.BattleLogGrammar()
		if cfg.BattleLog.CommandsFile != "" {
			g, err := domain.LoadGrammar(cfg.BattleLog.CommandsFile)
			if err != nil {
				return variantDeps{}, err
			}
			grammar = g
		}
		svc := service.NewBattleLogService(service.BattleLogConfig{
			LogSheet:   cfg.BattleLog.LogSheet,
			Location:   cfg.Timezone,
			Visibility: cfg.Visibility,
		}, grammar, q, rp)
		return variantDeps{handler: svc, setup: []service.Job{svc.SetupJob()}}, nil
	}
	return variantDeps{}, fmt.Errorf("main: 未対応のバリアント (variant=%s): %w", cfg.Variant, domain.ErrInvalid)
}
