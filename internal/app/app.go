package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/microblog/internal/auth"
	"github.com/hitoshi/microblog/internal/config"
	"github.com/hitoshi/microblog/internal/database"
	"github.com/hitoshi/microblog/internal/feed"
	"github.com/hitoshi/microblog/internal/follow"
	"github.com/hitoshi/microblog/internal/handler"
	"github.com/hitoshi/microblog/internal/logger"
	"github.com/hitoshi/microblog/internal/metrics"
	"github.com/hitoshi/microblog/internal/middleware"
	"github.com/hitoshi/microblog/internal/notify"
	"github.com/hitoshi/microblog/internal/post"
	"github.com/hitoshi/microblog/internal/repository"
	"github.com/hitoshi/microblog/internal/security"
	"github.com/hitoshi/microblog/internal/user"
	"github.com/hitoshi/microblog/internal/worker/cleanup"
)

const (
	alertQueueSize     = 64
	alertSendTimeout   = 10 * time.Second
	shutdownTimeout    = 30 * time.Second
	healthcheckTimeout = 5 * time.Second
)

// Runtime は起動時に初期化した設定とエラー通知キューを保持する。
type Runtime struct {
	Config *config.Config
	alerts *notify.Queue
	logOut io.Writer
}

// Close はロガーを通知なしに戻し、エラー通知キューに残った通知を送信し終えるまで待つ。
func (rt *Runtime) Close() {
	if rt.alerts != nil {
		logger.SetupDefault(rt.logOut, nil)
		rt.alerts.Close()
	}
}

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数を読み込み、
// 通知先が設定されていればERRORログを管理者へ転送するようにロガーを差し替える。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*Runtime, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, nil)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. エラー通知の送信先を構築する
	reporter, err := newReporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure error reporting: %w", err)
	}

	rt := &Runtime{Config: cfg, logOut: w}
	if reporter != nil {
		rt.alerts = notify.NewQueue(reporter, alertQueueSize, alertSendTimeout)
		logger.SetupDefault(w, rt.alerts)
	}
	return rt, nil
}

// newReporter は設定に応じた通知先を返す。通知先がない場合はnilを返す。
func newReporter(cfg *config.Config) (notify.Reporter, error) {
	var reporters notify.MultiReporter

	if cfg.MailEnabled() {
		reporters = append(reporters, notify.NewMailReporter(notify.MailConfig{
			Server:   cfg.MailServer,
			Port:     cfg.MailPort,
			UseTLS:   cfg.MailUseTLS,
			Username: cfg.MailUsername,
			Password: cfg.MailPassword,
			To:       cfg.Admins,
		}))
	}

	if cfg.ErrorWebhookURL != "" {
		webhook, err := notify.NewWebhookReporter(cfg.ErrorWebhookURL, alertSendTimeout)
		if err != nil {
			return nil, err
		}
		reporters = append(reporters, webhook)
	}

	if len(reporters) == 0 {
		return nil, nil
	}
	return reporters, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	root.SetOut(w)
	root.SetErr(w)
	return root.Execute()
}

// runCommand は設定を読み込み、指定されたモードで起動する。
func runCommand(w io.Writer, cmd Command) error {
	rt, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer rt.Close()

	cfg := rt.Config
	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("session_store", cfg.SessionStore),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// openSessionStore は設定に応じたセッションストアを返す。
// 戻り値のcloseは終了時に呼び出す。
func openSessionStore(ctx context.Context, cfg *config.Config, db *sql.DB) (repository.SessionRepository, func(), error) {
	if cfg.SessionStore != config.SessionStoreRedis {
		return repository.NewPostgresSessionRepo(db), func() {}, nil
	}

	client, err := repository.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("redis connection established")
	return repository.NewRedisSessionRepo(client), func() { client.Close() }, nil
}

// rateLimiterConfig は分単位の設定値をトークンバケットの設定に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rl.GeneralBurst = cfg.RateLimitGeneral
	rl.AuthRate = rate.Limit(float64(cfg.RateLimitLogin) / 60.0)
	rl.AuthBurst = cfg.RateLimitLogin
	return rl
}

// newMetrics はランタイムメトリクスを含むレジストリとCollectorを生成する。
func newMetrics() (*metrics.Collector, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewCollector(reg), reg
}

// newRouterDeps は全依存関係をワイヤリングしてルーターの依存を組み立てる。
func newRouterDeps(cfg *config.Config, db *sql.DB, sessions repository.SessionRepository) *handler.RouterDeps {
	// 1. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	followRepo := repository.NewPostgresFollowRepo(db)

	// 2. ドメインサービス
	userService := user.NewService(userRepo, sessions)
	followService := follow.NewService(followRepo)
	postService := post.NewService(postRepo)
	assembler := feed.NewAssembler(postRepo, userService, postService, security.NewTextSanitizer())

	authService := auth.NewService(userService, sessions, auth.NewTokenSigner(cfg.SecretKey), auth.ServiceConfig{
		SessionMaxAge:  time.Duration(cfg.SessionMaxAge) * time.Second,
		RememberMaxAge: time.Duration(cfg.RememberMaxAge) * time.Second,
	})

	// 3. 横断的関心事
	collector, reg := newMetrics()
	cookie := handler.CookieConfig{Domain: cfg.CookieDomain, Secure: cfg.CookieSecure}

	return &handler.RouterDeps{
		Logger:         slog.Default(),
		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),
		HealthChecker:  db,

		PrincipalResolver:  authService,
		LastSeenToucher:    userService,
		RateLimiter:        middleware.NewRateLimiter(rateLimiterConfig(cfg)),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HSTS:               cfg.CookieSecure,

		Renderer: handler.JSONRenderer{},
		BaseURL:  cfg.BaseURL,
		Cookie:   cookie,

		AuthService:     authService,
		UserService:     userService,
		FollowService:   followService,
		PostService:     postService,
		TimelineService: assembler,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	if cfg.UsesDefaultSecret() {
		slog.Warn("SECRET_KEYが未設定のため開発用の署名鍵を使用しています")
	}

	// 1. DB接続
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database connection established")

	// 2. セッションストア
	sessions, closeSessions, err := openSessionStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeSessions()

	// 3. ルーターの構築
	deps := newRouterDeps(cfg, db, sessions)
	defer deps.RateLimiter.Stop()
	router := handler.NewRouter(deps)

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-listenErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// セッションストアに接続し、期限切れセッションの削除を定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database connection established (worker)")

	// 2. セッションストア
	sessions, closeSessions, err := openSessionStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeSessions()

	// 3. クリーンアップジョブの初期化
	job := cleanup.NewCleanupJob(sessions, metrics.NopCollector{}, slog.Default())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)

	// ctxがキャンセルされるまでブロックする
	job.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: healthcheckTimeout}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// URLとして解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
