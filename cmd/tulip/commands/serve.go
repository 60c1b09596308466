package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/emberian/tulip/internal/agents"
	botcommands "github.com/emberian/tulip/internal/commands"
	"github.com/emberian/tulip/internal/config"
	"github.com/emberian/tulip/internal/db"
	"github.com/emberian/tulip/internal/events"
	"github.com/emberian/tulip/internal/handlers"
	"github.com/emberian/tulip/internal/interactions"
	"github.com/emberian/tulip/internal/jobs"
	"github.com/emberian/tulip/internal/logger"
	"github.com/emberian/tulip/internal/messages"
	"github.com/emberian/tulip/internal/personas"
	"github.com/emberian/tulip/internal/presence"
	"github.com/emberian/tulip/internal/puppets"
	"github.com/emberian/tulip/internal/queue"
	"github.com/emberian/tulip/internal/server"
	"github.com/emberian/tulip/internal/streams"
	"github.com/emberian/tulip/internal/users"
	"github.com/emberian/tulip/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		runServer(cfg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServer(cfg config.Config) {
	fx.New(
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideDBConn,
			provideEventRegistry,

			users.NewService,
			streams.NewService,
			personas.NewService,
			puppets.NewService,
			botcommands.NewService,
			presence.NewService,
			queue.NewService,
			interactions.NewService,
			interactions.NewHandlerRegistry,
			provideWebhookClient,
			provideMessages,
			provideDispatcher,
			provideJobs,
			provideAgents,

			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideAuthHandler),
			provideServerHandler(handlers.NewStreamsHandler),
			provideServerHandler(handlers.NewPersonasHandler),
			provideServerHandler(handlers.NewPuppetsHandler),
			provideServerHandler(handlers.NewCommandsHandler),
			provideServerHandler(provideEventsHandler),
			provideServerHandler(provideInteractionsHandler),
			provideServerHandler(handlers.NewPresenceHandler),
			provideServerHandler(handlers.NewMessagesHandler),
			provideServerHandler(handlers.NewAgentsHandler),

			provideServer,
		),
		fx.Invoke(
			startDispatcher,
			startEventQueueGC,
			startJobs,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, err := db.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

func provideEventRegistry(log *slog.Logger, cfg config.Config) *events.Registry {
	return events.NewRegistry(log, cfg.Events.QueueGCTimeout())
}

func provideWebhookClient(cfg config.Config) *interactions.WebhookClient {
	return interactions.NewWebhookClient(cfg.Webhook.Timeout())
}

func provideMessages(log *slog.Logger, pool *pgxpool.Pool, registry *events.Registry, usersSvc *users.Service, streamsSvc *streams.Service, personasSvc *personas.Service, puppetsSvc *puppets.Service) *messages.Service {
	return messages.NewService(log, pool, registry, usersSvc, streamsSvc, personasSvc, puppetsSvc)
}

func provideDispatcher(log *slog.Logger, cfg config.Config, queueSvc *queue.Service, svc *interactions.Service, usersSvc *users.Service, presenceSvc *presence.Service, messagesSvc *messages.Service, webhook *interactions.WebhookClient, registry *interactions.HandlerRegistry) *interactions.Dispatcher {
	return interactions.NewDispatcher(log, interactions.DispatcherOptions{
		Workers:     cfg.Webhook.Workers,
		MaxAttempts: cfg.Webhook.MaxAttempts,
	}, queueSvc, svc, usersSvc, presenceSvc, messagesSvc, webhook, registry)
}

func provideJobs(log *slog.Logger, cfg config.Config, puppetsSvc *puppets.Service, presenceSvc *presence.Service) *jobs.Service {
	return jobs.NewService(log, cfg.Jobs, puppetsSvc, presenceSvc)
}

func provideAgents(log *slog.Logger, cfg config.Config, pool *pgxpool.Pool, usersSvc *users.Service) *agents.Service {
	fetcher := agents.NewTweetFetcher(15 * time.Second)
	moltbook := agents.NewMoltbookVerifier(15 * time.Second)
	return agents.NewService(log, pool, usersSvc, fetcher, moltbook,
		cfg.Agents.AllowRegistration, cfg.Agents.RealmName)
}

func provideAuthHandler(log *slog.Logger, cfg config.Config, usersSvc *users.Service) *handlers.AuthHandler {
	return handlers.NewAuthHandler(log, usersSvc, cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry())
}

func provideEventsHandler(log *slog.Logger, cfg config.Config, registry *events.Registry, usersSvc *users.Service) *handlers.EventsHandler {
	return handlers.NewEventsHandler(log, registry, usersSvc, cfg.Events.LongpollTimeout())
}

func provideInteractionsHandler(log *slog.Logger, svc *interactions.Service, usersSvc *users.Service, messagesSvc *messages.Service) *handlers.InteractionsHandler {
	return handlers.NewInteractionsHandler(log, svc, usersSvc, messagesSvc)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.ServerHandlers...)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func startDispatcher(lc fx.Lifecycle, dispatcher *interactions.Dispatcher) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				dispatcher.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func startEventQueueGC(lc fx.Lifecycle, cfg config.Config, registry *events.Registry) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			interval := cfg.Events.QueueGCTimeout()
			if interval <= 0 {
				return nil
			}
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						registry.GC()
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func startJobs(lc fx.Lifecycle, jobsSvc *jobs.Service) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return jobsSvc.Start()
		},
		OnStop: func(ctx context.Context) error {
			return jobsSvc.Stop(ctx)
		},
	})
}

func startServer(
	lc fx.Lifecycle,
	logger *slog.Logger,
	srv *server.Server,
	shutdowner fx.Shutdowner,
	cfg config.Config,
	usersSvc *users.Service,
) {
	fmt.Printf("Starting Tulip %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			realm, err := usersSvc.EnsureRealm(ctx, cfg.Realm.Name, cfg.Realm.Host)
			if err != nil {
				return fmt.Errorf("ensure realm: %w", err)
			}
			if err := usersSvc.EnsureAdmin(ctx, realm.ID, cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.FullName); err != nil {
				return fmt.Errorf("ensure admin: %w", err)
			}

			go func() {
				if err := srv.Start(); err != nil { // block until server is stopped
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
