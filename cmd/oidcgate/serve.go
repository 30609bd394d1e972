package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	authgin "github.com/PaulFidika/oidcgate/adapters/gin"
	"github.com/PaulFidika/oidcgate/config"
	jwtkit "github.com/PaulFidika/oidcgate/jwt"
	oidckit "github.com/PaulFidika/oidcgate/oidc"
	memorylimiter "github.com/PaulFidika/oidcgate/ratelimit/memory"
	redislimiter "github.com/PaulFidika/oidcgate/ratelimit/redis"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gate HTTP server",
		Long: `Serve exposes GET /auth/<strategy> for forward-auth proxies, POST /token
when a token endpoint and clients are configured, and /.well-known/jwks.json in
dev mode.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	rdb, err := redisClient(cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	client := &http.Client{Timeout: cfg.ExchangeTimeout}
	var cmdable redis.Cmdable
	if rdb != nil {
		cmdable = rdb
	}
	fetch, err := keystoreSource(ctx, cfg, cmdable, client, log)
	if err != nil {
		return err
	}
	clients, err := cfg.ClientSecrets()
	if err != nil {
		return err
	}
	authStyle, err := oidckit.ParseAuthStyle(cfg.TokenAuthStyle)
	if err != nil {
		return err
	}
	var strategies []oidckit.StrategyConfig
	if cfg.StrategiesFile != "" {
		if strategies, err = config.LoadStrategies(cfg.StrategiesFile, client); err != nil {
			return err
		}
	}

	gate, err := oidckit.New(ctx, oidckit.Options{
		TokenEndpoint:   cfg.TokenEndpoint,
		TokenAuthStyle:  authStyle,
		Clients:         clients,
		FetchKeystore:   fetch,
		Dev:             cfg.Dev,
		Strategies:      strategies,
		OmitCheckExp:    cfg.OmitCheckExp,
		ExchangeTimeout: cfg.ExchangeTimeout,
		Logger:          log,
	})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"strategies": gate.Strategies.Names(),
		"kids":       gate.Keys.Keystore().KeyIDs(),
		"exchange":   gate.Exchange != nil,
	}).Info("gate ready")

	g, ctx := errgroup.WithContext(ctx)

	switch {
	case cfg.KeystoreFile != "":
		w, err := jwtkit.NewFileWatcher(cfg.KeystoreFile, gate.Keys, log)
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(ctx) })
	case fetch != nil:
		r := jwtkit.NewRefresher(gate.Keys, fetch, jwtkit.WithRefreshLogger(log))
		if err := r.Schedule(cfg.RefreshSchedule); err != nil {
			return err
		}
		r.Start()
		defer r.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(cfg, gate, rdb, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.WithField("addr", cfg.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRouter(cfg *config.Config, gate *oidckit.Gate, rdb *redis.Client, log logrus.FieldLogger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), authgin.RequestID())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "kids": gate.Keys.Keystore().KeyIDs()})
	})

	for _, name := range gate.Strategies.Names() {
		r.GET("/auth/"+name, authgin.Authenticate(gate, name, authgin.WithLogger(log)), forwardAuth)
	}

	opts := []authgin.Option{authgin.WithLogger(log)}
	if cfg.TokenRateLimit > 0 {
		limits := map[string]memorylimiter.Limit{authgin.TokenBucket: {Limit: cfg.TokenRateLimit, Window: time.Minute}}
		if rdb != nil {
			opts = append(opts, authgin.WithRateLimiter(redislimiter.New(rdb, map[string]redislimiter.Limit{
				authgin.TokenBucket: {Limit: cfg.TokenRateLimit, Window: time.Minute},
			})))
		} else {
			opts = append(opts, authgin.WithRateLimiter(memorylimiter.New(limits)))
		}
	}
	authgin.RegisterRoutes(r, gate, opts...)

	if cfg.Dev {
		authgin.JWKSRoute(r, gate.Keys)
	}
	return r
}

// forwardAuth answers a reverse proxy's auth subrequest. The subject is
// passed upstream in X-Auth-Subject.
func forwardAuth(c *gin.Context) {
	u, _ := authgin.CurrentUser(c)
	c.Header("X-Auth-Subject", u.Subject)
	c.Header("X-Auth-Strategy", u.Strategy)
	c.JSON(http.StatusOK, u)
}
