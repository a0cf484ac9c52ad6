package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"command-center/api/rest/routes"
	"command-center/api/ws"
	"command-center/config"
	"command-center/core/auth"
	"command-center/core/engine"
	"command-center/core/events"
	"command-center/core/executor"
	"command-center/core/monitoring"
	"command-center/core/repository"
	"command-center/core/spec"
	"command-center/providers/agent"
	"command-center/providers/aws"
	"command-center/providers/github"
	"command-center/providers/simulated"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func newAuthStore(cfg *config.Config) auth.Store {
	chain := auth.Chain{auth.StaticStore{
		auth.ServiceGitHub: cfg.GitHub.Token,
		auth.ServiceAgent:  cfg.Agent.Token,
	}}
	if cfg.AuthFile != "" {
		chain = append(chain, auth.NewFileStore(cfg.AuthFile))
	}
	return chain
}

func loadRecipes(cfg *config.Config) (*spec.RecipeCatalog, error) {
	if cfg.RecipesFile == "" {
		return spec.DefaultRecipes(), nil
	}
	catalog, err := spec.LoadRecipes(cfg.RecipesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipes: %w", err)
	}
	return catalog, nil
}

// services are the wired collaborators shared by serve and run
type services struct {
	engine  *engine.Engine
	fanout  *events.Fanout
	db      *repository.DB
	journal *repository.EventJournal
	archive *repository.JobArchive
}

func (s *services) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func buildServices(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*services, error) {
	store := newAuthStore(cfg)
	recipes, err := loadRecipes(cfg)
	if err != nil {
		return nil, err
	}

	fanout := events.NewFanout(logger)
	fanout.Register("log", events.NewLogSink(logger))
	svc := &services{fanout: fanout}

	if cfg.DatabaseURL != "" {
		db, err := repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		svc.db = db
		svc.journal = repository.NewEventJournal(db)
		svc.archive = repository.NewJobArchive(db)
		fanout.Register("journal", svc.journal)
		logger.Info("Database connected successfully")
	}

	deps := engine.Dependencies{
		Emitter: fanout,
		Recipes: recipes,
		Auth:    store,
	}

	if cfg.Simulate {
		logger.Warn("Simulation mode: no external service is contacted")
		gh := simulated.NewSourceControl("simulated")
		gh.OpenAccess = true
		deps.SourceControl = gh
		deps.Agents = simulated.NewAgentSessions()
		deps.Executor = simulated.NewExecutor()
		deps.Auth = auth.Chain{store, auth.StaticStore{auth.ServiceGitHub: "simulated", auth.ServiceAgent: "simulated"}}
	} else {
		gh, err := github.NewClient(github.Options{
			BaseURL:             cfg.GitHub.APIURL,
			TokenSource:         auth.TokenSource(store, auth.ServiceGitHub),
			EnvironmentInterval: cfg.Jobs.EnvironmentInterval,
			EnvironmentAttempts: cfg.Jobs.EnvironmentAttempts,
			Logger:              logger,
		})
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("failed to create GitHub client: %w", err)
		}
		sshClient, err := executor.NewSSHClient(executor.Options{
			KeyDir:         cfg.SSH.KeyDir,
			ConnectTimeout: cfg.SSH.ConnectTimeout,
			KnownHostsFile: cfg.SSH.KnownHostsFile,
			Logger:         logger,
		})
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("failed to create SSH client: %w", err)
		}
		deps.SourceControl = gh
		deps.Executor = sshClient
		deps.Agents = agent.NewClient(agent.Options{
			BaseURL:     cfg.Agent.APIURL,
			TokenSource: auth.TokenSource(store, auth.ServiceAgent),
			Logger:      logger,
		})

		if cfg.AWSRegion != "" {
			resolver, err := aws.NewClient(ctx, cfg.AWSRegion, logger)
			if err != nil {
				// instance ids will not resolve, plain hosts still work
				logger.WithError(err).Warn("EC2 host resolution disabled")
			} else {
				deps.Hosts = resolver
			}
		}
	}

	eng, err := engine.New(deps, engine.Config{
		PollInterval:    cfg.Jobs.PollInterval,
		MaxPollFailures: cfg.Jobs.MaxPollFailures,
		ScaffoldTarget: executor.Target{
			Host: cfg.SSH.ScaffoldHost,
			Port: cfg.SSH.ScaffoldPort,
			User: cfg.SSH.ScaffoldUser,
		},
		Logger: logger,
	})
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.engine = eng
	return svc, nil
}

func serve(ctx context.Context, configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	hub := ws.NewHub(logger)
	svc.fanout.Register("websocket", hub)
	defer hub.Close()

	var archiver monitoring.Archiver
	opts := routes.Options{Events: hub}
	if svc.archive != nil {
		archiver = svc.archive
		opts.Archive = svc.archive
		opts.Journal = svc.journal
	}
	sweeper := monitoring.NewSweeper(svc.engine.Registry(), archiver, cfg.Jobs.RetainTerminated, cfg.Jobs.SweepInterval, logger)
	go sweeper.Start(ctx)

	r := mux.NewRouter()
	routes.SetupRoutes(r, svc.engine, opts)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.ServerPort).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := svc.engine.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Jobs still running at exit")
	}
	logger.Info("Server exited")
	return nil
}

func runJob(ctx context.Context, configFile, specPath string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	data, err := os.ReadFile(specPath)
	if err != nil {
		return fmt.Errorf("failed to read job spec: %w", err)
	}
	sub, err := spec.ParseJobSpec(string(data))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	id, err := svc.engine.Run(ctx, sub)
	if err != nil {
		return fmt.Errorf("job %s failed: %w", id, err)
	}
	state, err := svc.engine.Registry().Get(id)
	if err != nil {
		return err
	}
	if state.PR != nil {
		fmt.Printf("%s %s\n", state.Status, state.PR.URL)
	} else {
		fmt.Println(state.Status)
	}
	if svc.archive != nil {
		if err := svc.archive.SaveJob(context.WithoutCancel(ctx), state); err != nil {
			logger.WithError(err).Warn("Failed to archive job")
		}
	}
	return nil
}
