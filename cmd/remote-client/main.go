// REMOTE - game client runtime
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"

	"github.com/remotelab/remote-client/internal/api"
	"github.com/remotelab/remote-client/internal/config"
	"github.com/remotelab/remote-client/internal/desktop"
	"github.com/remotelab/remote-client/internal/game"
	"github.com/remotelab/remote-client/internal/journal"
	"github.com/remotelab/remote-client/internal/router"
	"github.com/remotelab/remote-client/internal/scheduler"
	"github.com/remotelab/remote-client/internal/socket"
	"github.com/remotelab/remote-client/internal/tom"
	"github.com/remotelab/remote-client/internal/wire"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	sessionID := "session_" + ulid.Make().String()
	slog.Info("Starting client", "session_id", sessionID, "backend", cfg.BackendWSURL)

	// Initialize dependencies.
	repo, err := journal.NewSQLite(cfg.JournalPath)
	if err != nil {
		slog.Error("Failed to initialize journal", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close journal", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Journal health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Journal connected", "path", cfg.JournalPath)

	purged, err := repo.PurgeSessionsBefore(context.Background(), time.Now().Add(-cfg.JournalTTL))
	if err != nil {
		slog.Error("Failed to purge stale sessions", "error", err)
		os.Exit(1)
	}
	slog.Info("Stale session purge complete", "sessions_removed", purged)

	sched := scheduler.NewReal()
	sock := socket.New(socket.Options{
		BaseURL:              cfg.BackendWSURL,
		MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
		ReconnectBaseDelay:   cfg.Reconnect.BaseDelay,
	})

	// Initialize stores.
	session := game.New(sessionID, sched, sock)
	env := desktop.New(desktop.Options{
		SessionID: sessionID,
		Scheduler: sched,
		Socket:    sock,
	})

	agentOpts := tom.Options{
		SessionID: sessionID,
		Config: tom.Config{
			Name:             "Tom",
			Role:             "Support Technique",
			Style:            "confident",
			TypingSimulation: cfg.Tom.TypingSimulation,
			TypingSpeedWPM:   cfg.Tom.TypingSpeedWPM,
		},
		Scheduler: sched,
		Socket:    sock,
	}
	if cfg.Tom.NotificationSounds {
		agentOpts.Notifier = tom.BellNotifier{}
	}
	agent := tom.New(agentOpts)

	// Journal wiring: persist session outcomes, actions and conversation
	// as they happen.
	unsubEnded := session.Ended().Subscribe(func(ev game.SessionEnded) {
		ended := time.Now()
		started := ended.Add(-ev.Duration)
		rec := &journal.SessionRecord{
			SessionID:           ev.SessionID,
			StartedAt:           started,
			EndedAt:             &ended,
			EndingType:          ev.EndingType,
			Phase:               string(ev.Summary.Phase),
			TotalActions:        ev.Summary.TotalActions,
			ObedientActions:     ev.Summary.ObedientActions,
			MetaActions:         ev.Summary.MetaActions,
			HesitationEvents:    ev.Summary.HesitationEvents,
			CorruptionIncidents: ev.Summary.CorruptionIncidents,
			ObedienceRate:       ev.Summary.ObedienceRate,
		}
		if err := repo.UpsertSession(context.Background(), rec); err != nil {
			slog.Warn("Failed to journal session outcome", "error", err)
		}
	})
	unsubActions := session.Actions().Subscribe(func(data wire.ActionData) {
		details := ""
		if len(data.Details) > 0 {
			if raw, err := json.Marshal(data.Details); err == nil {
				details = string(raw)
			}
		}
		rec := &journal.ActionRecord{
			ActionID:    data.ID,
			SessionID:   data.SessionID,
			Type:        data.Type,
			GameTime:    data.GameTime,
			GamePhase:   data.GamePhase,
			IsObedient:  data.IsObedient,
			IsMeta:      data.IsMetaAction,
			Target:      data.Target,
			DetailsJSON: details,
			RecordedAt:  time.Now(),
		}
		if err := repo.AppendAction(context.Background(), rec); err != nil {
			slog.Warn("Failed to journal action", "action_id", data.ID, "error", err)
		}
	})
	unsubMessages := agent.Messages().Subscribe(func(msg tom.Message) {
		rec := &journal.MessageRecord{
			MessageID:  msg.ID,
			SessionID:  sessionID,
			Sender:     msg.Sender,
			Type:       msg.Type,
			Content:    msg.Content,
			RecordedAt: time.Now(),
		}
		if err := repo.AppendMessage(context.Background(), rec); err != nil {
			slog.Warn("Failed to journal message", "message_id", msg.ID, "error", err)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect. Outbound frames queue while disconnected, so a failed
	// first attempt is not fatal.
	connectCtx, cancelConnect := context.WithTimeout(ctx, 30*time.Second)
	if err := sock.Connect(connectCtx); err != nil {
		slog.Warn("Backend connection not established, frames will queue", "error", err)
	}
	cancelConnect()

	// Load the desktop: backend snapshot, or the built-in default.
	bootstrapCtx, cancelBootstrap := context.WithTimeout(ctx, 15*time.Second)
	env.Bootstrap(bootstrapCtx, nil, cfg.BackendAPIURL)
	cancelBootstrap()

	// Route inbound frames and cross-store events.
	rt := router.New(session, env, agent)
	rt.Attach(sock)

	watcher := router.NewHesitationWatcher(sched, session, agent)
	unsubWatcher := env.FileEvents().Subscribe(func(desktop.FileEvent) {
		watcher.Activity()
	})

	session.StartSession()
	if cfg.PlayerName != "" {
		agent.SetPlayerName(cfg.PlayerName)
	}
	agent.InitializeConversation()
	watcher.Activity()

	// Debug surface.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	debugHandler := api.NewHandler(session, env, agent, sock, repo)
	debugHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:        cfg.DebugAddr,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		slog.Info("Debug server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Debug server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	watcher.Stop()
	unsubWatcher()
	rt.Detach()
	session.Cleanup()
	agent.Cleanup()
	env.Cleanup()
	unsubEnded()
	unsubActions()
	unsubMessages()

	if err := sock.Close(); err != nil {
		slog.Warn("Socket close failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Debug server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Client stopped successfully")
}
