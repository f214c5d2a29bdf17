package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zenexasolutions/Fight/internal/app"
	"github.com/zenexasolutions/Fight/internal/audio"
	"github.com/zenexasolutions/Fight/internal/fighter"
	"github.com/zenexasolutions/Fight/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP and websocket API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("addr", "a", "", "listen address (default :8080)")
	serveCmd.Flags().String("session-backend", "", "session store: memory or redis")

	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("session.backend", serveCmd.Flags().Lookup("session-backend"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger()
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync() //nolint:errcheck

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the brutal-match server", zap.String("version", version))

	gateway, err := newGateway(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("building ai gateway", zap.Error(err))
	}

	store, closeStore, err := newStore(ctx, config.Session)
	if err != nil {
		logger.Fatal("opening session store", zap.Error(err), zap.String("backend", config.Session.Backend))
	}
	defer closeStore() //nolint:errcheck

	roster := fighter.DefaultRoster()
	hub := server.NewHub(logger)
	library := audio.NewLibrary(config.Server.AudioClips)

	ctrl, err := app.NewController(store, gateway, roster, server.AudioSink(library, hub), logger, app.Options{
		ScanDelay:   config.Game.ScanDelay,
		CallTimeout: config.AI.CallTimeout,
		Listener:    hub.StateListener(roster),
	})
	if err != nil {
		logger.Fatal("building controller", zap.Error(err))
	}

	go hub.Run(ctx)

	api := server.New(ctrl, hub, library, gateway, logger, server.Options{AllowedOrigins: config.Server.AllowedOrigins})
	httpServer := &http.Server{
		Addr:              config.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down http server", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", config.Server.Addr), zap.String("session_backend", config.Session.Backend))

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("serving http", zap.Error(err))
	}

	ctrl.Close()
	logger.Info("stopped")
}
