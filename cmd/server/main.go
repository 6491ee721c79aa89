package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"eatflow-gateway/internal/factory"
	"eatflow-gateway/internal/handler"
	"eatflow-gateway/internal/util"
)

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      setupRouter(f),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	servers := []*http.Server{server}

	tlsManager := f.TLSManager()
	if tlsManager != nil {
		server.TLSConfig = tlsManager.TLSConfig()

		// ACME http-01 challenges need port 80
		if challenge := tlsManager.ChallengeHandler(); challenge != nil {
			redirect := &http.Server{Addr: ":80", Handler: challenge}
			servers = append(servers, redirect)
			go func() {
				util.Info("Starting ACME challenge server on port 80")
				if err := redirect.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					util.Error("ACME challenge server failed", util.ErrorField(err))
				}
			}()
		}
	} else {
		util.Warn("Starting HTTP server - TLS is disabled",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.Port),
		)
	}

	go func() {
		var err error
		if tlsManager != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Fatal("Server failed to start", util.ErrorField(err))
		}
	}()

	util.Info("Server started successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", tlsManager != nil),
		util.String("address", server.Addr),
		util.String("backend", cfg.Backend.BaseURL),
	)

	waitForShutdown(f, servers...)
}

// setupRouter creates the HTTP router with all handlers using Chi
func setupRouter(f *factory.Factory) http.Handler {
	logger := util.Get()
	services := f.ServiceFactory()
	accounts := services.AccountService()

	handlers := handler.Handlers{
		Verification: handler.NewVerificationHandler(services.VerificationService(), logger.Named("verification")),
		Account:      handler.NewAccountHandler(accounts, logger.Named("account")),
		Meal:         handler.NewMealHandler(services.MealService(), logger.Named("meal")),
	}
	cfg := f.Config()
	return handler.NewRouter(handlers, accounts, handler.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.WriteTimeout,
		Health:         f.Ready,
	}, logger)
}

func waitForShutdown(f *factory.Factory, servers ...*http.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	util.Info("Received shutdown signal", util.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), f.Config().Server.ShutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
		} else {
			util.Info("Server shutdown completed", util.String("address", srv.Addr))
		}
	}
	f.Close()
}
