package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"gobanserver/adminhttp"
	"gobanserver/config"
	"gobanserver/serverid"
	"gobanserver/session"
	"gobanserver/store"
	"gobanserver/wsapi"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	id, err := serverid.Derive(cfg.MachineIDPath)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("server id derived; this server owns keys managed_by=%s", id)

	st, err := store.Open(ctx, cfg.ConnectionString, id, cfg.BootstrapSchema)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer st.Close()

	manager := session.NewManager(st, id, cfg.AIAdminBaseURL)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsapi.Handler(manager))
	mux.HandleFunc("/healthz", healthz)

	gameServer := &http.Server{
		Addr:    cfg.ServerPort,
		Handler: mux,
	}

	adminServer := &http.Server{
		Addr:    cfg.AIAdminListenAddr,
		Handler: adminhttp.New(wsURL(cfg.ServerPort)).Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		manager.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Printf("listening on http://localhost%s", cfg.ServerPort)
		if err := gameServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Printf("ai admin listening on http://localhost%s", cfg.AIAdminListenAddr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	<-ctx.Done()
	log.Println("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_ = gameServer.Shutdown(shutdownCtx)
	_ = adminServer.Shutdown(shutdownCtx)
	manager.Shutdown(shutdownCtx)

	if err := g.Wait(); err != nil {
		log.Printf("server error: %v", err)
	}
}

func wsURL(serverPort string) string {
	return "ws://localhost" + serverPort + "/ws"
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
