// Command server wires the tick source, ingestion buffer, resampler,
// bar finalizer, analytics-driven orchestrator, alert manager, broadcast
// fabric and HTTP surface into one running process. Startup shape
// (GC tuning, banner log, sequential construct-then-wire) is grounded on
// the teacher's cmd/server/main.go.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/statarb/engine/internal/alertmgr"
	"github.com/statarb/engine/internal/auth"
	"github.com/statarb/engine/internal/broadcast"
	"github.com/statarb/engine/internal/buffer"
	"github.com/statarb/engine/internal/config"
	"github.com/statarb/engine/internal/httpapi"
	"github.com/statarb/engine/internal/orchestrator"
	"github.com/statarb/engine/internal/resample"
	"github.com/statarb/engine/internal/ticksource"
)

func main() {
	tuneRuntime()

	log.Println("╔══════════════════════════════════════════════════╗")
	log.Println("║       statarb-engine — pairs analytics server     ║")
	log.Println("╚══════════════════════════════════════════════════╝")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Main] configuration error: %v", err)
	}

	src := ticksource.New(cfg.UpstreamURL, cfg.Snapshot.SelectedSymbols)
	buf := buffer.New(cfg.TickBufferCapacity)
	resampler := resample.New(cfg.FinalizedBarCap)
	finalizer := resample.NewFinalizer(resampler, resample.DefaultCheckInterval)
	alerts := alertmgr.New(cfg.AlertCap, cfg.AlertCooldown)
	hub := broadcast.New()

	orch := orchestrator.New(src, buf, resampler, finalizer, alerts, hub, cfg.BroadcastCadence, cfg.Snapshot)
	authSvc := auth.New(cfg.JWTSecret, cfg.AdminPassphraseHash)
	api := httpapi.New(orch, authSvc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		orch.Run(groupCtx)
		return nil
	})

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: api.Handler()}
	group.Go(func() error {
		log.Printf("[Main] HTTP surface listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Printf("[Main] exited with error: %v", err)
	}
	log.Println("[Main] shutdown complete")
}

// tuneRuntime mirrors the teacher's startup GC tuning: a looser GOGC
// trades memory for fewer collection pauses on the hot tick path, unless
// the operator has already set one.
func tuneRuntime() {
	if os.Getenv("GOGC") == "" {
		debug.SetGCPercent(150)
	}
}
