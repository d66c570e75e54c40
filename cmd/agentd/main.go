package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"coinflow/internal/catalog"
	"coinflow/internal/engine"
	"coinflow/internal/reconciler"
	"coinflow/internal/remote"
	"coinflow/internal/state"
	"coinflow/internal/store"
	"coinflow/internal/stream"
	"coinflow/internal/verifier"
	"coinflow/pkg/config"
	"coinflow/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("agentd")

	if err := cfg.ValidateAgent(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	db, err := store.OpenLevel(cfg.Agent.DataDir, cfg.Agent.InstallationID)
	if err != nil {
		log.Fatal("Failed to open durable store", map[string]interface{}{
			"data_dir": cfg.Agent.DataDir,
			"error":    err.Error(),
		})
	}
	defer db.Close()

	st, err := state.Load(db)
	if err != nil {
		log.Fatal("Failed to load reconciliation state", map[string]interface{}{
			"error": err.Error(),
		})
	}
	log.Info("Reconciliation state loaded", map[string]interface{}{
		"pending_credit": st.Pending(),
	})

	cat, err := catalog.LoadFile(cfg.Agent.CatalogPath)
	if err != nil {
		log.Fatal("Failed to load reward catalog", map[string]interface{}{
			"path":  cfg.Agent.CatalogPath,
			"error": err.Error(),
		})
	}
	log.Info("Reward catalog loaded", map[string]interface{}{"products": cat.Len()})

	ver, err := verifier.NewFromPEMFile(cfg.Agent.PlatformKeyPath)
	if err != nil {
		log.Fatal("Failed to load platform key", map[string]interface{}{
			"path":  cfg.Agent.PlatformKeyPath,
			"error": err.Error(),
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := remote.NewClient(cfg.Agent.LedgerURL)
	if err := client.Authenticate(ctx, cfg.Agent.InstallationID, cfg.Agent.InstallationSecret); err != nil {
		log.Fatal("Failed to authenticate with ledger service", map[string]interface{}{
			"error": err.Error(),
		})
	}

	seq, err := client.AllocateUserSequence(ctx)
	if err != nil {
		log.Fatal("Failed to allocate user sequence", map[string]interface{}{
			"error": err.Error(),
		})
	}
	log.Info("Ledger account ready", map[string]interface{}{"sequential_id": seq})

	eng := engine.New(st, cat, log)
	rec := reconciler.New(st, client, log)

	dial := func(ctx context.Context) (stream.Source, error) {
		return stream.DialWS(ctx, cfg.Agent.StreamURL)
	}
	sup := stream.NewSupervisor(dial, ver, eng, log, cfg.Agent.StreamBackoffMax)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sup.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		rec.RunPeriodic(ctx, cfg.Agent.ReconcileInterval)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down", map[string]interface{}{
		"pending_credit": st.Pending(),
	})
	cancel()
	wg.Wait()
}
