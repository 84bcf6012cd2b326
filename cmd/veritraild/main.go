package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/veritrail/veritrail/internal/analysis"
	"github.com/veritrail/veritrail/internal/audit"
	"github.com/veritrail/veritrail/internal/compliance"
	"github.com/veritrail/veritrail/internal/config"
	"github.com/veritrail/veritrail/internal/drafts"
	"github.com/veritrail/veritrail/internal/httpapi"
	"github.com/veritrail/veritrail/internal/report"
	"github.com/veritrail/veritrail/internal/similarity"
	"github.com/veritrail/veritrail/internal/store"
	"github.com/veritrail/veritrail/internal/telemetry"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, "veritraild")
	if err != nil {
		log.Fatalf("telemetry setup: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("warning: trace flush failed: %v", err)
		}
	}()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	gate := compliance.NewGate(cfg.ComplianceMode)
	rec := audit.NewRecorder(st.DB(), cfg.AuditLogsEnabled, cfg.ComplianceMode)
	rec.Append(audit.ActionSystemStartup, "System", "", "", map[string]any{
		"compliance_mode": cfg.ComplianceMode,
	})

	thresholds := similarity.ThresholdSet{
		Research: similarity.Thresholds{Yellow: cfg.ResearchYellowThreshold, Red: cfg.ResearchRedThreshold},
		Patent:   similarity.Thresholds{Yellow: cfg.PatentYellowThreshold, Red: cfg.PatentRedThreshold},
	}
	svc := analysis.NewService(st, gate, rec, thresholds, cfg.EmbeddingDimensions)

	var rewriter *drafts.Rewriter
	if caller, err := drafts.NewAnthropicCallerFromEnv(); err != nil {
		log.Printf("warning: draft rewriting disabled: %v", err)
	} else {
		rewriter = drafts.NewRewriter(caller, gate, rec)
	}

	handler := httpapi.NewServer(svc, rewriter, gate, rec, report.NewChromiumPDFRenderer())

	if cfg.ComplianceMode {
		log.Printf("compliance mode ACTIVE: restricted features are blocked")
	}
	log.Printf("veritraild listening on %s (db=%s, dims=%d)", cfg.ListenAddr, cfg.DBPath, cfg.EmbeddingDimensions)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
