// render-report regenerates a project's calibration report from the
// database, as markdown or PDF, without running the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/veritrail/veritrail/internal/analysis"
	"github.com/veritrail/veritrail/internal/audit"
	"github.com/veritrail/veritrail/internal/compliance"
	"github.com/veritrail/veritrail/internal/config"
	"github.com/veritrail/veritrail/internal/report"
	"github.com/veritrail/veritrail/internal/similarity"
	"github.com/veritrail/veritrail/internal/store"
)

func main() {
	projectID := flag.String("project", "", "Project ID to report on")
	output := flag.String("output", "", "Path to write the report (defaults to stdout, markdown only)")
	pdf := flag.Bool("pdf", false, "Render a PDF instead of markdown (requires -output)")
	flag.Parse()

	if *projectID == "" {
		log.Fatal("missing required -project")
	}
	if *pdf && *output == "" {
		log.Fatal("-pdf requires -output")
	}

	_ = godotenv.Load()
	cfg := config.Load()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	gate := compliance.NewGate(cfg.ComplianceMode)
	rec := audit.NewRecorder(st.DB(), cfg.AuditLogsEnabled, cfg.ComplianceMode)
	thresholds := similarity.ThresholdSet{
		Research: similarity.Thresholds{Yellow: cfg.ResearchYellowThreshold, Red: cfg.ResearchRedThreshold},
		Patent:   similarity.Thresholds{Yellow: cfg.PatentYellowThreshold, Red: cfg.PatentRedThreshold},
	}
	svc := analysis.NewService(st, gate, rec, thresholds, cfg.EmbeddingDimensions)

	data, err := svc.ReportData(*projectID)
	if err != nil {
		log.Fatalf("assemble report: %v", err)
	}
	markdown := report.BuildMarkdown(data)

	if *pdf {
		renderer := report.NewChromiumPDFRenderer()
		out, err := renderer.Render(context.Background(), data.Project.Title, markdown)
		if err != nil {
			log.Fatalf("render pdf: %v", err)
		}
		if err := os.WriteFile(*output, out, 0o644); err != nil {
			log.Fatalf("write pdf: %v", err)
		}
		log.Printf("wrote %s", *output)
		return
	}

	if *output == "" {
		fmt.Print(markdown)
		return
	}
	if err := os.WriteFile(*output, []byte(markdown), 0o644); err != nil {
		log.Fatalf("write markdown: %v", err)
	}
	log.Printf("wrote %s", *output)
}
