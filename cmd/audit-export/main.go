// audit-export dumps the audit ledger to an xlsx workbook for
// compliance reviews.
package main

import (
	"flag"
	"log"
	"strings"

	"github.com/joho/godotenv"

	"github.com/veritrail/veritrail/internal/audit"
	"github.com/veritrail/veritrail/internal/store"
)

func main() {
	dbPath := flag.String("db", "veritrail.db", "Path to the pipeline database")
	projectID := flag.String("project", "", "Export only this project's trail (default: full ledger)")
	output := flag.String("output", "audit-trail.xlsx", "Path to write the workbook")
	limit := flag.Int("limit", 10000, "Maximum entries to export")
	flag.Parse()

	_ = godotenv.Load()

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	rec := audit.NewRecorder(st.DB(), true, false)

	var entries []audit.Entry
	if strings.TrimSpace(*projectID) != "" {
		entries, err = rec.ProjectTrail(*projectID, *limit)
	} else {
		entries, err = rec.Recent(*limit)
	}
	if err != nil {
		log.Fatalf("read audit log: %v", err)
	}

	if err := audit.ExportWorkbook(entries, *output); err != nil {
		log.Fatalf("export workbook: %v", err)
	}
	log.Printf("wrote %d entries to %s", len(entries), *output)
}
