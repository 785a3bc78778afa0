// Admin CLI for reviewing user reports.
//
//	admin list              - print open reports with their severity weight
//	admin resolve <id> <st> - set a report's status (resolved/dismissed)
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"gorandom/backend/internal/config"
	"gorandom/backend/internal/moderation"
	"gorandom/backend/internal/storage"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}
	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	storageSvc := storage.NewStorageService(db)
	ctx := context.Background()

	if len(os.Args) < 2 {
		fmt.Println("usage: admin list | admin resolve <report-id> <status>")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "list":
		reports, err := storageSvc.OpenReports(ctx)
		if err != nil {
			log.Fatalf("failed to load reports: %v", err)
		}
		penalties := make(map[string]int)
		for _, r := range reports {
			fmt.Printf("%s  reporter=%s reported=%s session=%s severity=%s weight=%d reason=%q\n",
				r.ReportID, r.ReporterID, r.ReportedID, r.SessionID,
				r.Severity, moderation.GetWeight(r.Severity), r.Reason)
			penalties[r.ReportedID] += moderation.GetWeight(r.Severity)
		}
		for uid, penalty := range penalties {
			fmt.Printf("user %s: reputation %d/%d\n", uid, moderation.Reputation(penalty), moderation.InitialReputation)
		}
		fmt.Printf("%d open report(s)\n", len(reports))

	case "resolve":
		if len(os.Args) < 4 {
			fmt.Println("usage: admin resolve <report-id> <status>")
			os.Exit(1)
		}
		if err := storageSvc.ResolveReport(ctx, os.Args[2], os.Args[3]); err != nil {
			log.Fatalf("failed to resolve report: %v", err)
		}
		fmt.Println("ok")

	default:
		fmt.Printf("unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}
