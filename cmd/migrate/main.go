// Command migrate moves the on-device store into the relational backend
// and prints the run report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tankerflow/booking-engine/internal/config"
	"github.com/tankerflow/booking-engine/internal/migration"
	"github.com/tankerflow/booking-engine/internal/store/local"
	"github.com/tankerflow/booking-engine/internal/store/remote"
)

func main() {
	defaults := migration.DefaultOptions()
	skipExisting := flag.Bool("skip-existing", defaults.SkipExisting, "merge onto users already present instead of failing")
	dryRun := flag.Bool("dry-run", defaults.DryRun, "export and transform but write nothing")
	createAuth := flag.Bool("create-auth-accounts", defaults.CreateAuthAccounts, "provision external auth accounts (not wired; records a warning)")
	sourcePath := flag.String("source", "", "path to the on-device store file (defaults to TANKER_LOCAL_STORE_PATH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	path := *sourcePath
	if path == "" {
		path = cfg.LocalStorePath
	}

	src, err := local.Open(path, log)
	if err != nil {
		log.Fatal("failed to open source store", zap.Error(err))
	}
	defer func() { _ = src.Close() }()

	// The migration runs on the elevated tier, not the per-user one.
	db, err := gorm.Open(postgres.Open(cfg.MigrationDSN), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(remote.AllModels()...); err != nil {
		log.Fatal("failed to prepare target schema", zap.Error(err))
	}

	engine := migration.NewEngine(src, db, migration.Options{
		SkipExisting:       *skipExisting,
		DryRun:             *dryRun,
		CreateAuthAccounts: *createAuth,
	}, log)

	report := engine.Run(context.Background())

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatal("failed to encode report", zap.Error(err))
	}
	fmt.Println(string(out))

	if !report.Success {
		os.Exit(1)
	}
}
