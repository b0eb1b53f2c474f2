// Command importcsv merges a CRM backup CSV into a local database without
// going through the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kithlabs/kith/internal/reconcile"
	"github.com/kithlabs/kith/internal/store"
)

func main() {
	var (
		dbPath        = flag.String("db", "kith.db", "path to the SQLite database")
		username      = flag.String("user", "default", "username to merge into (created if missing)")
		allUsers      = flag.Bool("all-users", false, "merge into every user instead of a single one")
		dryRun        = flag.Bool("dry-run", false, "report what would change without writing")
		force         = flag.Bool("force", false, "re-run even if this file was imported before")
		policyTier    = flag.String("policy-tier", reconcile.PolicyPreserve, "contact tier conflict policy (preserve or overwrite)")
		policyDetails = flag.String("policy-details", reconcile.PolicyPreserve, "detail conflict policy (preserve or append; append behaves as preserve)")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <backup.csv>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	csvPath := flag.Arg(0)

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	raw, err := os.ReadFile(csvPath)
	if err != nil {
		logger.Fatal("failed to read input file", zap.Error(err))
	}

	st, err := store.NewSQLiteStore(*dbPath)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	ctx := context.Background()

	var (
		kind   string
		scopes []store.User
	)
	if *allUsers {
		kind = "csv_all_users"
		scopes, err = st.Users(ctx)
		if err != nil {
			logger.Fatal("failed to list users", zap.Error(err))
		}
	} else {
		id, err := st.EnsureUser(ctx, *username)
		if err != nil {
			logger.Fatal("failed to ensure user", zap.String("user", *username), zap.Error(err))
		}
		kind = "csv_merge"
		scopes = []store.User{{ID: id, Username: *username}}
	}

	engine := reconcile.NewEngine(st, logger)
	result, err := engine.Run(ctx, kind, reconcile.DecodeUpload(raw), scopes, reconcile.Options{
		DryRun: *dryRun,
		Force:  *force,
		Policy: reconcile.Policy{
			ContactTier: *policyTier,
			Details:     *policyDetails,
		},
		FileName: filepath.Base(csvPath),
		FileHash: reconcile.Fingerprint(raw),
	})
	if err != nil {
		logger.Fatal("import failed", zap.Error(err))
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Fatal("failed to encode result", zap.Error(err))
	}
	fmt.Println(string(out))
}
