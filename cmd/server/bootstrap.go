package main

import (
	"context"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"trailrun-backend/internal/audit"
	"trailrun-backend/internal/metadata"
	"trailrun-backend/internal/store"
)

var seedFile string

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the catalog tables and optionally load seed records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		db, err := store.New(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		entities := reg.AllEntities()
		if err := store.Bootstrap(ctx, db, entities, log); err != nil {
			return err
		}
		if cfg.Audit.Enabled {
			if err := audit.EnsureTable(ctx, db); err != nil {
				return err
			}
		}
		if seedFile == "" {
			return nil
		}

		seed, err := loadSeed(seedFile)
		if err != nil {
			return err
		}
		for _, e := range entities {
			records, ok := seed[string(e.Kind)]
			if !ok {
				continue
			}
			n, err := store.Seed(ctx, db, e, records)
			if err != nil {
				return err
			}
			log.WithField("kind", e.Kind).WithField("records", n).Info("seeded")
		}
		return nil
	},
}

func init() {
	bootstrapCmd.Flags().StringVar(&seedFile, "seed", "", "TOML file with records keyed by kind")
}

// loadSeed reads a TOML document of the form [[competitions]] id = "..." ...
// Records without an id get a random one.
func loadSeed(path string) (map[string][]store.SeedRecord, error) {
	var raw map[string][]map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	out := make(map[string][]store.SeedRecord, len(raw))
	for kind, rows := range raw {
		records := make([]store.SeedRecord, 0, len(rows))
		for _, row := range rows {
			if _, ok := row[metadata.IDField]; !ok {
				row[metadata.IDField] = uuid.NewString()
			}
			records = append(records, store.SeedRecord(row))
		}
		out[kind] = records
	}
	return out, nil
}
