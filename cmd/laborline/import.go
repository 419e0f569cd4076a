package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"laborline/internal/config"
	appLog "laborline/internal/log"
	"laborline/internal/model"
	"laborline/internal/records"
	"laborline/internal/source"
)

// recordWriter is the part of the event store the import command needs.
type recordWriter interface {
	Insert(ctx context.Context, workOrder string, recs []model.RawRecord) error
	Close(ctx context.Context) error
}

// openStore connects to the configured event store. Tests replace it.
var openStore = func(ctx context.Context, cfg *config.Config) (recordWriter, error) {
	if cfg.Mongo.URI == "" {
		return nil, errors.New("import: mongo.uri is not configured")
	}
	return records.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
}

func newImportCmd(configPath *string) *cobra.Command {
	var (
		workOrder string
		from, to  string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "import <file.json|file.ics>",
		Short: "Load labor events from a file into the event store",
		Long: "Reads a JSON export or ICS calendar and inserts its events into the\n" +
			"configured MongoDB collection under a work order. Records the analyzer\n" +
			"would reject are reported and skipped.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workOrder == "" {
				return errors.New("import: --work-order is required")
			}
			cfg, err := loadConfig(*configPath, false)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			setupLogging(cfg)
			defer syncLogs()

			a, err := newAnalyzer(cfg)
			if err != nil {
				return err
			}
			w, err := parseWindow(from, to, a.Location())
			if err != nil {
				return err
			}
			raw, err := source.ReadFile(args[0], w)
			if err != nil {
				return err
			}

			_, invalid := a.Normalize(raw)
			skip := make(map[int]bool, len(invalid))
			out := cmd.OutOrStdout()
			for _, e := range invalid {
				skip[e.Index] = true
				fmt.Fprintf(out, "skipped %s: %s\n", e.RecordID, e.Reason)
			}
			valid := make([]model.RawRecord, 0, len(raw)-len(skip))
			for i, r := range raw {
				if !skip[i] {
					valid = append(valid, r)
				}
			}

			if dryRun {
				_, err = fmt.Fprintf(out, "would import %d records into %s\n", len(valid), workOrder)
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close(context.Background())

			if err := store.Insert(ctx, workOrder, valid); err != nil {
				return fmt.Errorf("import: %w", err)
			}
			appLog.Info("records imported", "work_order", workOrder, "count", len(valid), "skipped", len(skip))
			_, err = fmt.Fprintf(out, "imported %d records into %s\n", len(valid), workOrder)
			return err
		},
	}
	cmd.Flags().StringVar(&workOrder, "work-order", "", "Work order the events belong to")
	cmd.Flags().StringVar(&from, "from", "", "Start of the ICS expansion window, YYYY-MM-DD (default: a year ago)")
	cmd.Flags().StringVar(&to, "to", "", "End of the ICS expansion window, YYYY-MM-DD (default: a year ahead)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the file without writing to the store")
	return cmd
}
