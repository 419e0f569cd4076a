package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"laborline/internal/model"
	"laborline/internal/render"
	"laborline/internal/source"
)

func newAnalyzeCmd(configPath *string) *cobra.Command {
	var (
		asJSON       bool
		receiptsPath string
		timezone     string
		from, to     string
	)

	cmd := &cobra.Command{
		Use:   "analyze <file.json|file.ics>",
		Short: "Analyze a file of labor events and print the timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, false)
			if err != nil {
				return err
			}
			if timezone != "" {
				cfg.Timezone = timezone
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

			rep := a.Analyze(raw)
			if receiptsPath != "" {
				receipts, err := readReceipts(receiptsPath)
				if err != nil {
					return err
				}
				a.AttachReceipts(&rep, receipts)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			_, err = fmt.Fprint(out, render.Text(rep, a.Location()))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().StringVar(&receiptsPath, "receipts", "", "JSON file of receipts to match against the events")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone for day boundaries (overrides config)")
	cmd.Flags().StringVar(&from, "from", "", "Start of the ICS expansion window, YYYY-MM-DD (default: a year ago)")
	cmd.Flags().StringVar(&to, "to", "", "End of the ICS expansion window, YYYY-MM-DD (default: a year ahead)")
	return cmd
}

// parseWindow bounds recurrence expansion for .ics input.
func parseWindow(from, to string, loc *time.Location) (source.Window, error) {
	now := time.Now().In(loc)
	w := source.Window{From: now.AddDate(-1, 0, 0), To: now.AddDate(1, 0, 0)}
	if from != "" {
		t, err := time.ParseInLocation("2006-01-02", from, loc)
		if err != nil {
			return w, fmt.Errorf("--from: %w", err)
		}
		w.From = t
	}
	if to != "" {
		t, err := time.ParseInLocation("2006-01-02", to, loc)
		if err != nil {
			return w, fmt.Errorf("--to: %w", err)
		}
		w.To = t
	}
	if w.To.Before(w.From) {
		return w, fmt.Errorf("--to is before --from")
	}
	return w, nil
}

func readReceipts(path string) ([]model.Receipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var receipts []model.Receipt
	if err := json.Unmarshal(data, &receipts); err != nil {
		return nil, fmt.Errorf("receipts %s: %w", path, err)
	}
	return receipts, nil
}
