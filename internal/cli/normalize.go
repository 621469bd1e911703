package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/addrnorm/internal/application"
	"github.com/JonMunkholm/addrnorm/internal/config"
	"github.com/JonMunkholm/addrnorm/internal/core"
	"github.com/JonMunkholm/addrnorm/internal/logging"
	"github.com/JonMunkholm/addrnorm/internal/table"
)

type normalizeOptions struct {
	in        string
	out       string
	mode      string
	enrich    bool
	enrichURL string
	workers   int
	report    string
	reportDir string
	cap       int
	profile   string
	save      bool
}

func normalizeCmd() *cobra.Command {
	var o normalizeOptions

	c := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize the address columns of a CSV or XLSX file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := o.apply(cmd, cfg); err != nil {
				return err
			}
			return runNormalize(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, o)
		},
	}

	c.Flags().StringVarP(&o.in, "in", "i", "", "Input file, .csv or .xlsx (required)")
	c.Flags().StringVarP(&o.out, "out", "o", "", "Output file; .xlsx writes a workbook, anything else CSV (default: CSV on stdout)")
	c.Flags().StringVarP(&o.mode, "mode", "m", "", "Output mode: addr-only|extended (default: OUTPUT_MODE)")
	c.Flags().BoolVar(&o.enrich, "enrich", false, "Consult the external address parser for each row")
	c.Flags().StringVar(&o.enrichURL, "enrich-url", "", "Address parser base URL (default: ENRICH_URL)")
	c.Flags().IntVarP(&o.workers, "workers", "w", 0, "Concurrent row workers (default: PIPELINE_WORKERS)")
	c.Flags().StringVar(&o.report, "report", "", "Write the change report to this file")
	c.Flags().StringVar(&o.reportDir, "report-dir", "", "Write the change report to DIR/examples_<unix>.txt")
	c.Flags().IntVar(&o.cap, "cap", 0, "Report lines per field, evenly sampled (0 = all)")
	c.Flags().StringVar(&o.profile, "profile", "", "Rule profile path (default: ADDRNORM_PROFILE or search)")
	c.Flags().BoolVar(&o.save, "save", false, "Record the batch in the change log when DATABASE_URL is set")

	_ = c.MarkFlagRequired("in")
	c.MarkFlagsMutuallyExclusive("report", "report-dir")
	return c
}

// apply lets explicitly set flags override the environment, then
// revalidates.
func (o normalizeOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Pipeline.OutputMode = o.mode
	}
	if flags.Changed("workers") {
		cfg.Pipeline.Workers = o.workers
	}
	if flags.Changed("cap") {
		cfg.Report.PerFieldCap = o.cap
	}
	if flags.Changed("profile") {
		cfg.Rules.ProfilePath = o.profile
	}
	if flags.Changed("enrich-url") {
		cfg.Enrich.URL = o.enrichURL
	}
	if flags.Changed("enrich") {
		cfg.Enrich.Enabled = o.enrich
	}
	return cfg.Validate()
}

func runNormalize(ctx context.Context, stdout, stderr io.Writer, cfg *config.Config, o normalizeOptions) error {
	log := logging.New(stderr, cfg.Logging.Level, cfg.Logging.Format)

	mode, err := table.ParseMode(cfg.Pipeline.OutputMode)
	if err != nil {
		return err
	}

	in, err := readInput(o.in)
	if err != nil {
		return err
	}
	if len(in.AddressColumns()) == 0 {
		log.Warn("no address columns; every row normalizes to empty", "file", o.in, "header", in.Header)
	}
	records := in.Records()

	app, err := application.Build(ctx, cfg, application.Options{
		SkipStore: !o.save,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	defer app.Close()

	b, err := app.Service.NormalizeBatch(ctx, records, core.BatchOptions{
		FileName: filepath.Base(o.in),
		Mode:     string(mode),
		Enrich:   cfg.Enrich.Enabled,
		Report: core.ReportOptions{
			MaxValueLen: cfg.Report.MaxValueLen,
			PerFieldCap: cfg.Report.PerFieldCap,
		},
	})
	if err != nil {
		return err
	}

	out, err := table.Output(in, b.Rows, mode)
	if err != nil {
		return err
	}
	if err := writeOutput(stdout, o.out, out); err != nil {
		return err
	}

	if err := writeReport(stderr, o, b.Report); err != nil {
		return err
	}
	printSummary(stderr, b)
	return nil
}

func readInput(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	t, err := table.Read(path, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func writeOutput(stdout io.Writer, path string, t *table.Table) error {
	if path == "" {
		w := bufio.NewWriter(stdout)
		if err := table.WriteCSV(w, t); err != nil {
			return err
		}
		return w.Flush()
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		err = table.WriteXLSX(f, t)
	} else {
		err = table.WriteCSV(f, t)
	}
	if err != nil {
		return err
	}
	return f.Close()
}

func writeReport(stderr io.Writer, o normalizeOptions, r *core.Report) error {
	switch {
	case o.report != "":
		f, err := os.Create(o.report)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		if err := core.WriteReport(f, r); err != nil {
			return err
		}
		return f.Close()

	case o.reportDir != "":
		path, err := core.SaveReport(o.reportDir, r, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr, "report: %s\n", path)
	}
	return nil
}

func printSummary(w io.Writer, b *core.BatchResult) {
	st := b.Stats
	fmt.Fprintf(w, "Batch:    %s\n", b.ID)
	fmt.Fprintf(w, "Rows:     %d\n", st.Rows)
	fmt.Fprintf(w, "Zips:     %d valid\n", st.ValidZips)
	fmt.Fprintf(w, "Country:  %d resolved\n", st.CountriesResolved)
	if st.Enriched > 0 || st.EnrichUnavailable > 0 {
		fmt.Fprintf(w, "Enriched: %d (%d unavailable)\n", st.Enriched, st.EnrichUnavailable)
	}
	fmt.Fprintf(w, "Duration: %s\n", b.Duration.Round(time.Millisecond))
	for _, fs := range b.Report.Summary() {
		if fs.Changed == 0 && fs.Cleared == 0 {
			continue
		}
		fmt.Fprintf(w, "  %-9s %d changed, %d cleared\n", fs.Field+":", fs.Changed, fs.Cleared)
	}
}
