package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	_ "github.com/rescueradar/rescueradar/internal/adapters"
	"github.com/rescueradar/rescueradar/internal/config"
	"github.com/rescueradar/rescueradar/internal/database"
	"github.com/rescueradar/rescueradar/internal/fetch"
	"github.com/rescueradar/rescueradar/internal/orgconfig"
	"github.com/rescueradar/rescueradar/pkg/rescueradar"
)

var (
	cfgFile   string
	orgFlag   string
	dryRun    bool
	listOnly  bool
	jsonOut   bool
	parallel  int
	configDir string

	qualityFormat string
	qualityOut    string
	enrichLimit   int
)

// usageError exits 2; everything else exits 1.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

func main() {
	rootCmd := &cobra.Command{
		Use:   "rescueradar",
		Short: "RescueRadar — dog rescue listing scrape orchestrator",
		Long: `RescueRadar scrapes dog rescue organization websites on a schedule,
reconciles the listings against its Postgres store, and tracks each dog's
availability over time.

Running with no subcommand is equivalent to "rescueradar run-cron".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCron,
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	addRunCronFlags(rootCmd)

	runCronCmd := &cobra.Command{
		Use:   "run-cron",
		Short: "Scrape all enabled organizations",
		Args:  cobra.NoArgs,
		RunE:  runCron,
	}
	addRunCronFlags(runCronCmd)

	rootCmd.AddCommand(runCronCmd)
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(qualityCmd())
	rootCmd.AddCommand(checkAdoptionsCmd())
	rootCmd.AddCommand(enrichCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ue usageError
		if errors.As(err, &ue) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func addRunCronFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&orgFlag, "org", "", "scrape a single organization by config_id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would run, then exit")
	cmd.Flags().BoolVar(&listOnly, "list", false, "print the enabled/disabled table, then exit")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the machine-readable summary on stdout")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "override max parallel scrapes")
	cmd.Flags().StringVar(&configDir, "config-dir", "", "override the organization config directory")
}

func loadSetup() (*config.Config, []*orgconfig.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if parallel > 0 {
		cfg.Orchestrator.MaxParallel = parallel
	}
	if configDir != "" {
		cfg.Orchestrator.ConfigDir = configDir
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	orgs, err := orgconfig.LoadDir(cfg.Orchestrator.ConfigDir)
	if err != nil {
		return nil, nil, err
	}
	return cfg, orgs, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runCron(cmd *cobra.Command, _ []string) error {
	cfg, orgs, err := loadSetup()
	if err != nil {
		return err
	}

	if listOnly {
		printOrgTable(orgs)
		return nil
	}
	enabled := orgconfig.Enabled(orgs)
	if orgFlag != "" {
		enabled = filterOrg(enabled, orgFlag)
		if len(enabled) == 0 {
			return usageError{fmt.Errorf("no enabled organization with config_id %q", orgFlag)}
		}
	}
	if dryRun {
		sort.Slice(enabled, func(i, j int) bool { return enabled[i].ConfigID < enabled[j].ConfigID })
		fmt.Printf("would scrape %d organization(s):\n", len(enabled))
		for _, o := range enabled {
			fmt.Printf("  %s (%s)\n", o.ConfigID, o.AdapterKey())
		}
		return nil
	}

	ctx, stop := signalContext()
	defer stop()

	app, err := rescueradar.New(ctx, cfg,
		rescueradar.WithBrowser(fetch.DefaultBrowserOptions()))
	if err != nil {
		return err
	}
	defer app.Close()

	summary := app.RunAll(ctx, enabled)
	if jsonOut {
		if err := summary.WriteJSON(os.Stdout); err != nil {
			return err
		}
	} else {
		fmt.Printf("scraped %d organization(s): %d ok, %d failed, %d dogs found in %.1fs\n",
			summary.TotalOrgs, summary.Successful, summary.Failed,
			summary.TotalDogsFound, summary.DurationSeconds)
		for _, failed := range summary.FailedOrgs {
			fmt.Printf("  failed: %s\n", failed)
		}
	}
	if !summary.OverallSuccess {
		return fmt.Errorf("%d organization(s) failed", summary.Failed)
	}
	return nil
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the enabled/disabled organization table",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, orgs, err := loadSetup()
			if err != nil {
				return err
			}
			printOrgTable(orgs)
			return nil
		},
	}
}

func printOrgTable(orgs []*orgconfig.Config) {
	sorted := append([]*orgconfig.Config(nil), orgs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ConfigID < sorted[j].ConfigID })

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONFIG_ID\tNAME\tADAPTER\tENABLED")
	for _, o := range sorted {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", o.ConfigID, o.Name, o.AdapterKey(), o.Active)
	}
	w.Flush()
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply or roll back the embedded schema migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			dsn, err := cfg.Database.DSN()
			if err != nil {
				return err
			}
			mg, err := database.NewMigrator(dsn)
			if err != nil {
				return err
			}
			defer mg.Close()

			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			switch action {
			case "up":
				if err := mg.Up(); err != nil {
					return err
				}
				fmt.Println("migrations applied")
			case "down":
				if err := mg.Down(); err != nil {
					return err
				}
				fmt.Println("rolled back one migration")
			case "version":
				v, dirty, err := mg.Version()
				if err != nil {
					return err
				}
				fmt.Printf("version %d (dirty=%t)\n", v, dirty)
			}
			return nil
		},
	}
}

func qualityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quality",
		Short: "Score stored animal data quality",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if qualityFormat != "json" && qualityFormat != "csv" {
				return usageError{fmt.Errorf("format must be json or csv, got %q", qualityFormat)}
			}
			cfg, _, err := loadSetup()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			app, err := rescueradar.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Quality(ctx, orgFlag)
			if err != nil {
				return err
			}

			out := os.Stdout
			if qualityOut != "" {
				f, err := os.Create(qualityOut)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if qualityFormat == "csv" {
				return report.WriteCSV(out)
			}
			return report.WriteJSON(out)
		},
	}
	cmd.Flags().StringVar(&orgFlag, "org", "", "score a single organization by config_id")
	cmd.Flags().StringVar(&qualityFormat, "format", "json", "output format: json or csv")
	cmd.Flags().StringVar(&qualityOut, "out", "", "write the report to a file instead of stdout")
	return cmd
}

func checkAdoptionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-adoptions",
		Short: "Re-check listing pages of long-missing dogs",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, orgs, err := loadSetup()
			if err != nil {
				return err
			}

			targets := orgconfig.Enabled(orgs)
			if orgFlag != "" {
				targets = filterOrg(targets, orgFlag)
				if len(targets) == 0 {
					return usageError{fmt.Errorf("no enabled organization with config_id %q", orgFlag)}
				}
			}

			ctx, stop := signalContext()
			defer stop()

			app, err := rescueradar.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			var failures int
			for _, org := range targets {
				if !org.Scraper.CheckAdoptionStatus {
					continue
				}
				report, err := app.CheckAdoptions(ctx, org)
				if err != nil {
					failures++
					fmt.Fprintf(os.Stderr, "%s: %v\n", org.ConfigID, err)
					continue
				}
				fmt.Printf("%s: checked %d, adopted %d, reserved %d, unknown %d\n",
					org.ConfigID, report.Checked, report.Adopted, report.Reserved, report.Unknown)
			}
			if failures > 0 {
				return fmt.Errorf("%d organization(s) failed", failures)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&orgFlag, "org", "", "check a single organization by config_id")
	return cmd
}

func enrichCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Rewrite raw descriptions into clean adoption copy via LLM",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signalContext()
			defer stop()

			app, err := rescueradar.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Enrich(ctx, enrichLimit)
			if err != nil {
				return err
			}
			fmt.Printf("enriched %d of %d (failed %d, committed %d)\n",
				report.Enriched, report.Candidates, report.Failed, report.Committed)
			return nil
		},
	}
	cmd.Flags().IntVar(&enrichLimit, "limit", 50, "maximum animals to enrich in one run")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println("rescueradar", config.Version)
		},
	}
}

func filterOrg(orgs []*orgconfig.Config, configID string) []*orgconfig.Config {
	var out []*orgconfig.Config
	for _, o := range orgs {
		if o.ConfigID == configID {
			out = append(out, o)
		}
	}
	return out
}
