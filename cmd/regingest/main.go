package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"RegIngest/internal/app"
	"RegIngest/internal/config"
	"RegIngest/internal/domain"
	"RegIngest/internal/logging"
	"RegIngest/internal/usecase"
)

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:      "regingest",
		Usage:     "Ingest and enrich regulatory sources",
		ArgsUsage: "<regulation-key>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration (defaults to $REGINGEST_CONFIG)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:    "org",
				Aliases: []string{"o"},
				Usage:   "Organization id; required for ingest and status commands",
				EnvVars: []string{"REGINGEST_ORG"},
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Ingest every regulation in the catalog",
			},
			&cli.BoolFlag{
				Name:  "list",
				Usage: "List the regulation catalog",
			},
			&cli.BoolFlag{
				Name:  "status",
				Usage: "Show recent ingest jobs of the organization",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Number of jobs shown by --status",
				Value: 20,
			},
			&cli.DurationFlag{
				Name:  "reconcile-stale",
				Usage: "Mark jobs running longer than this duration as failed",
			},
			&cli.BoolFlag{
				Name:  "daemon",
				Usage: "Re-ingest the catalog on the configured interval and serve /metrics",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	mode, err := selectMode(c)
	if err != nil {
		return err
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	logger := logging.New(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	out := c.App.Writer
	org := c.String("org")

	switch mode {
	case "list":
		return printCatalog(out, application)
	case "status":
		jobs, err := application.Jobs(ctx, org, c.Int("limit"))
		if err != nil {
			return err
		}
		return printJobs(out, jobs)
	case "reconcile":
		n, err := application.ReconcileStale(ctx, c.Duration("reconcile-stale"))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Marked %d stale job(s) as failed\n", n)
		return nil
	case "daemon":
		return application.Daemon(ctx, org)
	case "all":
		results, err := application.RunAll(ctx, org)
		for _, stats := range results {
			printRun(out, stats)
		}
		return err
	default:
		stats, err := application.RunOne(ctx, org, c.Args().First(), progressPrinter(out))
		printRun(out, stats)
		return err
	}
}

// selectMode validates the argument combination before anything is opened.
func selectMode(c *cli.Context) (string, error) {
	var modes []string
	if c.Bool("list") {
		modes = append(modes, "list")
	}
	if c.Bool("status") {
		modes = append(modes, "status")
	}
	if c.IsSet("reconcile-stale") {
		modes = append(modes, "reconcile")
	}
	if c.Bool("daemon") {
		modes = append(modes, "daemon")
	}
	if c.Bool("all") {
		modes = append(modes, "all")
	}
	if c.Args().Len() > 0 {
		modes = append(modes, "one")
	}

	switch {
	case len(modes) == 0:
		return "", errors.New("a regulation key or one of --all, --list, --status, --reconcile-stale, --daemon is required")
	case len(modes) > 1:
		return "", fmt.Errorf("conflicting commands: %v", modes)
	case c.Args().Len() > 1:
		return "", errors.New("only one regulation key may be given")
	}

	mode := modes[0]
	if mode != "list" && mode != "reconcile" && c.String("org") == "" {
		return "", errors.New("--org is required")
	}
	return mode, nil
}

func printCatalog(out io.Writer, application *app.Application) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tNAME\tJURISDICTION\tEFFECTIVE")
	for _, src := range application.Sources() {
		effective := "-"
		if src.EffectiveDate != nil {
			effective = src.EffectiveDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", src.Key, src.Name, src.Jurisdiction, effective)
	}
	return w.Flush()
}

func printJobs(out io.Writer, jobs []domain.JobStatusView) error {
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No ingest jobs")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tSTARTED\tFINISHED")
	for _, job := range jobs {
		finished := "-"
		if job.FinishedAt != nil {
			finished = job.FinishedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", job.ID, job.Source, job.Status, job.StartedAt.Format(time.RFC3339), finished)
	}
	return w.Flush()
}

func printRun(out io.Writer, stats domain.RunStats) {
	if stats.JobID == "" {
		return
	}
	fmt.Fprintf(out, "%s: %s (job %s, %s)\n", stats.RegulationID, stats.Status, stats.JobID, stats.Duration.Round(time.Millisecond))
	if stats.Status != domain.JobSucceeded {
		return
	}
	fmt.Fprintf(out, "  provisions %d, enriched %d, failed %d\n", stats.Provisions, stats.Enriched, stats.Failed)
	fmt.Fprintf(out, "  articles +%d new, %d updated, %d unchanged; obligations +%d\n",
		stats.Persist.ArticlesInserted, stats.Persist.ArticlesUpdated,
		stats.Persist.ArticlesUnchanged, stats.Persist.ObligationsInserted)
	fmt.Fprintf(out, "  tokens %d in / %d out, est. $%.4f\n",
		stats.Usage.InputTokens, stats.Usage.OutputTokens, stats.EstimatedCostUSD)
	for _, w := range stats.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	if stats.Partial() {
		fmt.Fprintln(out, "  failed provisions:")
		fmt.Fprint(out, usecase.FormatFailures(stats.Failures, stats.Failed))
	}
}

func progressPrinter(out io.Writer) func(stage string, done, total int) {
	return func(stage string, done, total int) {
		fmt.Fprintf(out, "  %s %d/%d\n", stage, done, total)
	}
}
