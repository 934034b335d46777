// Command cmr-history prints the full version history of a library item and
// optionally archives it to the configured blob store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"cmrcore/internal/blob"
	"cmrcore/internal/core"
	"cmrcore/internal/logger"
	"cmrcore/internal/metrics"
	"cmrcore/internal/terminology"
	"cmrcore/pkg/domain"
)

var exitFunc = os.Exit

type options struct {
	configPath  string
	kind        string
	uid         string
	format      string
	archive     bool
	metricsFile string
}

var errUsage = errors.New("usage")

func main() {
	code := cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cmr-history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.configPath, "config", os.Getenv(core.ConfigFileEnv), "path to YAML config (env "+core.ConfigFileEnv+")")
	fs.StringVar(&opts.kind, "kind", terminology.TermKind.Tag, "aggregate kind: CTTerm or CTCodelist")
	fs.StringVar(&opts.uid, "uid", "", "uid of the item")
	fs.StringVar(&opts.format, "format", "table", "output format: table or json")
	fs.BoolVar(&opts.archive, "archive", false, "archive the history to the blob store")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := run(ctx, opts, stdout, stderr); err != nil {
		_, _ = fmt.Fprintf(stderr, "cmr-history: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) (err error) {
	if opts.uid == "" {
		return fmt.Errorf("%w: -uid is required", errUsage)
	}
	if opts.format != "table" && opts.format != "json" {
		return fmt.Errorf("%w: unknown format %q", errUsage, opts.format)
	}
	cfg, err := core.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Output: stderr})
	recorder := metrics.NewRecorder()
	svc, err := core.OpenService(ctx, cfg, terminology.NewRulesEngine(),
		core.WithLogger(log), core.WithMetricsRecorder(recorder))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Store().Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	catalog := terminology.NewCatalog(svc)
	switch opts.kind {
	case terminology.TermKind.Tag:
		err = report(ctx, catalog.Terms, cfg, opts, stdout)
	case terminology.CodelistKind.Tag:
		err = report(ctx, catalog.Codelists, cfg, opts, stdout)
	default:
		return fmt.Errorf("%w: unknown kind %q", errUsage, opts.kind)
	}
	if err != nil {
		return err
	}
	if opts.metricsFile != "" {
		return recorder.WriteTextfile(opts.metricsFile)
	}
	return nil
}

func report[V domain.Value](ctx context.Context, repo *core.Repository[V], cfg core.Config, opts options, stdout io.Writer) error {
	hist, err := repo.FullHistory(ctx, opts.uid)
	if err != nil {
		return err
	}
	switch opts.format {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(hist); err != nil {
			return fmt.Errorf("encode history: %w", err)
		}
	default:
		current := "deleted"
		latest, err := repo.FindLatest(ctx, opts.uid)
		switch {
		case err == nil:
			current = fmt.Sprintf("%s %s", latest.Version(), latest.Status())
		case domain.Code(err) != domain.CodeNotFound:
			return err
		}
		if _, err := fmt.Fprintf(stdout, "%s %s: %s\n", repo.Kind().Tag, opts.uid, current); err != nil {
			return err
		}
		if err := writeTable(stdout, hist); err != nil {
			return err
		}
	}
	if !opts.archive {
		return nil
	}
	store, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	info, err := core.NewHistoryArchiver(repo, store).Archive(ctx, opts.uid)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "archived %s (%d bytes, %s)\n", info.Key, info.Size, store.Driver())
	return err
}

func writeTable[V domain.Value](w io.Writer, hist []core.HistoryEntry[V]) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "VERSION\tSTATUS\tSTART\tEND\tAUTHOR\tCHANGE")
	for _, h := range hist {
		m := h.Metadata
		end := "-"
		if m.EndDate != nil {
			end = m.EndDate.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.Version, m.Status, m.StartDate.Format(time.RFC3339), end, m.AuthorID, m.ChangeDescription)
	}
	return tw.Flush()
}
