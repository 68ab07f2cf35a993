package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/urlscraper/internal/id/uuid"
	"github.com/JakeFAU/urlscraper/internal/params"
	"github.com/JakeFAU/urlscraper/internal/storage"
	"github.com/JakeFAU/urlscraper/internal/urlsource"
	"github.com/JakeFAU/urlscraper/internal/worker"
)

type fetchOptions struct {
	urls        string
	paramsFile  string
	inputFile   string
	format      string
	out         string
	concurrency int
	timeout     time.Duration
}

func newFetchCmd() *cobra.Command {
	opts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch one batch of URLs and print the result table",
		Long: `Builds the URL list from --urls (newline separated) or a params document,
fetches every URL concurrently, and writes the url/date/status/html table as
JSON or CSV to stdout or --out. The table is also exported to the configured
storage backend.`,
		Example: `  urlscraper fetch --urls "example.com
https://go.dev"
  urlscraper fetch --params job.yaml --format csv --out table.csv
  urlscraper fetch --params columns.yaml --input sites.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.urls, "urls", "", "newline separated URL list")
	flags.StringVar(&opts.paramsFile, "params", "", "params document (YAML or JSON, any schema version)")
	flags.StringVar(&opts.inputFile, "input", "", "CSV file feeding a column URL source")
	flags.StringVar(&opts.format, "format", "json", "output format: json or csv")
	flags.StringVar(&opts.out, "out", "", "write the table to this file instead of stdout")
	flags.IntVar(&opts.concurrency, "concurrency", 0, "parallel fetches (default from config)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "per-URL timeout (default from config)")
	cmd.MarkFlagsMutuallyExclusive("urls", "params")
	return cmd
}

func runFetch(cmd *cobra.Command, opts *fetchOptions) error {
	svc, err := resolveService(cmd.Context())
	if err != nil {
		return err
	}
	format, err := storage.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	src, err := opts.source()
	if err != nil {
		return err
	}
	runID, err := uuid.New().NewID()
	if err != nil {
		return err
	}

	res, runErr := svc.Runner().Execute(cmd.Context(), worker.RunRequest{
		RunID:       runID,
		Source:      src,
		Concurrency: opts.concurrency,
		Timeout:     opts.timeout,
	})
	if res.Warning != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", res.Warning)
	}
	if res.Table != nil {
		if err := writeTable(cmd.OutOrStdout(), opts.out, format, res); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("run %s: %w", runID, runErr)
	}
	if res.BlobURI != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "exported:", res.BlobURI)
	}
	return nil
}

func (o *fetchOptions) source() (urlsource.Source, error) {
	if o.urls != "" {
		return urlsource.Source{Kind: urlsource.KindList, List: o.urls}, nil
	}
	if o.paramsFile == "" {
		return urlsource.Source{}, errors.New("one of --urls or --params is required")
	}
	p, err := params.Load(o.paramsFile)
	if err != nil {
		return urlsource.Source{}, err
	}
	var input *urlsource.Input
	if o.inputFile != "" {
		f, err := os.Open(o.inputFile) // #nosec G304 -- operator-supplied input file.
		if err != nil {
			return urlsource.Source{}, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		if input, err = urlsource.ReadCSV(f); err != nil {
			return urlsource.Source{}, err
		}
	}
	return p.Source(input), nil
}

func writeTable(stdout io.Writer, path string, format storage.Format, res worker.RunResult) (err error) {
	w := stdout
	if path != "" {
		f, err := os.Create(path) // #nosec G304 -- operator-supplied output path.
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close output: %w", cerr)
			}
		}()
		w = f
	}
	if err := format.Encode(w, res.Table); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	return nil
}
