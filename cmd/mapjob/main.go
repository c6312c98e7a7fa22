package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/formpilot/fieldmap/internal/async"
	"github.com/formpilot/fieldmap/internal/entity"
	"github.com/formpilot/fieldmap/internal/export"
	"github.com/formpilot/fieldmap/internal/orchestrator"
	"github.com/formpilot/fieldmap/internal/profiles"
	"github.com/formpilot/fieldmap/internal/repository"
	"github.com/formpilot/fieldmap/internal/service"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

// fileResult pairs one input file with its finished mapping result.
type fileResult struct {
	File   string         `json:"file"`
	Result *entity.Result `json:"result"`
}

// inlineQueue runs each job synchronously at enqueue time. The CLI has no
// daemon to hand work to; the pipeline itself is unchanged.
type inlineQueue struct {
	orch *orchestrator.Orchestrator
}

func (q *inlineQueue) Enqueue(ctx context.Context, job async.Job) error {
	_, err := q.orch.Run(ctx, job.JobID)
	return err
}

func (q *inlineQueue) Shutdown(context.Context) {}

func main() {
	// Parse CLI flags
	var (
		targetsPath = flag.String("targets", "", "target schema JSON file (required)")
		hint        = flag.String("hint", "", "document type hint for profile selection")
		threshold   = flag.Float64("threshold", 0, "acceptance threshold override (0 = profile default)")
		maxAttempts = flag.Int("max-attempts", 0, "mapping attempt limit override (0 = default)")
		merge       = flag.Bool("merge", false, "treat all inputs to one job as a merged multi-document set")
		profilePath = flag.String("profiles", "", "optional profiles YAML file")
		out         = flag.String("out", "", "write review XLSX next to results (single input only)")
		jobs        = flag.Int("jobs", 4, "max concurrent jobs")
	)
	flag.Parse()

	if *targetsPath == "" {
		printError("Error: --targets is required\n")
		os.Exit(1)
	}
	inputs := flag.Args()
	if len(inputs) == 0 {
		printError("Error: at least one source-fields JSON file is required\n")
		os.Exit(1)
	}
	if *out != "" && len(inputs) != 1 {
		printError("Error: --out only supports a single input file\n")
		os.Exit(1)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	// Target schema is shared by every job.
	rawTargets, err := os.ReadFile(*targetsPath)
	if err != nil {
		printError("Error: reading targets: %v\n", err)
		os.Exit(1)
	}
	targets, err := service.ParseTargetSchema(rawTargets)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	// Mapping profiles
	registry := profiles.Defaults()
	if *profilePath != "" {
		registry, err = profiles.LoadFile(*profilePath)
		if err != nil {
			printError("Error: loading profiles: %v\n", err)
			os.Exit(1)
		}
	}

	// Scratch store for the lifetime of the run.
	tmp, err := os.CreateTemp("", "mapjob-*.db")
	if err != nil {
		printError("Error: temp store: %v\n", err)
		os.Exit(1)
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	store, err := repository.NewSQLiteStore(tmp.Name(), logger)
	if err != nil {
		printError("Error: opening store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	orch := orchestrator.New(store, registry, orchestrator.Config{
		MaxAttempts: *maxAttempts,
	}, logger)
	svc := service.NewService(store, &inlineQueue{orch: orch}, logger)

	opts := entity.JobOptions{
		DocumentTypeHint: *hint,
		MaxAttempts:      *maxAttempts,
		Threshold:        *threshold,
		MergeDocuments:   *merge,
	}

	// One job per input file, mapped concurrently.
	results := make([]fileResult, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*jobs)
	for i, path := range inputs {
		g.Go(func() error {
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			sources, err := service.ParseSourceFields(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if opts.MergeDocuments {
				for j := range sources {
					if sources[j].DocumentID == "" {
						sources[j].DocumentID = filepath.Base(path)
					}
				}
			}

			jobID, err := svc.Submit(gctx, sources, targets, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			result, pending, err := svc.GetResult(gctx, jobID)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if pending {
				return fmt.Errorf("%s: job %s did not finish", path, jobID)
			}
			results[i] = fileResult{File: path, Result: result}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	if *out != "" {
		exp := export.NewService(store, logger)
		xlsxBytes, err := exp.ReviewWorkbookXLSX(ctx, results[0].Result.JobID)
		if err != nil {
			printError("Error: export: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*out, xlsxBytes, 0644); err != nil {
			printError("Error: writing %s: %v\n", *out, err)
			os.Exit(1)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		printError("Error: encoding results: %v\n", err)
		os.Exit(1)
	}
}
