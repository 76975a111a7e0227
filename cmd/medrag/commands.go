package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/medrag"
	"github.com/poiesic/medrag/config"
	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/ingestion"
	"github.com/poiesic/medrag/reembed"
	"github.com/poiesic/medrag/search"
	"github.com/poiesic/medrag/watch"
)

// withService loads configuration, opens the service and runs fn with a
// context that is cancelled on SIGINT or SIGTERM.
func withService(c *cli.Context, fn func(ctx context.Context, cfg *config.Config, svc *medrag.Service) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := medrag.NewFromConfig(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	return fn(ctx, cfg, svc)
}

func ingestCommand(c *cli.Context) error {
	text := c.String("text")
	paths := c.Args().Slice()
	if text == "" && len(paths) == 0 {
		return errors.New("nothing to ingest: pass paths or --text")
	}

	return withService(c, func(ctx context.Context, cfg *config.Config, svc *medrag.Service) error {
		if _, err := svc.SetupSchema(ctx, cfg.AI.EmbeddingDimension); err != nil {
			return fmt.Errorf("preparing store: %w", err)
		}

		opts := cfg.IngestOptions()
		if c.Bool("no-extract") {
			opts.ExtractEntities = false
		}
		if budget := c.Int("budget"); budget != 0 {
			opts.ExtractionBudget = budget
		}

		out := c.App.Writer
		if text != "" {
			res, err := svc.IngestDocument(ctx, medrag.Source{Text: text, Name: c.String("name")}, opts)
			if err != nil {
				return err
			}
			printIngestResult(c, c.String("name"), res.Stats)
		}

		failed := 0
		for _, path := range paths {
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				res, err := svc.IngestDocument(ctx, medrag.Source{Path: path}, opts)
				if err != nil {
					fmt.Fprintf(out, "%s: %v\n", path, err)
					failed++
					continue
				}
				printIngestResult(c, path, res.Stats)
				continue
			}

			start := time.Now()
			results, failures, err := svc.IngestDir(ctx, path, opts)
			if err != nil {
				return err
			}
			for _, f := range failures {
				fmt.Fprintf(out, "%s: %v\n", f.Path, f.Err)
			}
			for _, r := range results {
				if r.Err != nil {
					fmt.Fprintf(out, "%s: %v\n", r.Document.Name, r.Err)
					continue
				}
				printIngestResult(c, r.Document.Metadata[ingestion.SourceMetadataKey], r.Stats)
			}
			failed += len(failures) + results.Failed()
			fmt.Fprintf(out, "%s: %d documents in %v\n", path, len(results), elapsed(start))
		}

		if failed > 0 {
			return fmt.Errorf("%d documents failed", failed)
		}
		return nil
	})
}

func printIngestResult(c *cli.Context, label string, stats *core.IngestStats) {
	if label == "" {
		label = stats.DocumentID
	}
	fmt.Fprintf(c.App.Writer, "%s: document %s, %d chunks, %d entities, %d relationships",
		label, stats.DocumentID, stats.ChunksStored, stats.EntitiesCreated, stats.RelationshipsCreated)
	if degraded := stats.EmbeddingFailures + stats.ExtractionFailures + stats.ChunkFailures; degraded > 0 {
		fmt.Fprintf(c.App.Writer, " (%d embedding, %d extraction, %d chunk failures)",
			stats.EmbeddingFailures, stats.ExtractionFailures, stats.ChunkFailures)
	}
	fmt.Fprintln(c.App.Writer)
}

func retrievalOptions(c *cli.Context, cfg *config.Config) search.Options {
	opts := cfg.RetrieveOptions()
	if k := c.Int("top-k"); k > 0 {
		opts.TopK = k
	}
	if c.Bool("no-entities") {
		opts.IncludeEntities = false
	}
	if c.Bool("no-graph") {
		opts.IncludeGraphContext = false
	}
	return opts
}

func joinedArgs(c *cli.Context, what string) (string, error) {
	text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if text == "" {
		return "", fmt.Errorf("%s is required", what)
	}
	return text, nil
}

func queryCommand(c *cli.Context) error {
	query, err := joinedArgs(c, "query")
	if err != nil {
		return err
	}

	return withService(c, func(ctx context.Context, cfg *config.Config, svc *medrag.Service) error {
		opts := retrievalOptions(c, cfg)
		var rc *core.RAGContext
		if c.Bool("explain") {
			rc, err = svc.QueryWithMonitor(ctx, query, opts, newPrintingMonitor(c.App.ErrWriter))
		} else {
			rc, err = svc.Query(ctx, query, opts)
		}
		if err != nil {
			return err
		}
		printContext(c, rc)
		return nil
	})
}

func printContext(c *cli.Context, rc *core.RAGContext) {
	out := c.App.Writer
	fmt.Fprint(out, search.FormatContext(rc))
	fmt.Fprintf(out, "\nConfidence: %.2f (total score %.3f)\n", rc.Confidence, rc.TotalScore)
	for _, ch := range rc.Channels {
		if !ch.OK() {
			fmt.Fprintf(out, "Channel %s failed: %v\n", ch.Name, ch.Err)
		}
	}
}

func answerCommand(c *cli.Context) error {
	question, err := joinedArgs(c, "question")
	if err != nil {
		return err
	}

	return withService(c, func(ctx context.Context, cfg *config.Config, svc *medrag.Service) error {
		answer, err := svc.Answer(ctx, question, retrievalOptions(c, cfg))
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, strings.TrimSpace(answer.Text))
		fmt.Fprintf(c.App.Writer, "\n(%d sources, confidence %.2f)\n", len(answer.Context.Chunks), answer.Context.Confidence)
		return nil
	})
}

func conditionsCommand(c *cli.Context) error {
	symptoms := c.Args().Slice()
	if len(symptoms) == 0 {
		return errors.New("at least one symptom is required")
	}

	return withService(c, func(ctx context.Context, _ *config.Config, svc *medrag.Service) error {
		conditions, err := svc.PossibleConditions(ctx, symptoms)
		if err != nil {
			return err
		}
		flags, err := svc.RedFlags(ctx, symptoms)
		if err != nil {
			return err
		}

		out := c.App.Writer
		if len(conditions) == 0 {
			fmt.Fprintln(out, "No linked conditions found")
		}
		for _, cond := range conditions {
			fmt.Fprintf(out, "%-30s %5.1f%%  matched: %s\n", cond.Disease, cond.Probability*100, strings.Join(cond.MatchedSymptoms, ", "))
		}
		for _, flag := range flags {
			fmt.Fprintf(out, "RED FLAG: %s\n", flag)
		}
		return nil
	})
}

func interactionsCommand(c *cli.Context) error {
	drugs := c.Args().Slice()
	if len(drugs) < 2 {
		return errors.New("at least two drugs are required")
	}

	return withService(c, func(ctx context.Context, _ *config.Config, svc *medrag.Service) error {
		interactions, err := svc.DrugInteractions(ctx, drugs)
		if err != nil {
			return err
		}
		if len(interactions) == 0 {
			fmt.Fprintln(c.App.Writer, "No known interactions")
		}
		for _, in := range interactions {
			fmt.Fprintf(c.App.Writer, "%s + %s", in.DrugA, in.DrugB)
			if in.Severity != "" {
				fmt.Fprintf(c.App.Writer, " [%s]", in.Severity)
			}
			if in.Description != "" {
				fmt.Fprintf(c.App.Writer, ": %s", in.Description)
			}
			fmt.Fprintln(c.App.Writer)
		}
		return nil
	})
}

func statsCommand(c *cli.Context) error {
	return withService(c, func(ctx context.Context, _ *config.Config, svc *medrag.Service) error {
		stats, err := svc.Stats(ctx)
		if err != nil {
			return err
		}
		printStats(c, stats)
		return nil
	})
}

func printStats(c *cli.Context, stats *core.GraphStats) {
	out := c.App.Writer
	fmt.Fprintf(out, "Documents: %d\nChunks: %d\n", stats.Documents, stats.Chunks)

	fmt.Fprintln(out, "\nNodes:")
	for _, label := range sortedKeys(stats.Labels) {
		fmt.Fprintf(out, "  %-20s %d\n", label, stats.Labels[label])
	}
	fmt.Fprintln(out, "\nRelationships:")
	for _, rel := range sortedKeys(stats.Relationships) {
		fmt.Fprintf(out, "  %-20s %d\n", rel, stats.Relationships[rel])
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func setupSchemaCommand(c *cli.Context) error {
	return withService(c, func(ctx context.Context, cfg *config.Config, svc *medrag.Service) error {
		dimension := c.Int("dimension")
		if dimension <= 0 {
			dimension = cfg.AI.EmbeddingDimension
		}
		dim, err := svc.SetupSchema(ctx, dimension)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Schema %s ready (vector dimension %d)\n", svc.Schema().Name(), dim)
		return nil
	})
}

func purgeCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("document id is required")
	}
	return withService(c, func(ctx context.Context, _ *config.Config, svc *medrag.Service) error {
		if err := svc.Purge(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Purged document %s\n", id)
		return nil
	})
}

func reembedCommand(c *cli.Context) error {
	// Create reembedding config
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	// Validate config
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	return withService(c, func(ctx context.Context, cfg *config.Config, svc *medrag.Service) error {
		reembedConfig.Dimension = cfg.AI.EmbeddingDimension

		fmt.Fprintf(c.App.ErrWriter, "Store: %s\n", cfg.Store.Backend)
		fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
		fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
		fmt.Fprintln(c.App.ErrWriter)

		if _, err := svc.Reembed(ctx, reembedConfig, c.App.ErrWriter); err != nil {
			return fmt.Errorf("reembedding failed: %w", err)
		}
		return nil
	})
}

func watchCommand(c *cli.Context) error {
	dirs := c.Args().Slice()
	if len(dirs) == 0 {
		return errors.New("at least one directory is required")
	}

	return withService(c, func(ctx context.Context, cfg *config.Config, svc *medrag.Service) error {
		if _, err := svc.SetupSchema(ctx, cfg.AI.EmbeddingDimension); err != nil {
			return fmt.Errorf("preparing store: %w", err)
		}

		w, err := svc.NewWatcher(watch.WithDebounce(c.Duration("debounce")))
		if err != nil {
			return err
		}
		defer w.Close()
		for _, dir := range dirs {
			if err := w.Add(dir); err != nil {
				return fmt.Errorf("watching %s: %w", dir, err)
			}
		}

		fmt.Fprintf(c.App.ErrWriter, "Watching %s (Ctrl-C to stop)\n", strings.Join(dirs, ", "))
		return w.Run(ctx)
	})
}

func configShowCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	return config.Dump(c.App.Writer, cfg)
}

func configInitCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		path = config.DefaultFileName
	}
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}
