// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/medrag/config"
	"github.com/poiesic/medrag/reembed"
	"github.com/poiesic/medrag/watch"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "medrag",
		Usage: "Medical knowledge graph retrieval for language models",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file (default ./medrag.yaml or ~/.config/medrag/medrag.yaml)",
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "Load environment variables from `FILE` before reading config",
				Value: cli.NewStringSlice(".env"),
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest text or markdown files, directories or literal text",
				ArgsUsage: "[path...]",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "text",
						Usage: "Ingest this text instead of files",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name for --text documents",
					},
					&cli.BoolFlag{
						Name:  "no-extract",
						Usage: "Store chunks without entity extraction",
					},
					&cli.IntFlag{
						Name:  "budget",
						Usage: "Maximum chunks per document sent for extraction (negative for all, 0 uses config)",
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Retrieve the fused context for a query",
				ArgsUsage: "<query>",
				Action:    queryCommand,
				Flags:     append(retrievalFlags(), &cli.BoolFlag{Name: "explain", Usage: "Print what each retrieval channel returned"}),
			},
			{
				Name:      "answer",
				Usage:     "Answer a question from retrieved context",
				ArgsUsage: "<question>",
				Action:    answerCommand,
				Flags:     retrievalFlags(),
			},
			{
				Name:      "conditions",
				Usage:     "Rank diseases linked to the given symptoms",
				ArgsUsage: "<symptom...>",
				Action:    conditionsCommand,
			},
			{
				Name:      "interactions",
				Usage:     "Check a list of drugs for known interactions",
				ArgsUsage: "<drug> <drug...>",
				Action:    interactionsCommand,
			},
			{
				Name:   "stats",
				Usage:  "Show node and relationship counts",
				Action: statsCommand,
			},
			{
				Name:   "setup-schema",
				Usage:  "Create constraints and indexes in the graph store",
				Action: setupSchemaCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "dimension",
						Usage: "Vector dimension (0 uses config, or probes the embedder)",
					},
				},
			},
			{
				Name:      "purge",
				Usage:     "Delete a document and its chunks",
				ArgsUsage: "<document-id>",
				Action:    purgeCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Recompute all chunk embeddings with the configured model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: reembed.DefaultConfig().BatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: reembed.DefaultConfig().ReportInterval,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: reembed.DefaultConfig().MaxRetries,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: reembed.DefaultConfig().RetryDelay,
					},
				},
			},
			{
				Name:      "watch",
				Usage:     "Ingest files as they are created or modified",
				ArgsUsage: "<dir...>",
				Action:    watchCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "debounce",
						Usage: "Quiet period before a changed file is ingested",
						Value: watch.DefaultDebounce,
					},
				},
			},
			{
				Name:  "config",
				Usage: "Inspect or create configuration",
				Subcommands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "Print the effective configuration with secrets masked",
						Action: configShowCommand,
					},
					{
						Name:      "init",
						Usage:     "Write the default configuration to a file",
						ArgsUsage: "[path]",
						Action:    configInitCommand,
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
						},
					},
				},
			},
		},
	}
}

func retrievalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "top-k",
			Usage: "Number of chunks to return (0 uses config)",
		},
		&cli.BoolFlag{
			Name:  "no-entities",
			Usage: "Skip entity search",
		},
		&cli.BoolFlag{
			Name:  "no-graph",
			Usage: "Skip graph traversal",
		},
	}
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// loadConfig reads .env files and the config file named by the global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if err := config.LoadEnv(c.StringSlice("env-file")...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func elapsed(start time.Time) time.Duration {
	return time.Since(start).Round(time.Millisecond)
}
