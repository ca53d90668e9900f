package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"deltaframe/internal/config"
	"deltaframe/internal/dataframe"
	"deltaframe/internal/delta"
	"deltaframe/internal/logging"
	"deltaframe/internal/predicate"
	"deltaframe/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := App().Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func App() *cli.Command {
	return &cli.Command{
		Name:  "deltaframe",
		Usage: "inspect and read Delta Lake tables",
		Commands: []*cli.Command{
			readCMD(),
			filesCMD(),
			historyCMD(),
		},
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "path to a deltaframe YAML config holding storage credentials",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error",
			Value: "warn",
		},
	}
}

func selectionFlags() []cli.Flag {
	return append(commonFlags(),
		&cli.StringFlag{
			Name:  "version",
			Usage: "table version to read, latest when empty",
		},
		&cli.StringFlag{
			Name:  "checkpoint",
			Usage: "checkpoint version to start replay from",
		},
		&cli.StringFlag{
			Name:  "timestamp",
			Usage: "RFC3339 instant; reads the newest version committed at or before it",
		},
		&cli.StringFlag{
			Name:  "filter",
			Usage: `JSON filter such as '[["col1", "==", 1]]'`,
		},
		&cli.StringFlag{
			Name:  "columns",
			Usage: "comma separated output columns",
		},
	)
}

func readCMD() *cli.Command {
	return &cli.Command{
		Name:      "read",
		Usage:     "Prints rows of a table version as JSON lines or writes them to a Parquet file",
		ArgsUsage: "<location>",
		Flags: append(selectionFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "maximum number of rows to print, 0 for all",
				Value: 20,
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "write every selected row to this local Parquet file instead of printing",
			},
		),
		Action: func(c *cli.Context) error {
			resolver, location, err := setup(c)
			if err != nil {
				return err
			}
			opts, err := selection(c)
			if err != nil {
				return err
			}

			frame, err := resolver.Resolve(c.Context, location, opts)
			if err != nil {
				return err
			}
			if out := c.String("out"); out != "" {
				return frame.WriteParquet(c.Context, out)
			}

			var table *dataframe.Table
			if limit := int(c.Int("limit")); limit > 0 {
				table, err = frame.Head(c.Context, limit)
			} else {
				table, err = frame.Compute(c.Context)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			for _, record := range table.Records() {
				if err := enc.Encode(record); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func filesCMD() *cli.Command {
	return &cli.Command{
		Name:      "files",
		Usage:     "Prints the live data files of a table version",
		ArgsUsage: "<location>",
		Flags:     selectionFlags(),
		Action: func(c *cli.Context) error {
			resolver, location, err := setup(c)
			if err != nil {
				return err
			}
			opts, err := selection(c)
			if err != nil {
				return err
			}

			set, err := resolver.ResolveFiles(c.Context, location, opts)
			if err != nil {
				return err
			}
			return printJSON(set)
		},
	}
}

func historyCMD() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Prints the commits of a table, newest first",
		ArgsUsage: "<location>",
		Flags: append(commonFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "maximum number of commits, 0 for all",
			},
		),
		Action: func(c *cli.Context) error {
			resolver, location, err := setup(c)
			if err != nil {
				return err
			}

			commits, err := resolver.History(c.Context, location, int(c.Int("limit")))
			if err != nil {
				return err
			}
			return printJSON(commits)
		},
	}
}

// setup loads storage configuration and returns a resolver and the
// location argument
func setup(c *cli.Context) (*delta.Resolver, string, error) {
	location := c.Args().First()
	if location == "" {
		return nil, "", fmt.Errorf("missing table location argument")
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, "", err
	}
	if err := logging.Init(c.String("log-level"), "console"); err != nil {
		return nil, "", err
	}

	resolver := delta.NewResolver(storage.NewRegistryFromConfig(cfg.Storage),
		delta.WithLogger(logging.GetLogger("delta")),
		delta.WithConcurrency(cfg.Reader.Concurrency),
		delta.WithBatchSize(cfg.Reader.BatchSize),
	)
	logging.GetLogger("cli").Debug("Resolving table", zap.String("location", location))
	return resolver, location, nil
}

func selection(c *cli.Context) (delta.Options, error) {
	var opts delta.Options
	var err error

	if opts.Version, err = optionalInt(c.String("version")); err != nil {
		return opts, fmt.Errorf("invalid --version: %w", err)
	}
	if opts.Checkpoint, err = optionalInt(c.String("checkpoint")); err != nil {
		return opts, fmt.Errorf("invalid --checkpoint: %w", err)
	}
	if raw := c.String("timestamp"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, fmt.Errorf("invalid --timestamp: %w", err)
		}
		opts.Timestamp = &ts
	}
	if opts.Filter, err = predicate.ParseJSON([]byte(c.String("filter"))); err != nil {
		return opts, err
	}
	if raw := c.String("columns"); raw != "" {
		for _, column := range strings.Split(raw, ",") {
			opts.Columns = append(opts.Columns, strings.TrimSpace(column))
		}
	}
	return opts, nil
}

func optionalInt(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
