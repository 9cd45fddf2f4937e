package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"secsync/internal/config"
	"secsync/internal/dbclient"
	"secsync/internal/etl"
	_ "secsync/internal/etl/sources"
	"secsync/internal/fileutil"
	"secsync/internal/ipnet"
	"secsync/internal/report"
	"secsync/internal/service"
	"secsync/internal/storage"
	"secsync/internal/warehouse"
)

func main() {
	cmd := &cli.Command{
		Name:  "secsync",
		Usage: "Security-operations data sync: vendor APIs to Postgres, plus the surrounding file and network chores",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   "config/config.yaml",
				Sources: cli.EnvVars("SECSYNC_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			syncCommand(),
			serveCommand(),
			importCommand(),
			exportCommand(),
			runsCommand(),
			sourcesCommand(),
			filesCommand(),
			netCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("secsync error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// ── Shared wiring ──────────────────────────────────────────

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg := config.NewDefaultConfig()

	// Fall back to the per-user config when the working directory has none.
	fallback := ""
	if home, err := os.UserHomeDir(); err == nil {
		fallback = filepath.Join(home, ".secsync", "config.yaml")
	}
	if err := config.LoadWithDefaults(cmd.String("config"), fallback, cfg); err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.SlogLevel(),
	}))
	slog.SetDefault(logger)

	return cfg, nil
}

func openWarehouse(ctx context.Context, cfg *config.Config) (*sql.DB, string, error) {
	section, err := config.LoadINISection(cfg.Database.INIFile, cfg.Database.INISection)
	if err != nil {
		return nil, "", err
	}
	settings, err := dbclient.FromSection(section)
	if err != nil {
		return nil, "", err
	}
	db, err := dbclient.Open(ctx, settings)
	if err != nil {
		return nil, "", err
	}
	return db, settings.Driver, nil
}

// buildService wires config, warehouse, optional archive, state store and
// engine into a ready SyncService. The returned cleanup closes them all.
func buildService(ctx context.Context, cfg *config.Config) (*service.SyncService, func(), error) {
	db, driver, err := openWarehouse(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("warehouse: %w", err)
	}
	closers := []func(){func() { db.Close() }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	writer, err := warehouse.NewWriter(db, driver)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("warehouse: %w", err)
	}

	marks := &warehouse.MarkStore{DB: db}
	if err := marks.Ensure(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("state table: %w", err)
	}

	var dest etl.Destination = writer
	if cfg.Archive.Enabled() {
		archiver, err := warehouse.NewArchiver(ctx, cfg.Archive.URI, cfg.Archive.Database)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("archive: %w", err)
		}
		closers = append(closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			archiver.Close(closeCtx)
		})
		dest = &etl.FanOut{Dests: []etl.Destination{writer, archiver}}
	}

	stateDB, err := storage.New(cfg.App.StateDB)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("state db: %w", err)
	}
	closers = append(closers, func() { stateDB.Close() })

	engine := &etl.Engine{Dest: dest, Marks: marks, Logger: slog.Default()}
	svc := service.NewSyncService(cfg, engine, storage.NewRunLogStore(stateDB), slog.Default())
	return svc, cleanup, nil
}

// ── sync / serve ───────────────────────────────────────────

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Run configured sync jobs once (all enabled jobs when none named)",
		ArgsUsage: "[job...]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			svc, cleanup, err := buildService(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			return svc.RunAll(ctx, cmd.Args().Slice())
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run until interrupted, firing jobs on their cron schedules and drop-folder events",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			svc, cleanup, err := buildService(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			slog.Info("serve starting", slog.Int("jobs", len(cfg.Jobs)))
			if err := svc.StartWatchers(sigCtx); err != nil {
				return err
			}

			// Let in-flight jobs drain before the destinations close.
			drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			svc.WaitRunning(drainCtx)
			slog.Info("serve stopped")
			return nil
		},
	}
}

// ── import csv ─────────────────────────────────────────────

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "One-off loads into the warehouse",
		Commands: []*cli.Command{
			{
				Name:      "csv",
				Usage:     "Load a CSV file into a Postgres table",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "table", Usage: "Destination table", Required: true},
					&cli.StringFlag{Name: "key", Usage: "Natural-key column", Value: "id"},
					&cli.StringFlag{Name: "guard", Usage: "Recency guard column, e.g. updated_date"},
					&cli.StringFlag{Name: "mode", Usage: "upsert, replace or append", Value: "upsert"},
					&cli.StringFlag{Name: "datetime-fields", Usage: "Comma-separated datetime columns"},
					&cli.StringFlag{Name: "delimiter", Usage: "Field delimiter", Value: ","},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("usage: secsync import csv FILE --table NAME")
					}
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					svc, cleanup, err := buildService(ctx, cfg)
					if err != nil {
						return err
					}
					defer cleanup()

					job := &etl.SyncJob{
						Name:   "import:" + filepath.Base(cmd.Args().First()),
						Source: "csv_file",
						SourceCfg: etl.SourceConfig{
							"path":      cmd.Args().First(),
							"delimiter": cmd.String("delimiter"),
						},
						Table:      cmd.String("table"),
						KeyField:   cmd.String("key"),
						GuardField: cmd.String("guard"),
						Mode:       etl.SyncMode(cmd.String("mode")),
						Enabled:    true,
					}
					if dt := cmd.String("datetime-fields"); dt != "" {
						job.SourceCfg["datetime_fields"] = dt
					}

					result, err := svc.RunJob(ctx, job)
					if err != nil {
						return err
					}
					fmt.Printf("loaded %d rows into %s (%d read)\n",
						result.RowsWritten, job.Table, result.RowsRead)
					return nil
				},
			},
		},
	}
}

// ── export excel ───────────────────────────────────────────

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Ad-hoc report extracts",
		Commands: []*cli.Command{
			{
				Name:      "excel",
				Usage:     "Fetch jobs' data and write an Excel workbook, one sheet per job",
				ArgsUsage: "[job...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "Output directory", Value: "exports"},
					&cli.IntFlag{Name: "max-rows", Usage: "Row cap per sheet", Value: 100000},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					sheets, err := fetchExportSheets(ctx, cmd)
					if err != nil {
						return err
					}
					dir, err := report.OutputDir(cmd.String("out"), time.Now())
					if err != nil {
						return err
					}
					path := filepath.Join(dir, "reports.xlsx")
					if err := report.WriteWorkbook(path, sheets); err != nil {
						return err
					}
					fmt.Printf("wrote %d sheet(s) to %s\n", len(sheets), path)
					return nil
				},
			},
			{
				Name:      "csv",
				Usage:     "Fetch jobs' data and write timestamped CSV extracts, one file per job",
				ArgsUsage: "[job...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "Output directory", Value: "exports"},
					&cli.IntFlag{Name: "max-rows", Usage: "Row cap per extract", Value: 100000},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					sheets, err := fetchExportSheets(ctx, cmd)
					if err != nil {
						return err
					}
					dir, err := report.OutputDir(cmd.String("out"), time.Now())
					if err != nil {
						return err
					}
					paths, err := report.WriteCSVExtracts(dir, sheets)
					if err != nil {
						return err
					}
					fmt.Printf("wrote %d extract(s) to %s\n", len(paths), dir)
					return nil
				},
			},
		},
	}
}

// fetchExportSheets previews every requested job's source and collects the
// rows for an ad-hoc extract. A job whose fetch fails is logged and
// skipped; only all of them failing is an error.
func fetchExportSheets(ctx context.Context, cmd *cli.Command) ([]report.Sheet, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	names := cmd.Args().Slice()
	var jobs []*etl.SyncJob
	if len(names) == 0 {
		for i := range cfg.Jobs {
			if cfg.Jobs[i].Enabled {
				jobs = append(jobs, &cfg.Jobs[i])
			}
		}
	} else {
		for _, name := range names {
			job, err := cfg.Job(name)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, job)
		}
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no jobs to export")
	}

	engine := &etl.Engine{Logger: slog.Default()}
	var sheets []report.Sheet
	for _, job := range jobs {
		if err := config.ResolveSourceSecrets(job.SourceCfg); err != nil {
			return nil, err
		}
		records, schema, err := engine.Preview(ctx, job.Source, job.SourceCfg, int(cmd.Int("max-rows")))
		if err != nil {
			slog.Error("export fetch failed",
				slog.String("job", job.Name), slog.String("error", err.Error()))
			continue
		}
		sheets = append(sheets, report.Sheet{
			Name:    job.Name,
			Schema:  *schema,
			Records: records,
		})
	}
	if len(sheets) == 0 {
		return nil, fmt.Errorf("every export fetch failed")
	}
	return sheets, nil
}

// ── sources ────────────────────────────────────────────────

func sourcesCommand() *cli.Command {
	return &cli.Command{
		Name:  "sources",
		Usage: "List the available source types and their config keys",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			specs := etl.ListSources()
			sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
			for _, spec := range specs {
				fmt.Printf("%s  (%s)\n", spec.Type, spec.Label)
				for _, f := range spec.ConfigFields {
					line := "  " + f.Key
					if f.Required {
						line += "  (required)"
					} else if f.Default != "" {
						line += "  (default: " + f.Default + ")"
					}
					if f.Help != "" {
						line += "  " + f.Help
					}
					fmt.Println(line)
				}
			}
			return nil
		},
	}
}

// ── runs ───────────────────────────────────────────────────

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Show recent sync run history",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "job", Usage: "Filter by job name"},
			&cli.IntFlag{Name: "limit", Usage: "Max rows", Value: 20},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			stateDB, err := storage.New(cfg.App.StateDB)
			if err != nil {
				return err
			}
			defer stateDB.Close()

			logs, err := storage.NewRunLogStore(stateDB).List(cmd.String("job"), int(cmd.Int("limit")))
			if err != nil {
				return err
			}
			for _, l := range logs {
				line := fmt.Sprintf("%s  %-20s %-7s read=%d written=%d took=%s",
					l.StartedAt.Format(time.RFC3339), l.Job, l.Status,
					l.RowsRead, l.RowsWritten,
					l.FinishedAt.Sub(l.StartedAt).Round(time.Second))
				if l.Error != "" {
					line += "  error=" + l.Error
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

// ── files ──────────────────────────────────────────────────

func filesCommand() *cli.Command {
	return &cli.Command{
		Name:  "files",
		Usage: "Bulk file utilities",
		Commands: []*cli.Command{
			{
				Name:      "copy",
				Usage:     "Copy a directory tree with progress and a failure summary",
				ArgsUsage: "SRC DST",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 2 {
						return fmt.Errorf("usage: secsync files copy SRC DST")
					}
					res, err := fileutil.CopyTree(cmd.Args().Get(0), cmd.Args().Get(1), slog.Default())
					if err != nil {
						return err
					}
					fmt.Printf("copied %d file(s), %s\n", res.Copied, fileutil.HumanSize(res.TotalBytes))
					if len(res.Failed) > 0 {
						fmt.Printf("failed %d file(s):\n", len(res.Failed))
						for _, f := range res.Failed {
							fmt.Println("  " + f)
						}
					}
					return nil
				},
			},
			{
				Name:      "photos",
				Usage:     "Sort photos and videos into YYYY/MM folders by capture date",
				ArgsUsage: "DIR",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("usage: secsync files photos DIR")
					}
					res, err := fileutil.OrganizePhotos(cmd.Args().First(), slog.Default())
					if err != nil {
						return err
					}
					fmt.Printf("moved %d, skipped %d, pruned %d empty dir(s)\n",
						res.Moved, res.Skipped, res.PrunedDirs)
					return nil
				},
			},
		},
	}
}

// ── net ────────────────────────────────────────────────────

func netCommand() *cli.Command {
	return &cli.Command{
		Name:  "net",
		Usage: "IPv4 helpers",
		Commands: []*cli.Command{
			{
				Name:      "expand",
				Usage:     "Expand A.B.C.D-W.X.Y.Z ranges to one IP per line",
				ArgsUsage: "RANGES",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "Write to file instead of stdout"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() == 0 {
						return fmt.Errorf("usage: secsync net expand RANGES")
					}
					ips, err := ipnet.ExpandRanges(strings.Join(cmd.Args().Slice(), ","))
					if err != nil {
						return err
					}
					out := strings.Join(ips, "\n") + "\n"
					if path := cmd.String("out"); path != "" {
						return os.WriteFile(path, []byte(out), 0o644)
					}
					fmt.Print(out)
					return nil
				},
			},
			{
				Name:      "mask",
				Usage:     "CIDR to dotted-quad subnet mask",
				ArgsUsage: "[CIDR]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "excel", Usage: "Workbook to process in batch mode"},
					&cli.StringFlag{Name: "sheet", Usage: "Sheet name (default: first sheet)"},
					&cli.StringFlag{Name: "column", Usage: "CIDR column letter", Value: "A"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if path := cmd.String("excel"); path != "" {
						n, err := report.AddMaskColumn(path, cmd.String("sheet"), cmd.String("column"))
						if err != nil {
							return err
						}
						fmt.Printf("wrote %d mask(s) to %s\n", n, path)
						return nil
					}
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("usage: secsync net mask CIDR (or --excel FILE)")
					}
					mask, err := ipnet.MaskFromCIDR(cmd.Args().First())
					if err != nil {
						return err
					}
					fmt.Println(mask)
					return nil
				},
			},
		},
	}
}
