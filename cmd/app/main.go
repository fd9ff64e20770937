package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/ansuz/internal"
	"github.com/starford/ansuz/internal/adapter"
	"github.com/starford/ansuz/internal/engine"
	pkgconfig "github.com/starford/ansuz/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if repo := cmd.String("repo"); repo != "" {
		cfg.Sync.Platform = internal.PlatformGitHub
		cfg.GitHub.Repo = repo
	}
	return cfg, nil
}

// oneShot builds a stack for a single CLI command and tears it down after fn.
func oneShot(cmd *cli.Command, fn func(*internal.Stack) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	stack, err := internal.NewStack(cfg, internal.NewLogger(cfg), false)
	if err != nil {
		return err
	}
	defer stack.Close()
	return fn(stack)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func scan(ctx context.Context, cmd *cli.Command) error {
	return oneShot(cmd, func(s *internal.Stack) error {
		docs, err := s.Scanner.ScanAll()
		if err != nil {
			return err
		}
		for _, doc := range docs {
			id := ""
			if c := doc.Canonical(); c != nil {
				id = c.Meta.SpecID
			}
			fmt.Printf("%s\t%s\n", doc.Name, id)
		}
		return nil
	})
}

func status(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: status <name>")
	}
	return oneShot(cmd, func(s *internal.Stack) error {
		st, err := s.Engine.GetStatus(ctx, name)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", name, st.State)
		if st.Remote != nil {
			fmt.Printf("  remote: %s %s\n", st.Remote.ID, st.Remote.URL)
		}
		if st.LastSync != "" {
			fmt.Printf("  last sync: %s\n", st.LastSync)
		}
		for _, c := range st.Conflicts {
			fmt.Printf("  conflict: %s\n", c)
		}
		return nil
	})
}

func syncOpts(cmd *cli.Command) engine.Options {
	return engine.Options{
		Force:    cmd.Bool("force"),
		Strategy: adapter.Strategy(cmd.String("strategy")),
		Subtasks: cmd.Bool("subtasks"),
	}
}

func sync(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	all := cmd.Bool("all")
	if name == "" && !all {
		return fmt.Errorf("usage: sync <name> (or sync --all)")
	}
	return oneShot(cmd, func(s *internal.Stack) error {
		if !all {
			res, err := s.Engine.SyncOne(ctx, name, syncOpts(cmd))
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", res.Name, res.Action)
			return nil
		}

		summary, err := s.Engine.SyncAll(ctx, syncOpts(cmd))
		if err != nil {
			return err
		}
		for _, res := range summary.Results {
			line := fmt.Sprintf("%s: %s", res.Name, res.Action)
			if res.Detail != "" {
				line += " (" + res.Detail + ")"
			}
			fmt.Println(line)
		}
		fmt.Printf("created %d, updated %d, skipped %d, errors %d\n",
			summary.Created, summary.Updated, summary.Skipped, summary.Errors)
		if !summary.OK() {
			return fmt.Errorf("%d document(s) failed to sync", summary.Errors)
		}
		return nil
	})
}

func dryRun(ctx context.Context, cmd *cli.Command) error {
	return oneShot(cmd, func(s *internal.Stack) error {
		if name := cmd.Args().First(); name != "" {
			res, err := s.Engine.DryRun(ctx, name, syncOpts(cmd))
			if err != nil {
				return err
			}
			fmt.Printf("%s: would %s\n", res.Name, res.Action)
			return nil
		}
		results, err := s.Engine.DryRunAll(ctx, syncOpts(cmd))
		if err != nil {
			return err
		}
		for _, res := range results {
			fmt.Printf("%s: would %s\n", res.Name, res.Action)
		}
		return nil
	})
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(cfg)
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}
	repoFlag := &cli.StringFlag{
		Name:    "repo",
		Usage:   "GitHub repository (owner/name); overrides the configured platform",
		Sources: cli.EnvVars("ANSUZ_REPO"),
	}
	forceFlag := &cli.BoolFlag{Name: "force", Usage: "Override identity mismatches and change detection"}
	strategyFlag := &cli.StringFlag{Name: "strategy", Usage: "Conflict strategy: ours, theirs, or manual"}
	subtasksFlag := &cli.BoolFlag{Name: "subtasks", Usage: "Also push sub-documents as subtask records"}

	cmd := &cli.Command{
		Name:  "ansuz",
		Usage: "Keep local Markdown spec directories in sync with remote issue-tracker records",
		Flags: []cli.Flag{configFlag, repoFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (and the auto-sync watcher when enabled)",
				Action: serve,
			},
			{
				Name:   "scan",
				Usage:  "Scan the specs root and assign missing identities",
				Action: scan,
			},
			{
				Name:      "status",
				Usage:     "Classify one document against its remote record",
				ArgsUsage: "<name>",
				Action:    status,
			},
			{
				Name:      "sync",
				Usage:     "Push one document (or --all) to the remote platform",
				ArgsUsage: "[name]",
				Flags:     []cli.Flag{forceFlag, strategyFlag, subtasksFlag, &cli.BoolFlag{Name: "all", Usage: "Sync every document"}},
				Action:    sync,
			},
			{
				Name:      "dry-run",
				Usage:     "Predict what sync would do without touching anything",
				ArgsUsage: "[name]",
				Flags:     []cli.Flag{forceFlag, strategyFlag},
				Action:    dryRun,
			},
			{
				Name:   "mcp",
				Usage:  "Run the MCP server on stdin/stdout",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
