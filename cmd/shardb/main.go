package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/tuannm99/shardb/internal/command/executor"
	"github.com/tuannm99/shardb/internal/config"
	"github.com/tuannm99/shardb/internal/engine"
	"github.com/tuannm99/shardb/internal/heap"
	"github.com/tuannm99/shardb/internal/logging"
)

// flag name -> config key
var flagKeys = map[string]string{
	"root":           "storage.root",
	"max-shard-size": "storage.max_shard_size",
	"temp-dir":       "storage.temp_dir",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"history":        "shell.history",
	"history-max":    "shell.history_max",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("shardb", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		cfgPath = flags.String("config", "", "config file (yaml, toml or json)")
		oneShot = flags.StringP("command", "c", "", "execute one command and exit")
	)
	flags.String("root", "", "database root directory")
	flags.String("max-shard-size", "", `shard size cap, e.g. "1GiB" or "64MB"`)
	flags.String("temp-dir", "", "directory for join intermediates")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "text or json")
	flags.String("history", "", "history file path")
	flags.Int("history-max", 0, "max history lines loaded into memory")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := loadConfig(*cfgPath, flags)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if err := logging.Setup(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, stderr); err != nil {
		_, _ = fmt.Fprintf(stderr, "logging: %v\n", err)
		return 1
	}

	db, err := openDB(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "open database: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	ex := executor.New(db, stdout)

	if strings.TrimSpace(*oneShot) != "" {
		if err := ex.Exec(ctx, *oneShot); err != nil {
			_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}

	h := NewHistory(afero.NewOsFs(), cfg.Shell.History)
	_ = h.Load(cfg.Shell.HistoryMax)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cfg.Shell.Prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          stdout,
		Stderr:          stderr,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "readline: %v\n", err)
		return 1
	}
	defer func() { _ = rl.Close() }()

	// preload so the up arrow works immediately
	for _, line := range h.Lines() {
		_ = rl.SaveHistory(line)
	}

	_, _ = fmt.Fprintf(stdout, "%s on %s, type help for commands\n", cfg.AppName, db.Root())
	repl(ctx, rl, ex, h, stdout)
	return 0
}

func loadConfig(path string, flags *pflag.FlagSet) (*config.ShardbConfig, error) {
	v := config.New()
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return config.Decode(v)
}

func openDB(cfg *config.ShardbConfig) (*engine.DBManager, error) {
	maxShard, err := cfg.MaxShardBytes()
	if err != nil {
		return nil, err
	}
	return engine.Open(engine.Options{
		Root: cfg.Storage.Root,
		Table: heap.Options{
			MaxShardSize:         maxShard,
			TempDir:              cfg.Storage.TempDir,
			MergeSkipLeadingLine: cfg.Join.MergeSkipLeadingLine,
			MaxJoinWorkers:       cfg.Join.MaxWorkers,
		},
	})
}

// lineReader is the part of *readline.Instance the loop needs.
type lineReader interface {
	Readline() (string, error)
	SaveHistory(content string) error
}

// repl reads commands until EOF, exit or quit. Command errors are printed
// and the loop continues.
func repl(ctx context.Context, rl lineReader, ex *executor.Executor, h *History, out io.Writer) {
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			_, _ = fmt.Fprintln(out)
			return
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit", "quit":
			return
		case "history":
			h.Print(out, 50)
			continue
		}

		_ = h.Append(line)
		_ = rl.SaveHistory(compactOneLine(line))

		if err := ex.Exec(ctx, line); err != nil {
			_, _ = fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

var _ lineReader = (*readline.Instance)(nil)
