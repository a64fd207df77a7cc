package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aluiziolira/crafthub-pricing/config"
	"github.com/jessevdk/go-flags"
)

type globalOptions struct {
	Config  string   `long:"config" description:"YAML configuration file"`
	EnvFile []string `long:"env-file" description:".env file to load (repeatable)" default:".env"`
	Verbose bool     `short:"v" long:"verbose" description:"Enable debug logging"`
}

var opts globalOptions

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.ShortDescription = "CraftHub competitor price analysis"

	mustAddCommand(parser, "analyze", "Analyze one product", "Rank competitor offers for one product and print the analysis as JSON.", &analyzeCommand{})
	mustAddCommand(parser, "batch", "Analyze a product file", "Analyze every product of a CSV or JSON file and write reports.", &batchCommand{})
	mustAddCommand(parser, "serve", "Run the HTTP API", "Serve the analysis endpoints over HTTP.", &serveCommand{})

	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		logger, level := newLogger(opts.Verbose)
		slog.SetDefault(logger)
		slog.SetLogLoggerLevel(level.Level())
		if cmd == nil {
			return nil
		}
		return cmd.Execute(args)
	}

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			os.Exit(2)
		}
		slog.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func mustAddCommand(p *flags.Parser, name, short, long string, cmd flags.Commander) {
	if _, err := p.AddCommand(name, short, long, cmd); err != nil {
		fmt.Fprintf(os.Stderr, "register command %s: %v\n", name, err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, the YAML file, .env files and PRICING_*
// variables. Command flags are applied by the caller.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.Config != "" {
		if err := cfg.LoadFile(opts.Config); err != nil {
			return nil, err
		}
	}
	if err := config.LoadDotEnv(opts.EnvFile...); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if opts.Verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	// Logs go to stderr so command output on stdout stays machine readable.
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
