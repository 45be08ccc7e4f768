package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dgellow/statusboard/internal"
	"github.com/dgellow/statusboard/internal/config"
	"github.com/dgellow/statusboard/internal/log"
	"github.com/dgellow/statusboard/internal/telemetry"
	"github.com/jessevdk/go-flags"
)

var BuildVersion = "dev"

// Options are the command line flags
type Options struct {
	Config     string `long:"config" short:"c" env:"STATUSBOARD_CONFIG" description:"Path to config file (JSON or YAML)"`
	ConfigInit string `long:"config-init" description:"Generate a default config file at the given path and exit"`
	Validate   bool   `long:"validate" description:"Validate the config file and exit"`
	LogLevel   string `long:"log-level" choice:"error" choice:"warn" choice:"info" choice:"debug" choice:"trace" description:"Log level"`
	Version    bool   `long:"version" short:"v" description:"Print version and exit"`
}

// errHelp means usage was printed and the program should exit cleanly
var errHelp = errors.New("help requested")

func parseOptions(args []string) (*Options, error) {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "[OPTIONS]"

	if _, err := parser.ParseArgs(args); err != nil {
		if flags.WroteHelp(err) {
			return nil, errHelp
		}
		return nil, err
	}
	return &opts, nil
}

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": config.SupportedVersion,
		"server": map[string]any{
			"baseURL":         "https://board.example.com",
			"addr":            ":8080",
			"shutdownTimeout": "30s",
		},
		"storage": map[string]any{
			"kind":          "sqlite",
			"path":          "./statusboard.db",
			"encryptionKey": map[string]string{"$env": "ENCRYPTION_KEY"},
		},
		"notifier": map[string]any{
			"kind": "log",
		},
		"authorization": map[string]any{
			"pollAttempts":     60,
			"pollInterval":     "1s",
			"sessionTtl":       "10m",
			"waitOnRequest":    false,
			"onRefreshFailure": "reauthorize",
		},
		"providers": map[string]any{
			"spotify": map[string]any{
				"clientId":     map[string]string{"$env": "SPOTIFY_CLIENT_ID"},
				"clientSecret": map[string]string{"$env": "SPOTIFY_CLIENT_SECRET"},
			},
			"tesla": map[string]any{
				"clientId":     map[string]string{"$env": "TESLA_CLIENT_ID"},
				"clientSecret": map[string]string{"$env": "TESLA_CLIENT_SECRET"},
				"siteId":       map[string]string{"$env": "TESLA_SITE_ID"},
			},
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(w io.Writer, path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Fprintf(w, "Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Fprintf(w, "\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			if err.Path != "" {
				fmt.Fprintf(w, "  - %s: %s\n", err.Path, err.Message)
			} else {
				fmt.Fprintf(w, "  - %s\n", err.Message)
			}
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintf(w, "\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			if warn.Path != "" {
				fmt.Fprintf(w, "  - %s: %s\n", warn.Path, warn.Message)
			} else {
				fmt.Fprintf(w, "  - %s\n", warn.Message)
			}
		}
	}

	fmt.Fprintln(w)
	switch {
	case len(result.Errors) == 0 && len(result.Warnings) == 0:
		fmt.Fprintln(w, "Result: PASS")
	case len(result.Errors) == 0:
		fmt.Fprintln(w, "Result: FAIL (warnings present)")
	default:
		fmt.Fprintln(w, "Result: FAIL")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if errors.Is(err, errHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	if opts.LogLevel != "" {
		if err := log.SetLogLevel(opts.LogLevel); err != nil {
			log.LogError("Invalid log level: %v", err)
			os.Exit(2)
		}
	}

	if opts.Version {
		fmt.Println(BuildVersion)
		return
	}

	if opts.ConfigInit != "" {
		if err := generateDefaultConfig(opts.ConfigInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", opts.ConfigInit)
		return
	}

	if opts.Config == "" {
		fmt.Fprintf(os.Stderr, "Error: --config is required\n")
		fmt.Fprintf(os.Stderr, "Run with --help for usage information\n")
		os.Exit(1)
	}

	if opts.Validate {
		if err := validateConfig(os.Stdout, opts.Config); err != nil {
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting statusboard", map[string]any{
		"version": BuildVersion,
		"config":  opts.Config,
	})

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, "statusboard", BuildVersion)
	if err != nil {
		log.LogError("Failed to set up tracing: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.LogError("Failed to flush traces: %v", err)
		}
	}()

	app, err := internal.NewStatusboard(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create statusboard: %v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.LogError("Server stopped with error: %v", err)
		os.Exit(1)
	}
}
