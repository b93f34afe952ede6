package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/bladelsp/internal/config"
	"github.com/standardbeagle/bladelsp/internal/debug"
	"github.com/standardbeagle/bladelsp/internal/engine"
	"github.com/standardbeagle/bladelsp/internal/version"
)

var cleanupFuncs []func()

func main() {
	app := newApp()
	err := app.Run(os.Args)
	runCleanup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "bladelsp",
		Usage:                  "Incremental Blade and PHP pattern extraction for Laravel projects",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (.kdl or .toml)",
				Value:   config.DefaultConfigFile,
			},
			&cli.BoolFlag{
				Name:  "debug-log",
				Usage: "Write debug output to a file under the system temp directory",
			},
		},
		Before: func(c *cli.Context) error {
			if !c.Bool("debug-log") {
				return nil
			}
			path, err := debug.InitDebugLogFile()
			if err != nil {
				return err
			}
			debug.EnableDebug = "true"
			fmt.Fprintf(c.App.ErrWriter, "Debug log: %s\n", path)
			cleanupFuncs = append(cleanupFuncs, func() { _ = debug.CloseDebugLog() })
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "analyze",
				Aliases:   []string{"a"},
				Usage:     "Extract patterns from files and print facts, outcome and diagnostics",
				ArgsUsage: "FILE...",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: analyzeCommand,
			},
			{
				Name:      "hover",
				Usage:     "Print the hover answer at a 0-based line and column",
				ArgsUsage: "FILE LINE COL",
				Action:    hoverCommand,
			},
			{
				Name:      "watch",
				Aliases:   []string{"w"},
				Usage:     "Watch a directory and keep patterns current",
				ArgsUsage: "DIR",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Serve Prometheus metrics on this address (e.g. :9464)",
					},
				},
				Action: watchCommand,
			},
			{
				Name:  "version",
				Usage: "Print build information",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print build information as JSON"},
				},
				Action: func(c *cli.Context) error {
					if c.Bool("json") {
						return json.NewEncoder(c.App.Writer).Encode(version.Info())
					}
					fmt.Fprintf(c.App.Writer, "%s\nbuild: %s\n", version.FullInfo(), version.BuildID())
					return nil
				},
			},
		},
	}
}

func runCleanup() {
	for i := len(cleanupFuncs) - 1; i >= 0; i-- {
		cleanupFuncs[i]()
	}
	cleanupFuncs = nil
}

// loadConfig reads the --config file. The default path may be absent.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return cfg, nil
}

func newEngine(c *cli.Context) (*engine.Engine, *config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	e, err := engine.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return e, cfg, nil
}
