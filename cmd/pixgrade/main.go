package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/pixgrade/internal"
	"github.com/starford/pixgrade/internal/apperr"
	pkgconfig "github.com/starford/pixgrade/pkg/config"
)

const version = "0.3.0"

// loadConfig reads the config file (if present) and applies the global
// flag overrides.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cmd.IsSet("log-level") {
		if err := cfg.App.LogLevel.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
	}
	if cmd.IsSet("log-format") {
		cfg.App.LogFormat = cmd.String("log-format")
	}
	return cfg, cfg.Validate()
}

// args returns exactly n positional arguments or a usage error.
func args(cmd *cli.Command, names ...string) ([]string, error) {
	if cmd.Args().Len() != len(names) {
		return nil, fmt.Errorf("%s: expected arguments %v: %w", cmd.Name, names, apperr.ErrMissingInput)
	}
	out := make([]string, len(names))
	for i := range names {
		out[i] = cmd.Args().Get(i)
	}
	return out, nil
}

func runGrade(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, "ref_dir", "submissions_dir", "reference_csv", "output_csv")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("tolerance") {
		cfg.Grading.Tolerance = cmd.Float("tolerance")
	}
	if cmd.IsSet("workers") {
		n, err := strconv.Atoi(cmd.String("workers"))
		if err != nil {
			return fmt.Errorf("invalid --workers: %w", err)
		}
		cfg.Grading.Workers = n
	}
	if cmd.Bool("write-error-images") {
		cfg.Grading.WriteErrorImages = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return internal.RunGrade(ctx, internal.GradeArgs{
		RefDir:         a[0],
		SubmissionsDir: a[1],
		SheetPath:      a[2],
		OutputPath:     a[3],
	}, internal.WithConfig(cfg))
}

func runView(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, "ref_dir", "submissions_dir")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("host") {
		cfg.App.HTTP.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		port, err := strconv.Atoi(cmd.String("port"))
		if err != nil {
			return fmt.Errorf("invalid --port: %w", err)
		}
		cfg.App.HTTP.Port = port
	}
	if cmd.Bool("no-watch") {
		cfg.Viewer.Watch = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return internal.RunView(ctx, internal.ViewArgs{
		RefDir:         a[0],
		SubmissionsDir: a[1],
		Student:        cmd.String("student"),
	}, internal.WithConfig(cfg))
}

func runExtract(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, "submissions_zip", "output_folder")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunExtract(ctx, a[0], a[1], cmd.Bool("verbose"), internal.WithConfig(cfg))
}

func runFindCustom(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, "submissions_dir", "output_dir")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunFindCustom(ctx, a[0], a[1], cmd.String("pattern"), internal.WithConfig(cfg))
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, "ref_dir", "submissions_dir")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, a[0], a[1], version, internal.WithConfig(cfg))
}

func main() {
	cmd := &cli.Command{
		Name:    "pixgrade",
		Usage:   "Grade image-producing homework against reference images",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("PIXGRADE_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Sources: cli.EnvVars("PIXGRADE_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Sources: cli.EnvVars("PIXGRADE_LOG_FORMAT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "grade",
				Usage:     "Compare all submissions and fill in the score sheet",
				ArgsUsage: "<ref_dir> <submissions_dir> <reference_csv> <output_csv>",
				Action:    runGrade,
				Flags: []cli.Flag{
					&cli.FloatFlag{
						Name:  "tolerance",
						Usage: "Max abs pixel difference below which an image passes",
						Value: 1,
					},
					&cli.StringFlag{
						Name:  "workers",
						Usage: "Number of students graded in parallel (default: CPU count)",
					},
					&cli.BoolFlag{
						Name:  "write-error-images",
						Usage: "Store an error image next to every compared submission",
					},
				},
			},
			{
				Name:      "view",
				Usage:     "Inspect submissions interactively in the browser",
				ArgsUsage: "<ref_dir> <submissions_dir>",
				Action:    runView,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "student",
						Usage: "Start at a student subfolder name or index",
					},
					&cli.StringFlag{
						Name:    "host",
						Usage:   "HTTP listen host",
						Sources: cli.EnvVars("PIXGRADE_HTTP_HOST"),
					},
					&cli.StringFlag{
						Name:    "port",
						Usage:   "HTTP listen port",
						Sources: cli.EnvVars("PIXGRADE_HTTP_PORT"),
					},
					&cli.BoolFlag{
						Name:  "no-watch",
						Usage: "Do not reload when submission files change",
					},
				},
			},
			{
				Name:      "extract",
				Usage:     "Unpack a Canvas submissions archive into student folders",
				ArgsUsage: "<submissions_zip> <output_folder>",
				Action:    runExtract,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "verbose",
						Usage: "Print the names of extracted files",
					},
				},
			},
			{
				Name:      "find-custom",
				Usage:     "Copy every student's custom image into one folder",
				ArgsUsage: "<submissions_dir> <output_dir>",
				Action:    runFindCustom,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "pattern",
						Usage: "File name wildcard of the custom image",
						Value: "*1_7*.png",
					},
				},
			},
			{
				Name:      "mcp",
				Usage:     "Serve grading inspection tools over MCP stdio",
				ArgsUsage: "<ref_dir> <submissions_dir>",
				Action:    runMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
