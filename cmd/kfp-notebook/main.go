package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/elyra-ai/kfp-notebook/internal/nodeop"
)

var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

// Create the root command
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kfp-notebook",
		Short: "Build pipeline node definitions that run notebooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("log", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	cmd.PersistentPreRun = func(c *cobra.Command, args []string) {
		levelStr, _ := c.Flags().GetString("log")
		level, err := zerolog.ParseLevel(levelStr)
		if err != nil || levelStr == "" {
			level = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(level)
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newOpCmd())
	return cmd
}

// Create the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kfp-notebook %s (%s) %s\n", version, commit, buildDate)
		},
	}
}

func parseEnv(pairs []string) (map[string]string, error) {
	env := map[string]string{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid env %q, expected KEY=VALUE", p)
		}
		env[k] = v
	}
	return env, nil
}

// Print a node definition
func newOpCmd() *cobra.Command {
	var cfg nodeop.Config
	cmd := &cobra.Command{
		Use:   "op",
		Short: "Print the container definition for a notebook node",
		RunE: func(cmd *cobra.Command, args []string) error {
			envPairs, _ := cmd.Flags().GetStringArray("env")
			env, err := parseEnv(envPairs)
			if err != nil {
				return err
			}
			if len(env) > 0 {
				cfg.Env = env
			}
			op, err := nodeop.Build(cfg)
			if err != nil {
				return err
			}
			log.Debug().Str("name", op.Name).Str("image", op.Image).Msg("built node definition")

			format, _ := cmd.Flags().GetString("format")
			w := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(op)
			case "yaml", "":
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(op)
			}
			return fmt.Errorf("unknown format %q", format)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.Name, "name", "", "operation name")
	f.StringVar(&cfg.Image, "image", "", "container image")
	f.StringVar(&cfg.Notebook, "notebook", "", "notebook or script path inside the dependency archive")
	f.StringVar(&cfg.CosEndpoint, "cos-endpoint", "", "object storage endpoint URL")
	f.StringVar(&cfg.CosBucket, "cos-bucket", "", "object storage bucket")
	f.StringVar(&cfg.CosDirectory, "cos-directory", "", "working directory in the bucket")
	f.StringVar(&cfg.CosDependenciesArchive, "cos-dependencies-archive", "", "dependency archive object name")
	f.StringArrayVar(&cfg.Inputs, "input", nil, "file consumed by the node (repeatable)")
	f.StringArrayVar(&cfg.Outputs, "output", nil, "file produced by the node (repeatable)")
	f.StringArray("env", nil, "KEY=VALUE environment variable (repeatable)")
	f.StringVar(&cfg.RequirementsURL, "requirements-url", "", "requirements file installed before the run")
	f.StringVar(&cfg.BootstrapURL, "bootstrap-url", "", "bootstrapper download URL")
	f.StringVar(&cfg.EmptyDirVolumeSize, "emptydir-volume-size", "", "size of the workspace volume, e.g. 20Gi")
	f.String("format", "yaml", "output format: yaml or json")
	return cmd
}

// Setup the logger
func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Main entry point
func main() {
	setupLogger()
	root := newRootCmd()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
