package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	core "github.com/elyra-ai/kfp-notebook/internal/core"
	"github.com/elyra-ai/kfp-notebook/pkg/api"
)

var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

// Create the root command
func newRootCmd() *cobra.Command {
	var params core.RunParameters
	cmd := &cobra.Command{
		Use:   "bootstrapper",
		Short: "Run a notebook or python script as a pipeline node",
		Long: "bootstrapper stages a node's dependencies from object storage, executes the notebook or script, " +
			"uploads its results and declared outputs, and writes the pipeline UI metadata.",
		Version: fmt.Sprintf("%s (%s) %s", version, commit, buildDate),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := params.Validate(); err != nil {
				return err
			}
			cfgPath, _ := cmd.Flags().GetString("config")
			settings, err := core.LoadSettings(cfgPath)
			if err != nil {
				return err
			}
			if err := settings.OutputDirWritable(); err != nil {
				log.Warn().Err(err).Msg("metadata output directory is not writable")
			}
			creds, err := core.LoadCredentials(settings.CredentialsFile)
			if err != nil {
				return err
			}
			runner := &core.Runner{
				Params:      params,
				Settings:    settings,
				Credentials: creds,
				Logger:      log.Logger,
			}
			start := time.Now()
			out := runner.Run(cmd.Context())
			if out.Failed() {
				return out.Err
			}
			log.Info().Dur("duration", time.Since(start)).Int("uploads", len(out.Uploaded())).Msg("node completed")
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("log", "l", "info", "Set log level. Available: trace, debug, info, warn, error, fatal")
	cmd.PersistentFlags().String("config", "", "settings file (default $KFP_NOTEBOOK_CONFIG or $XDG_CONFIG_HOME/kfp-notebook/config.yaml)")

	f := cmd.Flags()
	f.StringVarP(&params.Endpoint, "cos-endpoint", "e", "", "object storage endpoint URL")
	f.StringVarP(&params.Bucket, "cos-bucket", "b", "", "object storage bucket")
	f.StringVarP(&params.Directory, "cos-directory", "d", "", "working directory in the bucket")
	f.StringVarP(&params.Archive, "cos-dependencies-archive", "t", "", "dependency archive object name")
	f.StringVarP(&params.File, "file", "f", "", "notebook or python script to execute")
	f.StringVarP(&params.Outputs, "outputs", "o", "", "files to upload after execution, separated by "+api.Separator)
	f.StringVarP(&params.Inputs, "inputs", "i", "", "files to download before execution, separated by "+api.Separator)
	f.StringVarP(&params.UserVolumePath, "user-volume-path", "p", "", "directory packages are installed into")
	for _, name := range []string{"cos-endpoint", "cos-bucket", "cos-directory", "cos-dependencies-archive", "file"} {
		_ = cmd.MarkFlagRequired(name)
	}

	cmd.PersistentPreRun = func(c *cobra.Command, args []string) {
		levelStr, _ := c.Flags().GetString("log")
		level, err := zerolog.ParseLevel(levelStr)
		if err != nil || levelStr == "" {
			level = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(level)
	}
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
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("node failed")
		cancel()
		os.Exit(1)
	}
}
