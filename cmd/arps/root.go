package main

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"arps/internal/config"
	"arps/internal/logging"
)

// commandContext carries the configuration shared by all subcommands
type commandContext struct {
	envFile   string
	logLevel  string
	logFormat string
	plain     bool

	cfg *config.Config
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "arps",
		Short:         "Art-Net record and playback",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.envFile, "env", ".env", "Environment file to load")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&ctx.logFormat, "log-format", "", "Log format (console, text, json)")
	rootCmd.PersistentFlags().BoolVar(&ctx.plain, "plain", false, "Disable the interactive progress view")

	rootCmd.AddCommand(newRecordCommand(ctx))
	rootCmd.AddCommand(newPlayCommand(ctx))
	rootCmd.AddCommand(newInfoCommand(ctx))

	return rootCmd
}

// load reads the env file, if any, then the configuration
func (c *commandContext) load() error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	c.cfg = config.Load()
	if c.logLevel != "" {
		c.cfg.LogLevel = c.logLevel
	}
	if c.logFormat != "" {
		c.cfg.LogFormat = c.logFormat
	}
	return nil
}

// interactive reports whether the progress view should take over the terminal
func (c *commandContext) interactive(out io.Writer) bool {
	return !c.plain && logging.IsTerminal(out)
}

// logger writes to out; with a tail the output is plain text for the
// progress view to show
func (c *commandContext) logger(out io.Writer, tail *logging.Tail) zerolog.Logger {
	if tail != nil {
		return logging.New(logging.Config{Level: c.cfg.LogLevel, Format: "text", Output: tail})
	}
	if out == nil {
		out = os.Stderr
	}
	return logging.New(logging.Config{Level: c.cfg.LogLevel, Format: c.cfg.LogFormat, Output: out})
}
