package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"arps/internal/artnet"
	"arps/internal/logging"
	"arps/internal/recfile"
	"arps/internal/recorder"
	"arps/internal/stats"
	"arps/internal/tui"
	"arps/internal/universe"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	var (
		universes string
		minutes   int
		output    string
		raw       bool
		debug     int
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record Art-Net universes to a file",
		Example: `  arps record -u 0,1,2
  arps record -u 0-3 -d 30 -o shows/
  arps record -u 5 -o show.rawrec --raw`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := parseUniverses(universes)
			if err != nil {
				return err
			}
			if minutes < 0 {
				return fmt.Errorf("duration must not be negative")
			}

			cfg := ctx.cfg
			compress := cfg.Compress && !raw
			if output == "" {
				output = cfg.OutputDir
			}
			path, err := recfile.ResolveOutput(output, compress, time.Now())
			if err != nil {
				return fmt.Errorf("resolve output: %w", err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			interactive := ctx.interactive(os.Stdout)
			var tail *logging.Tail
			if interactive {
				tail = logging.NewTail(50)
			}
			logger := ctx.logger(cmd.ErrOrStderr(), tail)

			srv, err := artnet.NewServer(artnet.ServerConfig{
				Bind:   cfg.BindAddr,
				Port:   cfg.ArtNetPort,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			defer srv.Close()

			live := universe.NewManager()
			tracker := stats.NewTracker()
			rec, err := recorder.New(srv, recorder.Config{
				Universes:    list,
				Duration:     time.Duration(minutes) * time.Minute,
				Output:       path,
				Compress:     compress,
				Timeout:      cfg.InactivityTimeout,
				MinLength:    cfg.MinLength,
				PollInterval: cfg.PollInterval,
				QueueSize:    cfg.QueueSize,
				Debug:        debug,
				Logger:       logger,
				Stats:        tracker,
				Live:         live,
			})
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(runCtx)
			defer cancel()

			session := func() (string, error) {
				res, err := rec.Run(runCtx)
				if errors.Is(err, recorder.ErrTooShort) {
					return "", fmt.Errorf("recording shorter than %s, not saved", cfg.MinLength)
				}
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Saved %s (%s, %d frames, stopped: %s)",
					res.Path, res.Duration.Round(time.Millisecond), res.Frames, res.Reason), nil
			}

			if !interactive {
				logger.Info().Msg("press Ctrl+C to stop recording")
				summary, err := session()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), summary)
				return nil
			}

			model := tui.NewRecordModel(rec.Progress, cancel, path, live, tracker, tail)
			summary, err := runProgram(model, true, cancel, session)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	cmd.Flags().StringVarP(&universes, "universes", "u", "", "Universes to record, e.g. 0,1,2 or 0-3")
	cmd.Flags().IntVarP(&minutes, "duration", "d", 0, "Duration in minutes, 0 records until stopped")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file or directory (default: ARPS_OUTPUT_DIR or the working directory)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Write an uncompressed .rawrec file")
	cmd.Flags().IntVarP(&debug, "verbose", "v", 0, "Log every Nth frame at debug level")
	_ = cmd.MarkFlagRequired("universes")

	return cmd
}
