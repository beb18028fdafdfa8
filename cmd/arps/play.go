package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"arps/internal/logging"
	"arps/internal/player"
	"arps/internal/tui"
)

func newPlayCommand(ctx *commandContext) *cobra.Command {
	var (
		address   string
		input     string
		loop      bool
		broadcast bool
		debug     int
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Replay a recording or a directory of recordings",
		Example: `  arps play -a 10.0.0.5 -i show.artrec
  arps play -a 2.255.255.255 --broadcast -i shows/ -l`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.cfg

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			runCtx, cancel := context.WithCancel(runCtx)
			defer cancel()

			interactive := ctx.interactive(os.Stdout)
			var tail *logging.Tail
			if interactive {
				tail = logging.NewTail(50)
			}
			logger := ctx.logger(cmd.ErrOrStderr(), tail)

			p, err := player.New(player.Config{
				IP:        address,
				Port:      cfg.ArtNetPort,
				Broadcast: broadcast,
				Path:      input,
				Loop:      loop,
				Debug:     debug,
				Slack:     cfg.DriftSlack,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			defer p.Close()

			session := func() (string, error) {
				if err := p.Run(runCtx); err != nil {
					return "", err
				}
				pr := p.Progress()
				return fmt.Sprintf("Playback %s, %d frames sent", pr.State, pr.Sent), nil
			}

			if !interactive {
				logger.Info().Int("files", len(p.Playlist())).Str("target", address).Msg("playback started")
				summary, err := session()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), summary)
				return nil
			}

			target := net.JoinHostPort(address, strconv.Itoa(cfg.ArtNetPort))
			model := tui.NewPlayModel(p.Progress, cancel, target, tail)
			summary, err := runProgram(model, false, cancel, session)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "IP of the Art-Net destination, e.g. 10.0.0.5")
	cmd.Flags().StringVarP(&input, "input", "i", "", "Recording file or directory of recordings")
	cmd.Flags().BoolVarP(&loop, "loop", "l", false, "Shuffle the playlist and repeat until stopped")
	cmd.Flags().BoolVar(&broadcast, "broadcast", false, "Allow a broadcast destination address")
	cmd.Flags().IntVarP(&debug, "verbose", "v", 0, "Log every Nth frame at debug level")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}
