package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"arps/internal/player"
	"arps/internal/recfile"
)

// recordingInfo is the yaml shape of one inspected file
type recordingInfo struct {
	Path      string `yaml:"path"`
	Universes []int  `yaml:"universes,omitempty"`
	Duration  string `yaml:"duration,omitempty"`
	Frames    int    `yaml:"frames"`
	Bytes     int64  `yaml:"bytes"`
	Error     string `yaml:"error,omitempty"`
}

func newInfoCommand(_ *commandContext) *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "info <file|dir>...",
		Short: "Show universes, duration and frame count of recordings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var paths []string
			for _, arg := range args {
				st, err := os.Stat(arg)
				if err != nil {
					return err
				}
				if !st.IsDir() {
					paths = append(paths, arg)
					continue
				}
				files, err := recfile.Playlist(arg)
				if err != nil {
					return err
				}
				paths = append(paths, files...)
			}

			infos := make([]recordingInfo, 0, len(paths))
			failed := 0
			for _, path := range paths {
				ri := recordingInfo{Path: path}
				info, err := player.Inspect(path)
				if err != nil {
					ri.Error = err.Error()
					failed++
				}
				ri.Bytes = info.Bytes
				ri.Frames = info.Frames
				ri.Universes = info.Footer.Universes
				if info.Footer.Duration > 0 {
					ri.Duration = info.Footer.Duration.Round(time.Millisecond).String()
				}
				infos = append(infos, ri)
			}

			if asYAML {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(infos); err != nil {
					return err
				}
				if err := enc.Close(); err != nil {
					return err
				}
			} else {
				renderInfoTable(cmd.OutOrStdout(), infos)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d recordings could not be read", failed, len(infos))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print YAML instead of a table")
	return cmd
}

func renderInfoTable(w io.Writer, infos []recordingInfo) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"File", "Universes", "Duration", "Frames", "Size", "Error"})

	for _, ri := range infos {
		universes := make([]string, len(ri.Universes))
		for i, u := range ri.Universes {
			universes[i] = strconv.Itoa(u)
		}
		tw.AppendRow(table.Row{ri.Path, strings.Join(universes, ","), ri.Duration, ri.Frames, formatBytes(ri.Bytes), ri.Error})
	}
	tw.Render()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
