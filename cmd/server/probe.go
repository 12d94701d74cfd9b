// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZSC714725/audiosegmenter/internal/conversion"
)

var probeSegment float64

var probeCmd = &cobra.Command{
	Use:   "probe <input>",
	Short: "查看音频时长和分段数",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, ff, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		segment := probeSegment
		if segment <= 0 {
			segment = cfg.Conversion.SegmentSeconds
		}

		info, err := ff.Probe(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		p := conversion.NewPreview(info, segment)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Duration: %s (%.1fs)\n", p.Duration, info.Duration)
		fmt.Fprintf(out, "Size:     %.2f MB\n", p.SizeMB)
		fmt.Fprintf(out, "Bitrate:  %s\n", p.Bitrate)
		fmt.Fprintf(out, "Segments: %d x %s\n", p.TotalSegments, conversion.FormatSeconds(segment))
		return nil
	},
}

func init() {
	probeCmd.Flags().Float64VarP(&probeSegment, "segment", "s", 0, "Segment length in seconds (default from config)")
	rootCmd.AddCommand(probeCmd)
}
