// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ZSC714725/audiosegmenter/internal/conversion"
)

var (
	splitSegment float64
	splitOutput  string
)

// 进度条以千分比计
const barMax = 1000

var splitCmd = &cobra.Command{
	Use:   "split <input>",
	Short: "将音频切分为 MP3 分段",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, ff, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		if err := ff.CheckDependencies(cmd.Context()); err != nil {
			return err
		}

		segment := splitSegment
		if segment <= 0 {
			segment = cfg.Conversion.SegmentSeconds
		}

		bar := progressbar.NewOptions(barMax,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Probing"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "▐",
				BarEnd:        "▌",
			}),
			progressbar.OptionSetWidth(50),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionSetRenderBlankState(true),
		)

		// sink 回调都在同一个 goroutine 中执行
		sink := conversion.SinkFuncs{
			OnProgress: func(p conversion.Progress) {
				if p.Phase != conversion.PhaseRunning && p.Phase != conversion.PhaseStopping {
					return
				}
				desc := fmt.Sprintf("Segment %d/%d %.1fx", p.CurrentSegment+1, p.TotalSegments, p.Speed)
				if p.ETAKnown {
					desc += " ETA " + conversion.FormatSeconds(p.ETA.Seconds())
				}
				bar.Describe(desc)
				_ = bar.Set(int(p.Fraction * barMax))
			},
			OnLog: func(e conversion.LogEvent) {
				if e.Level == conversion.LogError {
					_ = bar.Clear()
					fmt.Fprintln(os.Stderr, e.Message)
				}
			},
			OnOutcome: func(o conversion.Outcome) {
				if o.Success() && !o.Cancelled {
					_ = bar.Finish()
				}
				fmt.Fprintln(os.Stderr)
			},
		}

		sup, err := conversion.New(conversion.Config{
			Toolchain:   ff,
			Sink:        sink,
			Logger:      log.Named("conversion"),
			StopGrace:   cfg.Conversion.StopGrace,
			ExitTimeout: cfg.Conversion.ExitTimeout,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			sup.Cancel()
		}()

		_, err = sup.Start(ctx, conversion.Request{
			InputPath:      args[0],
			OutputDir:      splitOutput,
			SegmentSeconds: segment,
		})
		if _, ok := sup.Outcome(); err != nil && !ok {
			// 未创建运行
			return err
		}

		o, err := sup.Wait(context.Background())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), o.Summary())
		if !o.Success() {
			return o.Error
		}
		return nil
	},
}

func init() {
	splitCmd.Flags().Float64VarP(&splitSegment, "segment", "s", 0, "Segment length in seconds (default from config)")
	splitCmd.Flags().StringVarP(&splitOutput, "output", "o", "", "Output directory (default: next to the input)")
	rootCmd.AddCommand(splitCmd)
}
