// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZSC714725/audiosegmenter/internal/config"
	"github.com/ZSC714725/audiosegmenter/internal/ffmpeg"
	"github.com/ZSC714725/audiosegmenter/internal/logger"
)

var (
	configPath string
	ffmpegBin  string
	ffprobeBin string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "audiosegmenter",
	Short:         "长音频分段转码为 MP3",
	Long:          `AudioSegmenter 使用 ffmpeg 将长音频按固定时长切分为 MP3 分段，提供 HTTP 服务和命令行两种方式`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	flags.StringVar(&ffmpegBin, "ffmpeg", "", "FFmpeg binary path (overrides config)")
	flags.StringVar(&ffprobeBin, "ffprobe", "", "FFprobe binary path (overrides config)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and resolves the ffmpeg toolchain.
func setup() (*config.Config, logger.Logger, ffmpeg.FFmpeg, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if ffmpegBin != "" {
		cfg.FFmpeg.Path = ffmpegBin
	}
	if ffprobeBin != "" {
		cfg.FFmpeg.ProbePath = ffprobeBin
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log, err := logger.New("audiosegmenter", logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("logger: %w", err)
	}

	validator, err := ffmpeg.NewValidator(cfg.FFmpeg.InputAllow, cfg.FFmpeg.InputBlock)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("input validator: %w", err)
	}

	ff, err := ffmpeg.New(ffmpeg.Config{
		Binary:         cfg.FFmpeg.Path,
		ProbeBinary:    cfg.FFmpeg.ProbePath,
		ProbeTimeout:   cfg.Conversion.ProbeTimeout,
		MaxLogLines:    cfg.FFmpeg.MaxLogLines,
		ValidatorInput: validator,
		Logger:         log.Named("ffmpeg"),
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return cfg, log, ff, nil
}
