// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	FFmpeg     FFmpegConfig     `yaml:"ffmpeg"`
	Conversion ConversionConfig `yaml:"conversion"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Bind string `yaml:"bind"`
}

// FFmpegConfig FFmpeg 配置
type FFmpegConfig struct {
	Path        string   `yaml:"path"`
	ProbePath   string   `yaml:"probe_path"`
	MaxLogLines int      `yaml:"max_log_lines"`
	InputAllow  []string `yaml:"input_allow"`
	InputBlock  []string `yaml:"input_block"`
}

// ConversionConfig 分段转码配置
type ConversionConfig struct {
	SegmentSeconds float64       `yaml:"segment_seconds"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	StopGrace      time.Duration `yaml:"stop_grace"`
	ExitTimeout    time.Duration `yaml:"exit_timeout"`
	WatchOutput    bool          `yaml:"watch_output"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{Bind: ":8080"},
		FFmpeg: FFmpegConfig{Path: "ffmpeg", ProbePath: "ffprobe", MaxLogLines: 100},
		Conversion: ConversionConfig{
			SegmentSeconds: 600,
			ProbeTimeout:   15 * time.Second,
			StopGrace:      5 * time.Second,
			ExitTimeout:    30 * time.Second,
		},
		Log: LogConfig{Level: "info", MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// Load 从 YAML 文件加载配置，然后应用 .env 和环境变量覆盖
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	// .env 不存在时忽略
	_ = godotenv.Load()
	applyEnv(cfg)

	fillDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Bind = getEnv("SEGMENTER_BIND", cfg.Server.Bind)
	cfg.FFmpeg.Path = getEnv("SEGMENTER_FFMPEG", cfg.FFmpeg.Path)
	cfg.FFmpeg.ProbePath = getEnv("SEGMENTER_FFPROBE", cfg.FFmpeg.ProbePath)
	cfg.Log.Level = getEnv("SEGMENTER_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("SEGMENTER_LOG_FILE", cfg.Log.File)
	cfg.Conversion.SegmentSeconds = getEnvFloat("SEGMENTER_SEGMENT_SECONDS", cfg.Conversion.SegmentSeconds)
}

// 填充空值
func fillDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = def.Server.Bind
	}
	if cfg.FFmpeg.Path == "" {
		cfg.FFmpeg.Path = def.FFmpeg.Path
	}
	if cfg.FFmpeg.ProbePath == "" {
		cfg.FFmpeg.ProbePath = def.FFmpeg.ProbePath
	}
	if cfg.FFmpeg.MaxLogLines <= 0 {
		cfg.FFmpeg.MaxLogLines = def.FFmpeg.MaxLogLines
	}
	if cfg.Conversion.SegmentSeconds <= 0 {
		cfg.Conversion.SegmentSeconds = def.Conversion.SegmentSeconds
	}
	if cfg.Conversion.ProbeTimeout <= 0 {
		cfg.Conversion.ProbeTimeout = def.Conversion.ProbeTimeout
	}
	if cfg.Conversion.StopGrace <= 0 {
		cfg.Conversion.StopGrace = def.Conversion.StopGrace
	}
	if cfg.Conversion.ExitTimeout <= 0 {
		cfg.Conversion.ExitTimeout = def.Conversion.ExitTimeout
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}

func getEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}
