// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package skills

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Codec represents a codec with encoders and decoders
type Codec struct {
	Id       string   `json:"id"`
	Name     string   `json:"name"`
	Encoders []string `json:"encoders"`
	Decoders []string `json:"decoders"`
}

// Format represents a supported format
type Format struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

// Library represents a linked av library
type Library struct {
	Name     string `json:"name"`
	Compiled string `json:"compiled"`
	Linked   string `json:"linked"`
}

type ffmpegInfo struct {
	Version       string    `json:"version"`
	Compiler      string    `json:"compiler"`
	Configuration string    `json:"configuration"`
	Libraries     []Library `json:"libraries"`
}

// Codecs grouped by media type
type Codecs struct {
	Audio    []Codec `json:"audio"`
	Video    []Codec `json:"video"`
	Subtitle []Codec `json:"subtitle"`
}

// Formats grouped by direction
type Formats struct {
	Demuxers []Format `json:"demuxers"`
	Muxers   []Format `json:"muxers"`
}

// Skills are the detected capabilities of FFmpeg
type Skills struct {
	FFmpeg  ffmpegInfo `json:"ffmpeg"`
	Codecs  Codecs     `json:"codecs"`
	Formats Formats    `json:"formats"`
}

// 分段输出依赖的编码器和封装器
const (
	mp3Encoder   = "libmp3lame"
	segmentMuxer = "segment"
	mp3Muxer     = "mp3"
)

// New returns all skills that FFmpeg provides
func New(binary string) (Skills, error) {
	c := Skills{}

	ff, err := getVersion(binary)
	if ff.Version == "" || err != nil {
		if err != nil {
			return Skills{}, fmt.Errorf("can't parse ffmpeg version: %w", err)
		}
		return Skills{}, fmt.Errorf("can't parse ffmpeg version")
	}
	c.FFmpeg = ff

	c.Codecs = parseCodecs(run(binary, "-codecs"))
	c.Formats = parseFormats(run(binary, "-formats"))

	return c, nil
}

// HasEncoder reports whether an audio encoder with the given name is available.
func (s Skills) HasEncoder(name string) bool {
	for _, c := range s.Codecs.Audio {
		for _, e := range c.Encoders {
			if e == name {
				return true
			}
		}
	}
	return false
}

// HasMuxer reports whether an output format with the given id is available.
func (s Skills) HasMuxer(id string) bool {
	for _, f := range s.Formats.Muxers {
		if f.Id == id {
			return true
		}
	}
	return false
}

// SupportsSegmentedMP3 checks everything the split invocation needs.
func (s Skills) SupportsSegmentedMP3() error {
	var missing []string
	if !s.HasEncoder(mp3Encoder) {
		missing = append(missing, "encoder "+mp3Encoder)
	}
	if !s.HasMuxer(segmentMuxer) {
		missing = append(missing, "muxer "+segmentMuxer)
	}
	if !s.HasMuxer(mp3Muxer) {
		missing = append(missing, "muxer "+mp3Muxer)
	}
	if len(missing) > 0 {
		return fmt.Errorf("ffmpeg %s lacks %s", s.FFmpeg.Version, strings.Join(missing, ", "))
	}
	return nil
}

func run(binary string, arg string) []byte {
	cmd := exec.Command(binary, "-hide_banner", arg)
	cmd.Env = []string{}
	stdout, _ := cmd.Output()
	return stdout
}

func getVersion(binary string) (ffmpegInfo, error) {
	cmd := exec.Command(binary, "-version")
	cmd.Env = []string{}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return ffmpegInfo{}, err
	}
	return parseVersion(out), nil
}

func parseVersion(data []byte) ffmpegInfo {
	f := ffmpegInfo{}
	reVersion := regexp.MustCompile(`^ffmpeg version n?([0-9]+\.[0-9]+(\.[0-9]+)?)`)
	reCompiler := regexp.MustCompile(`(?m)^\s*built with (.*)$`)
	reConfiguration := regexp.MustCompile(`(?m)^\s*configuration: (.*)$`)
	reLibrary := regexp.MustCompile(`(?m)^\s*(lib(?:[a-z]+))\s+([0-9]+\.\s*[0-9]+\.\s*[0-9]+) /\s+([0-9]+\.\s*[0-9]+\.\s*[0-9]+)`)

	if m := reVersion.FindSubmatch(data); m != nil {
		f.Version = string(m[1])
		if len(m[2]) == 0 {
			f.Version += ".0"
		}
	}
	if m := reCompiler.FindSubmatch(data); m != nil {
		f.Compiler = string(m[1])
	}
	if m := reConfiguration.FindSubmatch(data); m != nil {
		f.Configuration = string(m[1])
	}
	for _, m := range reLibrary.FindAllSubmatch(data, -1) {
		f.Libraries = append(f.Libraries, Library{
			Name:     string(m[1]),
			Compiled: string(m[2]),
			Linked:   string(m[3]),
		})
	}
	return f
}

func parseCodecs(data []byte) Codecs {
	codecs := Codecs{}
	re := regexp.MustCompile(`^\s([D.])([E.])([VAS]).{3} ([0-9A-Za-z_]+)\s+(.*?)(?:\(decoders:([^\)]+)\))?\s?(?:\(encoders:([^\)]+)\))?$`)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		c := Codec{Id: m[4], Name: strings.TrimSpace(m[5])}
		if m[1] == "D" {
			if len(m[6]) == 0 {
				c.Decoders = []string{m[4]}
			} else {
				c.Decoders = strings.Fields(m[6])
			}
		}
		if m[2] == "E" {
			if len(m[7]) == 0 {
				c.Encoders = []string{m[4]}
			} else {
				c.Encoders = strings.Fields(m[7])
			}
		}
		switch m[3] {
		case "V":
			codecs.Video = append(codecs.Video, c)
		case "A":
			codecs.Audio = append(codecs.Audio, c)
		case "S":
			codecs.Subtitle = append(codecs.Subtitle, c)
		}
	}
	return codecs
}

func parseFormats(data []byte) Formats {
	f := Formats{}
	re := regexp.MustCompile(`^\s([D ])([E ])[d ]? ([0-9A-Za-z_,]+)\s+(.*?)$`)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		format := Format{Id: strings.Split(m[3], ",")[0], Name: m[4]}
		if m[1] == "D" {
			f.Demuxers = append(f.Demuxers, format)
		}
		if m[2] == "E" {
			f.Muxers = append(f.Muxers, format)
		}
	}
	return f
}
