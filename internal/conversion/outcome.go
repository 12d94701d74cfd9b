// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package conversion

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ZSC714725/audiosegmenter/internal/errors"
)

// PreviewFiles is how many segment files an outcome summary lists.
const PreviewFiles = 5

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// File is one produced segment.
type File struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

// Outcome is the terminal result of a run. Error is set only on failure.
type Outcome struct {
	RunID     string        `json:"run_id"`
	Status    Status        `json:"status"`
	Cancelled bool          `json:"cancelled"`
	Elapsed   time.Duration `json:"elapsed"`
	OutputDir string        `json:"output_dir"`
	Files     []File        `json:"files"`
	Error     *errors.Error `json:"error,omitempty"`
}

func (o Outcome) Success() bool {
	return o.Status == StatusSuccess
}

// Preview returns the first n files and how many were left out.
func (o Outcome) Preview(n int) ([]File, int) {
	if n < 0 {
		n = 0
	}
	if len(o.Files) <= n {
		return o.Files, 0
	}
	return o.Files[:n], len(o.Files) - n
}

// Summary is a short human readable report of the outcome.
func (o Outcome) Summary() string {
	if !o.Success() {
		detail := "unknown error"
		if o.Error != nil {
			detail = o.Error.Detail()
		}
		return fmt.Sprintf("conversion failed after %s: %s", o.Elapsed.Round(time.Millisecond), detail)
	}

	var b strings.Builder
	if o.Cancelled {
		fmt.Fprintf(&b, "conversion cancelled after %s, %d segment(s) kept in %s", o.Elapsed.Round(time.Millisecond), len(o.Files), o.OutputDir)
	} else {
		fmt.Fprintf(&b, "conversion finished in %s, %d segment(s) written to %s", o.Elapsed.Round(time.Millisecond), len(o.Files), o.OutputDir)
	}
	files, more := o.Preview(PreviewFiles)
	for _, f := range files {
		fmt.Fprintf(&b, "\n  %s (%.2f MB)", f.Name, float64(f.SizeBytes)/(1024*1024))
	}
	if more > 0 {
		fmt.Fprintf(&b, "\n  ... and %d more", more)
	}
	return b.String()
}

// ListSegments returns the regular files in dir named *_<safe>.mp3,
// sorted by name.
func ListSegments(dir, safe string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	suffix := "_" + safe + ".mp3"
	files := []File{}
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || len(name) <= len(suffix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			// 文件在列举过程中被删除
			continue
		}
		files = append(files, File{Name: name, Path: filepath.Join(dir, name), SizeBytes: fi.Size()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
