// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package ffmpeg

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ZSC714725/audiosegmenter/internal/errors"
)

// Validator decides whether a path may be handed to ffprobe and ffmpeg
type Validator interface {
	IsValid(path string) bool
}

type pathRules struct {
	allow []*regexp.Regexp
	block []*regexp.Regexp
}

// NewValidator creates a Validator from allow and block expressions.
// Block wins over allow, and an empty allow list admits every path that
// is not blocked. Expressions match the cleaned, slash separated path.
func NewValidator(allow, block []string) (Validator, error) {
	v := &pathRules{}

	var err error
	if v.allow, err = compileRules("allow", allow); err != nil {
		return nil, err
	}
	if v.block, err = compileRules("block", block); err != nil {
		return nil, err
	}
	return v, nil
}

func compileRules(name string, exps []string) ([]*regexp.Regexp, error) {
	var rules []*regexp.Regexp
	for _, exp := range exps {
		exp = strings.TrimSpace(exp)
		if exp == "" {
			continue
		}
		re, err := regexp.Compile(exp)
		if err != nil {
			return nil, errors.Wrap(errors.KindInvalidRequest, err, "invalid %s expression '%s'", name, exp)
		}
		rules = append(rules, re)
	}
	return rules, nil
}

func (v *pathRules) IsValid(path string) bool {
	if path == "" {
		return false
	}
	// /a/../proc 之类的写法先规整再匹配
	clean := filepath.ToSlash(filepath.Clean(path))

	for _, e := range v.block {
		if e.MatchString(clean) {
			return false
		}
	}
	if len(v.allow) == 0 {
		return true
	}
	for _, e := range v.allow {
		if e.MatchString(clean) {
			return true
		}
	}
	return false
}
