// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package process

import "time"

// Line is a timestamped line of worker output
type Line struct {
	Timestamp time.Time `json:"timestamp"`
	Data      string    `json:"data"`
}
