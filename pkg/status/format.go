// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package status

import (
	"fmt"
)

// ProgressFormatter defines how replication progress should be formatted
type ProgressFormatter interface {
	// FormatProgress formats a progress message
	FormatProgress(current, total int) string
}

// DefaultProgressFormatter provides a default implementation of ProgressFormatter
type DefaultProgressFormatter struct{}

// NewDefaultProgressFormatter creates a new DefaultProgressFormatter
func NewDefaultProgressFormatter() *DefaultProgressFormatter {
	return &DefaultProgressFormatter{}
}

// FormatProgress formats a progress message with percentage
func (f *DefaultProgressFormatter) FormatProgress(current, total int) string {
	var percentage float64
	if total == 0 {
		percentage = 0
		if current > 0 {
			percentage = 100
		}
	} else {
		percentage = float64(current) / float64(total) * 100
	}

	if current >= total {
		return fmt.Sprintf("✅ Progress: %d/%d documents (%.0f%%)", current, total, percentage)
	}
	return fmt.Sprintf("⏳ Progress: %d/%d documents (%.0f%%)", current, total, percentage)
}
