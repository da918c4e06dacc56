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

package log

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/walteh/fgnpmr/pkg/replicate"
)

// 🎨 Display configuration
const (
	docIndent   = 4  // spaces to indent document entries
	nameWidth   = 35 // Base width for document id
	phaseWidth  = 18 // Width for phase
	statusWidth = 15 // Width for status text
)

// 🎯 Logger writes replication progress to a console and to zerolog.
// It satisfies replicate.ResultLogger, replicate.PhaseLogger and
// replicate.WarningLogger.
type Logger struct {
	zlog       zerolog.Logger
	console    io.Writer
	mu         sync.Mutex
	replicated int
	failed     int
}

var (
	_ replicate.ResultLogger  = (*Logger)(nil)
	_ replicate.PhaseLogger   = (*Logger)(nil)
	_ replicate.WarningLogger = (*Logger)(nil)
)

// 🏭 New creates a new logger
func New(console io.Writer, zlog zerolog.Logger) *Logger {
	return &Logger{
		zlog:    zlog,
		console: console,
	}
}

// 📝 formatResult formats a finished document for display
func (l *Logger) formatResult(res replicate.Result) string {
	symbol := color.New(color.FgGreen).Sprint("✓")
	status := fmt.Sprintf("%d attachments", res.Attachments)
	if res.Attachments == 1 {
		status = "1 attachment"
	}
	if res.Err != nil {
		symbol = color.New(color.FgRed).Sprint("✗")
		status = "failed"
	}

	return fmt.Sprintf("%s%s %s %s %s %s",
		fmt.Sprintf("%*s", docIndent, ""),
		symbol,
		fmt.Sprintf("%-*s", nameWidth, res.ID),
		color.New(color.FgCyan).Sprint(fmt.Sprintf("%-*s", phaseWidth, res.Phase)),
		fmt.Sprintf("%-*s", statusWidth, status),
		color.New(color.Faint).Sprint(res.Duration.Round(time.Millisecond)))
}

// 📝 LogResult logs a finished document
func (l *Logger) LogResult(ctx context.Context, res replicate.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if res.Err != nil {
		l.failed++
	} else {
		l.replicated++
	}

	fmt.Fprintln(l.console, l.formatResult(res))

	event := l.zlog.Info()
	if res.Err != nil {
		event = l.zlog.Warn().Err(res.Err)
	}
	event.
		Str("id", res.ID).
		Str("phase", res.Phase.String()).
		Int("attachments", res.Attachments).
		Dur("took", res.Duration).
		Msg("document finished")
}

// 📝 StartPhase prints a header for a phase
func (l *Logger) StartPhase(ctx context.Context, phase replicate.Phase, documents int) {
	noun := "documents"
	if documents == 1 {
		noun = "document"
	}
	l.Header(fmt.Sprintf("%s: %d %s", phase, documents, noun))
}

// 📊 Counts returns how many documents were replicated and how many failed
func (l *Logger) Counts() (replicated, failed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.replicated, l.failed
}

// 📝 Header logs a header
func (l *Logger) Header(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := color.New(color.Bold, color.FgCyan).Sprint("fgnpmr")
	fmt.Fprintf(l.console, "\n%s %s\n\n", name, color.New(color.Faint).Sprint("• "+msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Success logs a success message
func (l *Logger) Success(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "✅ %s\n", color.New(color.FgGreen).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Warning logs a warning message
func (l *Logger) Warning(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "⚠️  %s\n", color.New(color.FgYellow).Sprint(msg))
	l.zlog.Warn().Msg(msg)
}

// 📝 Error logs an error message
func (l *Logger) Error(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "❌ %s\n", color.New(color.FgRed).Sprint(msg))
	l.zlog.Error().Msg(msg)
}

// 📝 Info logs an info message
func (l *Logger) Info(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "ℹ️  %s\n", color.New(color.FgCyan).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// 📝 Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// 📝 Successf logs a formatted success message
func (l *Logger) Successf(format string, args ...interface{}) {
	l.Success(fmt.Sprintf(format, args...))
}
