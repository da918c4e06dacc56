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

package config

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// 🔌 Parser is the interface for config parsers
type Parser interface {
	// 📝 Parse parses the config from bytes
	Parse(ctx context.Context, data []byte) (*Config, error)

	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
}

var (
	// 🗺️ parsers is a list of available parsers
	parsers []Parser
)

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// 📚 Config describes one replication job
type Config struct {
	Registry string   `json:"registry" yaml:"registry" hcl:"registry"`                              // Source database url
	Replica  string   `json:"replica" yaml:"replica" hcl:"replica"`                                 // Destination database url
	Proxy    string   `json:"proxy,omitempty" yaml:"proxy,omitempty" hcl:"proxy,optional"`          // Optional forward proxy url
	Docs     []string `json:"docs,omitempty" yaml:"docs,omitempty" hcl:"docs,optional"`             // Document ids to replicate
	DocsFile string   `json:"docs_file,omitempty" yaml:"docs_file,omitempty" hcl:"docs_file,optional"` // File with one document id per line
	Ignore   []string `json:"ignore,omitempty" yaml:"ignore,omitempty" hcl:"ignore,optional"`       // Glob patterns for ids to skip
	Timeout  string   `json:"timeout,omitempty" yaml:"timeout,omitempty" hcl:"timeout,optional"`    // Connect and response header timeout, e.g. "30s"

	// Headers are sent on every request. Authorization is dropped from
	// attachment uploads so registry credentials never reach the replica.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" hcl:"headers,optional"`

	location string
	timeout  time.Duration
}

// 🎯 Load reads and validates the configuration from a file
func Load(ctx context.Context, path string) (*Config, error) {
	cfg, err := Read(ctx, path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// 📖 Read parses the configuration from a file without validating it, so
// callers can apply overrides first
func Read(ctx context.Context, path string) (*Config, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("path", path).Msg("loading configuration")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	p := GetParser(path)
	if p == nil {
		return nil, errors.Errorf("no parser found for file: %s", path)
	}

	cfg, err := p.Parse(ctx, data)
	if err != nil {
		return nil, errors.Errorf("parsing config: %w", err)
	}
	cfg.location = path

	return cfg, nil
}

// 🔍 Validate checks the configuration and normalizes urls
func (cfg *Config) Validate() error {
	var err error
	if cfg.Registry, err = normalizeDatabaseURL("registry", cfg.Registry); err != nil {
		return err
	}
	if cfg.Replica, err = normalizeDatabaseURL("replica", cfg.Replica); err != nil {
		return err
	}
	if cfg.Registry == cfg.Replica {
		return errors.Errorf("registry and replica must differ")
	}

	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return errors.Errorf("parsing proxy: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return errors.Errorf("proxy must be an absolute url, got %q", cfg.Proxy)
		}
	}

	for _, pattern := range cfg.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return errors.Errorf("invalid ignore pattern %q", pattern)
		}
	}

	for name := range cfg.Headers {
		if name == "" || strings.ContainsAny(name, ": \t\r\n") {
			return errors.Errorf("invalid header name %q", name)
		}
	}

	cfg.timeout = 0
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return errors.Errorf("parsing timeout: %w", err)
		}
		if d < 0 {
			return errors.Errorf("timeout must not be negative")
		}
		cfg.timeout = d
	}

	return nil
}

// ⏱️ RequestTimeout returns the parsed timeout, zero when unset
func (cfg *Config) RequestTimeout() time.Duration {
	return cfg.timeout
}

// 📨 HTTPHeaders returns Headers with canonical names
func (cfg *Config) HTTPHeaders() http.Header {
	if len(cfg.Headers) == 0 {
		return nil
	}
	h := make(http.Header, len(cfg.Headers))
	for name, value := range cfg.Headers {
		h.Set(name, value)
	}
	return h
}

// 📋 DocumentIDs returns Docs followed by the ids listed in DocsFile.
// A relative DocsFile is resolved against the config file's directory.
func (cfg *Config) DocumentIDs() ([]string, error) {
	ids := append([]string(nil), cfg.Docs...)
	if cfg.DocsFile == "" {
		return ids, nil
	}

	path := cfg.DocsFile
	if !filepath.IsAbs(path) && cfg.location != "" {
		path = filepath.Join(filepath.Dir(cfg.location), path)
	}

	fromFile, err := ReadDocsFile(path)
	if err != nil {
		return nil, err
	}
	return append(ids, fromFile...), nil
}

// 📄 ReadDocsFile reads document ids, one per line. Blank lines and lines
// starting with # are skipped.
func ReadDocsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Errorf("opening docs file: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Errorf("reading docs file: %w", err)
	}
	return ids, nil
}

// 📝 String returns a string representation of the config
func (cfg *Config) String() string {
	via := ""
	if cfg.Proxy != "" {
		via = " via " + redact(cfg.Proxy)
	}
	return fmt.Sprintf("%s -> %s%s (%d docs)", redact(cfg.Registry), redact(cfg.Replica), via, len(cfg.Docs))
}

func normalizeDatabaseURL(field, raw string) (string, error) {
	if raw == "" {
		return "", errors.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Errorf("parsing %s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.Errorf("%s must be an http or https url, got %q", field, redact(raw))
	}
	if u.Host == "" {
		return "", errors.Errorf("%s is missing a host", field)
	}
	return strings.TrimRight(raw, "/"), nil
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
