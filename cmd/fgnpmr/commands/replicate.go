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

package commands

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/walteh/fgnpmr/cmd/fgnpmr/opts"
	"github.com/walteh/fgnpmr/pkg/config"
	"github.com/walteh/fgnpmr/pkg/couch"
	"github.com/walteh/fgnpmr/pkg/log"
	"github.com/walteh/fgnpmr/pkg/replicate"
	"github.com/walteh/fgnpmr/pkg/status"
	"gitlab.com/tozd/go/errors"
)

type replicateFlags struct {
	registry string
	replica  string
	proxy    string
	docsFile string
	timeout  string
	headers  []string
	ignore   []string
	summary  bool
}

// NewReplicateCmd creates a new replicate command
func NewReplicateCmd(o *opts.RootOpts) *cobra.Command {
	flags := &replicateFlags{}

	cmd := &cobra.Command{
		Use:   "replicate [ids...]",
		Short: "Force documents from the registry into the replica",
		Long: `Replicate forces each named document from the registry into the replica.
It will:
1. Delete the replica's design documents
2. Delete and recreate every requested document, five at a time
3. Copy each document's attachments, one after another
4. Restore the design documents from the registry

Ids come from the config file, --docs-file and the arguments, in that order.
Documents that fail are listed at the end and the command exits non-zero.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := zerolog.Ctx(cmd.Context()).With().Str("command", "replicate").Logger().WithContext(cmd.Context())
			return runReplicate(ctx, o, flags, cmd.Flags(), args)
		},
	}

	cmd.Flags().StringVar(&flags.registry, "registry", "", "source database url")
	cmd.Flags().StringVar(&flags.replica, "replica", "", "destination database url")
	cmd.Flags().StringVar(&flags.proxy, "proxy", "", "forward proxy url for every request")
	cmd.Flags().StringVar(&flags.docsFile, "docs-file", "", "file with one document id per line")
	cmd.Flags().StringVar(&flags.timeout, "timeout", "", "connect and response header timeout, e.g. 30s")
	cmd.Flags().StringArrayVar(&flags.headers, "header", nil, `header sent on every request, "Name: value" (repeatable)`)
	cmd.Flags().StringArrayVar(&flags.ignore, "ignore", nil, "glob of document ids to skip (repeatable)")
	cmd.Flags().BoolVar(&flags.summary, "summary", false, "print a table of every finished document")

	return cmd
}

func runReplicate(ctx context.Context, o *opts.RootOpts, flags *replicateFlags, set *pflag.FlagSet, args []string) error {
	cfg, err := resolveConfig(ctx, o, flags, set, args)
	if err != nil {
		return err
	}

	ids, err := cfg.DocumentIDs()
	if err != nil {
		return errors.Errorf("resolving document ids: %w", err)
	}

	client, err := couch.NewClient(couch.ClientOptions{
		Proxy:   cfg.Proxy,
		Headers: cfg.HTTPHeaders(),
		Timeout: cfg.RequestTimeout(),
	})
	if err != nil {
		return errors.Errorf("creating client: %w", err)
	}

	out := o.Console
	if out == nil {
		out = os.Stdout
	}
	console := log.New(out, *zerolog.Ctx(ctx))
	tracker := status.NewTracker(console)

	r, err := replicate.New(replicate.Options{
		Store:          client,
		Source:         cfg.Registry,
		Destination:    cfg.Replica,
		DocumentIDs:    ids,
		IgnorePatterns: cfg.Ignore,
		Logger:         tracker,
	})
	if err != nil {
		return errors.Errorf("creating replicator: %w", err)
	}

	console.Infof("job %s: %s", r.JobID(), cfg.String())
	zerolog.Ctx(ctx).Debug().Str("job_id", r.JobID()).Int("documents", len(ids)).Msg("starting job")

	runErr := r.Run(ctx)

	if flags.summary {
		if err := status.RenderDocs(out, tracker.Docs()); err != nil {
			return err
		}
	}

	return report(out, console, tracker, runErr)
}

func report(out io.Writer, console *log.Logger, tracker *status.Tracker, runErr error) error {
	var failed *replicate.Errors
	if errors.As(runErr, &failed) {
		if err := status.RenderErrors(out, failed); err != nil {
			return err
		}
		replicated, _ := console.Counts()
		console.Errorf("%d failed, %d replicated", len(failed.Records), replicated)
		return runErr
	}
	if runErr != nil {
		console.Error(runErr.Error())
		return errors.Errorf("replicating: %w", runErr)
	}

	processed, total := tracker.Progress()
	console.Successf("%d/%d documents replicated", processed, total)
	return nil
}

// resolveConfig loads the config file, if any, and lays flags and
// arguments over it
func resolveConfig(ctx context.Context, o *opts.RootOpts, flags *replicateFlags, set *pflag.FlagSet, args []string) (*config.Config, error) {
	cfg := &config.Config{}
	if o.ConfigFile != "" {
		var err error
		if cfg, err = config.Read(ctx, o.ConfigFile); err != nil {
			return nil, err
		}
	}

	override := func(name string, dst *string, val string) {
		if set.Changed(name) {
			*dst = val
		}
	}
	override("registry", &cfg.Registry, flags.registry)
	override("replica", &cfg.Replica, flags.replica)
	override("proxy", &cfg.Proxy, flags.proxy)
	override("docs-file", &cfg.DocsFile, flags.docsFile)
	override("timeout", &cfg.Timeout, flags.timeout)

	// a docs file named on the command line is relative to the working directory
	if set.Changed("docs-file") && cfg.DocsFile != "" {
		abs, err := filepath.Abs(cfg.DocsFile)
		if err != nil {
			return nil, errors.Errorf("resolving docs file: %w", err)
		}
		cfg.DocsFile = abs
	}

	for _, raw := range flags.headers {
		name, value, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, errors.Errorf("header %q must look like \"Name: value\"", raw)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		cfg.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	cfg.Ignore = append(cfg.Ignore, flags.ignore...)
	cfg.Docs = append(cfg.Docs, args...)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

