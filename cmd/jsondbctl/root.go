package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/maruel/jsondb/internal/tablestore"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	db      string
	format  string
	verbose bool
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "jsondbctl",
		Short:         "Inspect and edit a jsondb data file",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.format, validFormats)
			}
			slog.SetDefault(newLogger(cmd, opts))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.db, "db", "data/database.json", "path of the JSON data file")
	cmd.PersistentFlags().StringVar(&opts.format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log store activity to stderr")

	cmd.AddCommand(
		newTablesCommand(opts),
		newSelectCommand(opts),
		newGetCommand(opts),
		newDeleteCommand(opts),
		newImportCommand(opts),
		newCheckCommand(opts),
	)
	return cmd
}

// loadObserver remembers the outcome of loading the file.
type loadObserver struct {
	err error
}

func (o *loadObserver) OnLoad(_, _ int, err error) { o.err = err }
func (o *loadObserver) OnMutation(tablestore.Op, string) {}
func (o *loadObserver) OnSave(int, time.Duration, error) {}

// openStore opens the data file, refusing one that exists but cannot be
// parsed so that a later save does not replace it with an empty store.
func openStore(cmd *cobra.Command, opts *rootOptions) (*tablestore.Store, error) {
	obs := &loadObserver{}
	s, err := tablestore.Open(opts.db, tablestore.WithLogger(newLogger(cmd, opts)), tablestore.WithObserver(obs))
	if err != nil {
		return nil, err
	}
	if obs.err != nil {
		_ = s.Close(context.Background())
		return nil, fmt.Errorf("failed to load %s: %w", opts.db, obs.err)
	}
	return s, nil
}

// newLogger returns a logger writing to stderr in verbose mode and discarding
// everything otherwise.
func newLogger(cmd *cobra.Command, opts *rootOptions) *slog.Logger {
	if !opts.verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(tint.NewHandler(cmd.ErrOrStderr(), &tint.Options{Level: slog.LevelDebug, TimeFormat: "15:04:05.000", NoColor: true}))
}

// closeStore waits for pending writes.
func closeStore(cmd *cobra.Command, s *tablestore.Store) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	return s.Close(ctx)
}

// output writes v as indented JSON, or calls text in text mode.
func output(w io.Writer, opts *rootOptions, v any, text func(io.Writer) error) error {
	if opts.format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}

var errNotFound = errors.New("record not found")
