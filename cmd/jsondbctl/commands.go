package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/maruel/jsondb/internal/seed"
	"github.com/maruel/jsondb/internal/tablestore"
)

type tableCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTablesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables and their record counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore(cmd, s) }()
			out := []tableCount{}
			for _, name := range s.Tables() {
				out = append(out, tableCount{Name: name, Count: s.Len(name)})
			}
			return output(cmd.OutOrStdout(), opts, out, func(w io.Writer) error {
				for _, t := range out {
					if _, err := fmt.Fprintf(w, "%s\t%d\n", t.Name, t.Count); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newSelectCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select <table>",
		Short: "Print every record of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore(cmd, s) }()
			rows := s.Select(args[0])
			return output(cmd.OutOrStdout(), opts, rows, func(w io.Writer) error {
				return writeLines(w, rows)
			})
		},
	}
}

func newGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <table> <id>",
		Short: "Print the first record of a table with the given id",
		Long:  "Print the first record of a table with the given id. An id that parses as a number only matches numeric ids.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore(cmd, s) }()
			r, ok := s.FindByID(args[0], tablestore.ParseID(args[1]))
			if !ok {
				return fmt.Errorf("%s/%s: %w", args[0], args[1], errNotFound)
			}
			return output(cmd.OutOrStdout(), opts, r, func(w io.Writer) error {
				return writeLines(w, []tablestore.Record{r})
			})
		},
	}
}

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <id>",
		Short: "Remove the first record of a table with the given id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			deleted := s.Delete(args[0], tablestore.ParseID(args[1]))
			if err := closeStore(cmd, s); err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("%s/%s: %w", args[0], args[1], errNotFound)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s/%s\n", args[0], args[1])
			return err
		},
	}
}

func newImportCommand(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "import <fixture.yaml>",
		Short: "Import a YAML fixture",
		Long: `Import a YAML fixture of the form:

  version: 1
  tables:
    users:
      - {id: 1, name: Ana}

Tables that already hold records are skipped unless --force is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := seed.ParseFile(args[0])
			if err != nil {
				return err
			}
			s, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			res, err := seed.Apply(s, f, force)
			if err2 := closeStore(cmd, s); err == nil {
				err = err2
			}
			if err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), opts, res, func(w io.Writer) error {
				for _, name := range slices.Sorted(maps.Keys(res.Imported)) {
					if _, err := fmt.Fprintf(w, "imported %s\t%d\n", name, res.Imported[name]); err != nil {
						return err
					}
				}
				for _, name := range res.Skipped {
					if _, err := fmt.Fprintf(w, "skipped %s\n", name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "append to tables that already hold records")
	return cmd
}

// issue is one integrity problem found by check.
type issue struct {
	Table   string `json:"table"`
	Index   int    `json:"index"`
	ID      any    `json:"id,omitempty"`
	Problem string `json:"problem"`
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report records without a usable id and duplicate ids",
		Long: `Report records without a usable id and duplicate ids.

Lookups return the first record with a given id, so later duplicates are
unreachable by id. Exits with an error when an issue is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore(cmd, s) }()
			var issues []issue
			for _, name := range s.Tables() {
				issues = append(issues, checkTable(name, s.Select(name))...)
			}
			err = output(cmd.OutOrStdout(), opts, issues, func(w io.Writer) error {
				for _, i := range issues {
					if _, err := fmt.Fprintf(w, "%s[%d]: %s\n", i.Table, i.Index, i.Problem); err != nil {
						return err
					}
				}
				return nil
			})
			if err == nil && len(issues) > 0 {
				err = fmt.Errorf("%d issue(s) found", len(issues))
			}
			return err
		},
	}
}

func checkTable(name string, rows []tablestore.Record) []issue {
	var out []issue
	for i, r := range rows {
		id, ok := r.ID()
		if !ok || !tablestore.ValidID(id) {
			out = append(out, issue{Table: name, Index: i, ID: id, Problem: "missing or invalid id"})
			continue
		}
		for j := range i {
			if prev, ok := rows[j].ID(); ok && tablestore.IDEqual(prev, id) {
				out = append(out, issue{Table: name, Index: i, ID: id, Problem: fmt.Sprintf("duplicate id %v, shadowed by index %d", id, j)})
				break
			}
		}
	}
	return out
}

func writeLines(w io.Writer, rows []tablestore.Record) error {
	for _, r := range rows {
		b, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n", b); err != nil {
			return err
		}
	}
	return nil
}
