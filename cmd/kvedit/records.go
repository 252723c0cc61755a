package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/maruel/kvedit/internal/catalog"
	"github.com/maruel/kvedit/internal/editor"
	"github.com/maruel/kvedit/internal/hoststore"
	"github.com/maruel/kvedit/internal/models"
	"github.com/maruel/kvedit/internal/notify"
	"github.com/maruel/kvedit/internal/storeclient"
	"github.com/maruel/kvedit/internal/transfer"
)

// toastPrinter shows notifications on the terminal.
type toastPrinter struct {
	w io.Writer
}

func (p toastPrinter) Notify(level notify.Level, message string) {
	if level == notify.Error {
		_, _ = fmt.Fprintf(p.w, "error: %s\n", message)
		return
	}
	_, _ = fmt.Fprintln(p.w, message)
}

// newEditor returns an editor reporting to the command's stderr. The caller
// must close it.
func (a *app) newEditor(cmd *cobra.Command) *editor.Editor {
	return editor.New(cmd.Context(), storeclient.New(a.host), toastPrinter{cmd.ErrOrStderr()})
}

// selectStore selects db then store and waits for the records.
func selectStore(ctx context.Context, e *editor.Editor, db, store string) error {
	if err := e.SelectDatabase(db).Wait(ctx); err != nil {
		return err
	}
	return e.SelectStore(store).Wait(ctx)
}

// parseKey reads a key from the command line; numbers are opt-in since "1"
// and 1 are distinct keys.
func parseKey(s string, numeric bool) (hoststore.Key, error) {
	if !numeric {
		return s, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid numeric key %q: %w", s, err)
	}
	return f, nil
}

func newDatabasesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "databases",
		Short: "List the databases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbs, err := storeclient.New(a.host).ListDatabases(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Name", "Version"})
			for _, d := range dbs {
				t.AppendRow(table.Row{d.Name, d.Version})
			}
			t.Render()
			return nil
		},
	}
}

func newStoresCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stores DATABASE",
		Short: "List the object stores of a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := storeclient.New(a.host)
			h, err := c.OpenDatabase(ctx, args[0])
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()
			stores, err := c.ListStores(ctx, h)
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Name", "Key path"})
			for _, s := range stores {
				kp := s.KeyPath
				if !s.Inline() {
					kp = "(out-of-line)"
				}
				t.AppendRow(table.Row{s.Name, kp})
			}
			t.Render()
			return nil
		},
	}
}

func newScanCmd(a *app) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "scan DATABASE STORE",
		Short: "Print the records of a store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := a.newEditor(cmd)
			defer e.Close()
			if err := selectStore(cmd.Context(), e, args[0], args[1]); err != nil {
				return err
			}
			recs := e.Filter(query)
			return renderRecords(cmd.OutOrStdout(), recs, len(e.Snapshot().Records))
		},
	}
	cmd.Flags().StringVarP(&query, "filter", "f", "", "only show keys containing this text (case-insensitive)")
	return cmd
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func renderRecords(w io.Writer, recs []models.Record, total int) error {
	t := newTable(w)
	t.AppendHeader(table.Row{"Key", "Type", "Size", "Value"})
	t.SetColumnConfigs([]table.ColumnConfig{{Name: "Value", WidthMax: 60, WidthMaxEnforcer: text.Trim}})
	for _, r := range recs {
		v, err := json.Marshal(r.Value)
		if err != nil {
			return err
		}
		t.AppendRow(table.Row{hoststore.KeyString(r.Key), r.Type, r.Size, string(v)})
	}
	t.Render()
	_, err := fmt.Fprintln(w, catalog.Summary(len(recs), total))
	return err
}

func newPutCmd(a *app) *cobra.Command {
	var key, file string
	var numeric bool
	cmd := &cobra.Command{
		Use:   "put DATABASE STORE [JSON]",
		Short: "Write a record",
		Long: `Write a record. The value is read from JSON, --file or stdin.
Stores with a key path read the key from the value; other stores need --key.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[2:], file)
			if err != nil {
				return err
			}
			v, err := transfer.Parse(raw)
			if err != nil {
				return err
			}
			var k hoststore.Key
			if key != "" {
				if k, err = parseKey(key, numeric); err != nil {
					return err
				}
			}
			ctx := cmd.Context()
			c := storeclient.New(a.host)
			h, err := c.OpenDatabase(ctx, args[0])
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()
			if err := c.Put(ctx, h, args[1], v, k); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.ErrOrStderr(), "Record saved successfully")
			return err
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", "", "key of the record (out-of-line stores)")
	cmd.Flags().BoolVar(&numeric, "numeric-key", false, "parse --key as a number")
	cmd.Flags().StringVar(&file, "file", "", "read the value from this file")
	return cmd
}

// readInput returns args[0], the content of file, or stdin.
func readInput(cmd *cobra.Command, args []string, file string) (string, error) {
	switch {
	case len(args) > 0:
		return args[0], nil
	case file != "":
		b, err := os.ReadFile(file)
		return string(b), err
	default:
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), err
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	var yes, numeric bool
	cmd := &cobra.Command{
		Use:   "delete DATABASE STORE KEY",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKey(args[2], numeric)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e := a.newEditor(cmd)
			defer e.Close()
			if err := selectStore(ctx, e, args[0], args[1]); err != nil {
				return err
			}
			if err := e.ViewRecord(k); err != nil {
				return err
			}
			confirm := editor.Confirmed
			if !yes {
				confirm = promptConfirm(cmd)
			}
			op, err := e.Delete(ctx, confirm)
			if err != nil {
				return err
			}
			return op.Wait(ctx)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().BoolVar(&numeric, "numeric-key", false, "parse KEY as a number")
	return cmd
}

// promptConfirm asks on the terminal. Without a terminal it declines.
func promptConfirm(cmd *cobra.Command) editor.ConfirmFunc {
	return func(prompt string) bool {
		in, ok := cmd.InOrStdin().(*os.File)
		if !ok || !isatty.IsTerminal(in.Fd()) {
			return false
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N] ", prompt)
		line, _ := bufio.NewReader(in).ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

func newExportCmd(a *app) *cobra.Command {
	var dir string
	var numeric bool
	cmd := &cobra.Command{
		Use:   "export DATABASE STORE KEY",
		Short: "Save a record to record_<key>.json",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKey(args[2], numeric)
			if err != nil {
				return err
			}
			e := a.newEditor(cmd)
			defer e.Close()
			if err := selectStore(cmd.Context(), e, args[0], args[1]); err != nil {
				return err
			}
			if err := e.BeginEdit(k); err != nil {
				return err
			}
			art, err := e.ExportCurrent()
			if err != nil {
				return err
			}
			p := filepath.Join(dir, art.Name)
			if err := os.WriteFile(p, art.Data, 0o644); err != nil { //nolint:gosec // exported records are meant to be shared
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), p)
			return err
		},
	}
	cmd.Flags().StringVarP(&dir, "output", "o", ".", "directory to write the file to")
	cmd.Flags().BoolVar(&numeric, "numeric-key", false, "parse KEY as a number")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var key string
	var numeric bool
	cmd := &cobra.Command{
		Use:   "import DATABASE STORE FILE",
		Short: "Load a JSON file into a record and save it",
		Long: `Load a JSON file into the editor and save it. With --key the existing
record is replaced, otherwise a new record is created; stores without a key
path cannot create records.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[2])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e := a.newEditor(cmd)
			defer e.Close()
			if err := selectStore(ctx, e, args[0], args[1]); err != nil {
				return err
			}
			if key != "" {
				k, err := parseKey(key, numeric)
				if err != nil {
					return err
				}
				err = e.BeginEdit(k)
				if err != nil {
					return err
				}
			} else if err := e.BeginCreate(); err != nil {
				return err
			}
			if err := e.ImportBuffer(string(data)); err != nil {
				return err
			}
			op, err := e.Save(ctx)
			if err != nil {
				return err
			}
			return op.Wait(ctx)
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", "", "existing record to replace")
	cmd.Flags().BoolVar(&numeric, "numeric-key", false, "parse --key as a number")
	return cmd
}
