package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/snapdoc/snapdoc/internal/query"
)

const shellPrompt = "snapdoc> "

// NewShellCommand creates the interactive shell. The shell keeps one
// engine open for its whole lifetime, so repeated reads hit the cache.
func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "shell",
		Short:         "Interactive shell",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer cleanup()

			f := newFormatter(rootOpts, cmd)
			fmt.Fprintf(cmd.OutOrStdout(), "snapdoc shell (store %s). Type 'help' for commands.\n", a.cfg.Store.Path)

			line := liner.NewLiner()
			defer line.Close()
			line.SetCtrlCAborts(true)

			for {
				input, err := line.Prompt(shellPrompt)
				if err != nil {
					if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
						fmt.Fprintln(cmd.OutOrStdout())
						return nil
					}
					return err
				}
				input = strings.TrimSpace(input)
				if input == "" {
					continue
				}
				line.AppendHistory(input)

				if input == "exit" || input == "quit" {
					return nil
				}
				if err := runShellLine(cmd, f, a, input); err != nil {
					_ = f.Error(failureCode(err), err.Error())
				}
			}
		},
	}
}

func runShellLine(cmd *cobra.Command, f *OutputFormatter, a *app, input string) error {
	tokens := strings.Fields(input)
	name, rest := tokens[0], tokens[1:]

	switch name {
	case "help":
		fmt.Fprint(cmd.OutOrStdout(), `commands:
  collections                      list collections
  get <collection> [id]            read records
  create <collection> <json>       insert a record
  update <collection> <id> <json>  merge fields
  delete <collection> <id>         remove a record
  count <collection>               count records
  find <collection> <field:op:value>...
  exit
`)
		return nil

	case "collections":
		db, err := a.txn.Snapshot(cmd.Context())
		if err != nil {
			return err
		}
		for _, name := range db.Collections() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d)\n", name, len(db[name]))
		}
		return nil

	case "get":
		switch len(rest) {
		case 1:
			records, err := a.txn.Collection(cmd.Context(), rest[0])
			if err != nil {
				return err
			}
			return outputRecords(f, records)
		case 2:
			rec, err := a.txn.Get(cmd.Context(), rest[0], rest[1])
			if err != nil {
				return err
			}
			return outputRecord(f, rec)
		}
		return fmt.Errorf("usage: get <collection> [id]")

	case "create":
		if len(rest) < 2 {
			return fmt.Errorf("usage: create <collection> <json>")
		}
		fields, err := parseFields(strings.Join(rest[1:], " "))
		if err != nil {
			return err
		}
		rec, err := a.txn.Create(cmd.Context(), rest[0], fields)
		if err != nil {
			return err
		}
		return outputRecord(f, rec)

	case "update":
		if len(rest) < 3 {
			return fmt.Errorf("usage: update <collection> <id> <json>")
		}
		fields, err := parseFields(strings.Join(rest[2:], " "))
		if err != nil {
			return err
		}
		rec, err := a.txn.Update(cmd.Context(), rest[0], rest[1], fields)
		if err != nil {
			return err
		}
		return outputRecord(f, rec)

	case "delete":
		if len(rest) != 2 {
			return fmt.Errorf("usage: delete <collection> <id>")
		}
		rec, err := a.txn.Delete(cmd.Context(), rest[0], rest[1])
		if err != nil {
			return err
		}
		return outputRecord(f, rec)

	case "count":
		if len(rest) != 1 {
			return fmt.Errorf("usage: count <collection>")
		}
		records, err := a.txn.Collection(cmd.Context(), rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), query.Count(records))
		return nil

	case "find":
		if len(rest) < 2 {
			return fmt.Errorf("usage: find <collection> <field:op:value>...")
		}
		where, err := parseWhere(rest[1:])
		if err != nil {
			return err
		}
		records, err := a.txn.Collection(cmd.Context(), rest[0])
		if err != nil {
			return err
		}
		rows, err := query.Select(records, query.Query{Where: where})
		if err != nil {
			return err
		}
		return outputRecords(f, rows)
	}

	return fmt.Errorf("unknown command %q (try 'help')", name)
}
