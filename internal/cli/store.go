package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/snapdoc/snapdoc/internal/config"
	"github.com/snapdoc/snapdoc/internal/engine"
	"github.com/snapdoc/snapdoc/internal/value"
)

// NewInitCommand creates the init command: it writes a starter config
// file and initializes the store.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	var mediumName, codecName string

	cmd := &cobra.Command{
		Use:           "init",
		Short:         "Initialize a new store and config file",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)

			if !configExists(rootOpts.Config) {
				cfg := config.Default()
				cfg.Store.Medium = mediumName
				cfg.Store.Codec = codecName
				if mediumName == "sqlite" {
					cfg.Store.Path = "snapdoc.db"
				}
				data, err := yaml.Marshal(cfg)
				if err != nil {
					return WrapExitError(ExitCommandError, "render config", err)
				}
				if err := os.WriteFile(rootOpts.Config, data, 0o644); err != nil {
					return WrapExitError(ExitCommandError, "write config", err)
				}
				f.VerboseLog("wrote %s", rootOpts.Config)
			}

			_, cleanup, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer cleanup()
			return f.Success(fmt.Sprintf("initialized store (config %s)", rootOpts.Config))
		},
	}

	cmd.Flags().StringVar(&mediumName, "medium", "file", "snapshot medium (file|sqlite)")
	cmd.Flags().StringVar(&codecName, "codec", "json", "snapshot codec (json|yaml)")
	return cmd
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:           "create <collection> <fields-json>",
		Short:         "Insert a record into a collection",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			fields, err := parseFields(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "parse fields", err)
			}

			a, cleanup, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := a.txn.Create(cmd.Context(), args[0], fields, engine.WithMessage(message))
			if err != nil {
				_ = f.Error(failureCode(err), err.Error())
				return WrapExitError(ExitFailure, "create", err)
			}
			return outputRecord(f, rec)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "version message")
	return cmd
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <collection> [id]",
		Short:         "Read a record, or list a whole collection",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			a, cleanup, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer cleanup()

			if len(args) == 2 {
				rec, err := a.txn.Get(cmd.Context(), args[0], args[1])
				if err != nil {
					_ = f.Error(failureCode(err), err.Error())
					return WrapExitError(ExitFailure, "get", err)
				}
				return outputRecord(f, rec)
			}

			records, err := a.txn.Collection(cmd.Context(), args[0])
			if err != nil {
				_ = f.Error(failureCode(err), err.Error())
				return WrapExitError(ExitFailure, "get", err)
			}
			return outputRecords(f, records)
		},
	}
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:           "update <collection> <id> <fields-json>",
		Short:         "Merge fields into an existing record",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			fields, err := parseFields(args[2])
			if err != nil {
				return WrapExitError(ExitCommandError, "parse fields", err)
			}

			a, cleanup, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := a.txn.Update(cmd.Context(), args[0], args[1], fields, engine.WithMessage(message))
			if err != nil {
				_ = f.Error(failureCode(err), err.Error())
				return WrapExitError(ExitFailure, "update", err)
			}
			return outputRecord(f, rec)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "version message")
	return cmd
}

// NewDeleteCommand creates the delete command. With --collection the id
// argument is omitted and the whole collection goes away.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var message string
	var wholeCollection bool

	cmd := &cobra.Command{
		Use:           "delete <collection> [id]",
		Short:         "Delete a record or a whole collection",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			if !wholeCollection && len(args) != 2 {
				return WrapExitError(ExitCommandError, "delete needs an id (or --collection)", nil)
			}

			a, cleanup, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer cleanup()

			if wholeCollection {
				removed, err := a.txn.DeleteCollection(cmd.Context(), args[0], engine.WithMessage(message))
				if err != nil {
					_ = f.Error(failureCode(err), err.Error())
					return WrapExitError(ExitFailure, "delete", err)
				}
				return f.Success(fmt.Sprintf("deleted collection %s (%d records)", args[0], len(removed)))
			}

			rec, err := a.txn.Delete(cmd.Context(), args[0], args[1], engine.WithMessage(message))
			if err != nil {
				_ = f.Error(failureCode(err), err.Error())
				return WrapExitError(ExitFailure, "delete", err)
			}
			return outputRecord(f, rec)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "version message")
	cmd.Flags().BoolVar(&wholeCollection, "collection", false, "delete the whole collection")
	return cmd
}

func outputRecord(f *OutputFormatter, rec value.Record) error {
	if f.Format == "json" {
		return f.Success(value.ToAny(value.Object(rec)))
	}
	return f.Success(renderRecord(rec))
}

func outputRecords(f *OutputFormatter, records []value.Record) error {
	if f.Format == "json" {
		out := make([]any, len(records))
		for i, rec := range records {
			out[i] = value.ToAny(value.Object(rec))
		}
		return f.Success(out)
	}
	for _, rec := range records {
		if err := f.Success(renderRecord(rec)); err != nil {
			return err
		}
	}
	if len(records) == 0 {
		return f.Success("(empty)")
	}
	return nil
}
