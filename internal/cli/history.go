package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/snapdoc/snapdoc/internal/history"
	"github.com/snapdoc/snapdoc/internal/medium"
	"github.com/snapdoc/snapdoc/internal/value"
)

// NewLogCommand creates the log command: the raw version log.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "log",
		Short:         "List versions, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			_, hist, cleanup, err := openHistory(rootOpts)
			if err != nil {
				return err
			}
			defer cleanup()

			versions, err := hist.ListVersions(cmd.Context(), limit)
			if err != nil {
				_ = f.Error(failureCode(err), err.Error())
				return WrapExitError(ExitFailure, "log", err)
			}
			return outputVersions(f, versions)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "max versions (0 = all)")
	return cmd
}

// NewHistoryCommand creates the history command: the reconstructed life
// of one record, optionally narrowed to a single field.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	var field string

	cmd := &cobra.Command{
		Use:           "history <collection> <id>",
		Short:         "Reconstruct the history of one record",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			_, hist, cleanup, err := openHistory(rootOpts)
			if err != nil {
				return err
			}
			defer cleanup()

			if field != "" {
				changes, err := hist.FieldHistory(cmd.Context(), args[0], args[1], field, limit)
				if err != nil {
					_ = f.Error(failureCode(err), err.Error())
					return WrapExitError(ExitFailure, "history", err)
				}
				return outputFieldChanges(f, field, changes)
			}

			entries, err := hist.RecordHistory(cmd.Context(), args[0], args[1], limit)
			if err != nil {
				_ = f.Error(failureCode(err), err.Error())
				return WrapExitError(ExitFailure, "history", err)
			}
			return outputEntries(f, entries)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "max versions to scan (0 = all)")
	cmd.Flags().StringVar(&field, "field", "", "narrow to one field's transitions")
	return cmd
}

// NewTimelineCommand creates the timeline command.
func NewTimelineCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "timeline <collection>",
		Short:         "Track a collection's record count across versions",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			_, hist, cleanup, err := openHistory(rootOpts)
			if err != nil {
				return err
			}
			defer cleanup()

			timeline, err := hist.CollectionTimeline(cmd.Context(), args[0], limit)
			if err != nil {
				_ = f.Error(failureCode(err), err.Error())
				return WrapExitError(ExitFailure, "timeline", err)
			}
			if f.Format == "json" {
				return f.Success(timeline)
			}
			var b strings.Builder
			for _, entry := range timeline {
				fmt.Fprintf(&b, "%s  %s  count=%d (%+d)\n",
					shortToken(entry.Version.Token),
					entry.Version.Timestamp.Format(time.RFC3339),
					entry.Count, entry.Delta)
			}
			return f.Success(strings.TrimRight(b.String(), "\n"))
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "max versions to scan (0 = all)")
	return cmd
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Summarize the version log",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			_, hist, cleanup, err := openHistory(rootOpts)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := hist.Stats(cmd.Context())
			if err != nil {
				_ = f.Error(failureCode(err), err.Error())
				return WrapExitError(ExitFailure, "stats", err)
			}
			if f.Format == "json" {
				return f.Success(stats)
			}
			var b strings.Builder
			fmt.Fprintf(&b, "versions: %d\n", stats.TotalVersions)
			if stats.TotalVersions > 0 {
				fmt.Fprintf(&b, "first: %s\n", stats.First.Format(time.RFC3339))
				fmt.Fprintf(&b, "last: %s\n", stats.Last.Format(time.RFC3339))
				fmt.Fprintf(&b, "per day: %.2f\n", stats.AveragePerDay)
				for name, count := range stats.Authors {
					fmt.Fprintf(&b, "author %s: %d\n", name, count)
				}
			}
			return f.Success(strings.TrimRight(b.String(), "\n"))
		},
	}
}

// NewSearchCommand creates the search command over version metadata.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	var author, message, since, until string

	cmd := &cobra.Command{
		Use:           "search",
		Short:         "Search the version log by author, time, or message",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)

			filter := history.SearchFilter{Author: author, MessageContains: message}
			var err error
			if since != "" {
				if filter.Since, err = time.Parse(time.RFC3339, since); err != nil {
					return WrapExitError(ExitCommandError, "parse --since", err)
				}
			}
			if until != "" {
				if filter.Until, err = time.Parse(time.RFC3339, until); err != nil {
					return WrapExitError(ExitCommandError, "parse --until", err)
				}
			}

			_, hist, cleanup, err := openHistory(rootOpts)
			if err != nil {
				return err
			}
			defer cleanup()

			versions, err := hist.SearchVersions(cmd.Context(), filter)
			if err != nil {
				_ = f.Error(failureCode(err), err.Error())
				return WrapExitError(ExitFailure, "search", err)
			}
			return outputVersions(f, versions)
		},
	}

	cmd.Flags().StringVar(&author, "author", "", "author name or email")
	cmd.Flags().StringVar(&message, "message", "", "substring of the version message (case-insensitive)")
	cmd.Flags().StringVar(&since, "since", "", "RFC 3339 lower bound")
	cmd.Flags().StringVar(&until, "until", "", "RFC 3339 upper bound")
	return cmd
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "diff <token-a> <token-b>",
		Short:         "Compare two versions",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			_, hist, cleanup, err := openHistory(rootOpts)
			if err != nil {
				return err
			}
			defer cleanup()

			cmp, err := hist.Diff(cmd.Context(), args[0], args[1])
			if err != nil {
				_ = f.Error(failureCode(err), err.Error())
				return WrapExitError(ExitFailure, "diff", err)
			}
			if f.Format == "json" {
				return f.Success(cmp)
			}
			var b strings.Builder
			fmt.Fprintf(&b, "ahead %d, behind %d (total %d)\n", cmp.AheadBy, cmp.BehindBy, cmp.TotalCommits)
			for _, file := range cmp.Files {
				fmt.Fprintf(&b, "%s: %s\n", file.Path, file.Status)
			}
			return f.Success(strings.TrimRight(b.String(), "\n"))
		},
	}
}

// NewRevertCommand creates the revert command.
func NewRevertCommand(rootOpts *RootOptions) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:           "revert <token>",
		Short:         "Restore a historical version as a new version",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			_, hist, cleanup, err := openHistory(rootOpts)
			if err != nil {
				return err
			}
			defer cleanup()

			token, err := hist.Revert(cmd.Context(), args[0], message)
			if err != nil {
				_ = f.Error(failureCode(err), err.Error())
				return WrapExitError(ExitFailure, "revert", err)
			}
			return f.Success(fmt.Sprintf("reverted to %s as new version %s", shortToken(args[0]), shortToken(token)))
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "version message")
	return cmd
}

func outputVersions(f *OutputFormatter, versions []medium.VersionRecord) error {
	if f.Format == "json" {
		return f.Success(versions)
	}
	if len(versions) == 0 {
		return f.Success("(no versions)")
	}
	var b strings.Builder
	for _, v := range versions {
		fmt.Fprintf(&b, "%s  %s  %s  %s\n",
			shortToken(v.Token),
			v.Timestamp.Format(time.RFC3339),
			v.Author.Name,
			v.Message)
	}
	return f.Success(strings.TrimRight(b.String(), "\n"))
}

func outputEntries(f *OutputFormatter, entries []history.Entry) error {
	if f.Format == "json" {
		out := make([]map[string]any, len(entries))
		for i, entry := range entries {
			row := map[string]any{
				"version": entry.Version,
				"kind":    string(entry.Kind),
			}
			if entry.Record != nil {
				row["record"] = value.ToAny(value.Object(entry.Record))
			}
			out[i] = row
		}
		return f.Success(out)
	}
	if len(entries) == 0 {
		return f.Success("(no history)")
	}
	var b strings.Builder
	for _, entry := range entries {
		fmt.Fprintf(&b, "%s  %s  %s\n",
			shortToken(entry.Version.Token),
			entry.Version.Timestamp.Format(time.RFC3339),
			entry.Kind)
	}
	return f.Success(strings.TrimRight(b.String(), "\n"))
}

func outputFieldChanges(f *OutputFormatter, field string, changes []history.FieldChange) error {
	if f.Format == "json" {
		out := make([]map[string]any, len(changes))
		for i, change := range changes {
			row := map[string]any{"version": change.Version}
			if change.Old != nil {
				row["old"] = value.ToAny(change.Old)
			}
			if change.New != nil {
				row["new"] = value.ToAny(change.New)
			}
			out[i] = row
		}
		return f.Success(out)
	}
	if len(changes) == 0 {
		return f.Success("(no changes)")
	}
	var b strings.Builder
	for _, change := range changes {
		before, after := "(absent)", "(absent)"
		if change.Old != nil {
			before = renderValue(change.Old)
		}
		if change.New != nil {
			after = renderValue(change.New)
		}
		fmt.Fprintf(&b, "%s  %s: %s -> %s\n",
			shortToken(change.Version.Token), field, before, after)
	}
	return f.Success(strings.TrimRight(b.String(), "\n"))
}

func renderValue(v value.Value) string {
	b, err := value.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
