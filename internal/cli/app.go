package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/snapdoc/snapdoc/internal/codec"
	"github.com/snapdoc/snapdoc/internal/config"
	"github.com/snapdoc/snapdoc/internal/engine"
	"github.com/snapdoc/snapdoc/internal/errs"
	"github.com/snapdoc/snapdoc/internal/history"
	"github.com/snapdoc/snapdoc/internal/lock"
	"github.com/snapdoc/snapdoc/internal/logger"
	"github.com/snapdoc/snapdoc/internal/medium"
	"github.com/snapdoc/snapdoc/internal/schema"
	"github.com/snapdoc/snapdoc/internal/seal"
	"github.com/snapdoc/snapdoc/internal/value"
)

// app bundles everything a command needs at runtime.
type app struct {
	cfg config.Config
	txn *engine.Engine
	log *logger.Logger
}

// openApp loads the configuration and assembles the transaction engine.
// The returned cleanup must run before the command exits.
func openApp(opts *RootOptions) (*app, func(), error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load config", err)
	}

	log := logger.Default()
	if opts.Verbose {
		log.SetLevel(logger.LevelDebug)
	} else {
		log.SetLevel(logger.LevelWarn)
	}

	var store medium.Medium
	switch cfg.Store.Medium {
	case "file":
		store = medium.NewFile(cfg.Store.Path, log)
	case "sqlite":
		store, err = medium.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "open store", err)
		}
	default:
		return nil, nil, WrapExitError(ExitCommandError,
			fmt.Sprintf("unknown medium %q", cfg.Store.Medium), nil)
	}

	cdc, err := codec.New(cfg.Store.Codec)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "codec", err)
	}
	sealer, err := seal.New(cfg.Encryption.Key)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "encryption", err)
	}

	var validator *schema.Validator
	if cfg.Schema.Dir != "" {
		validator, err = schema.Load(cfg.Schema.Dir)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "load schemas", err)
		}
	}

	locker := lock.New(cfg.LockPath(), lock.Options{
		MaxRetries: cfg.Lock.MaxRetries,
		Backoff:    cfg.Lock.Backoff.Std(),
		StaleAfter: cfg.Lock.StaleAfter.Std(),
	}, log)

	txn, err := engine.New(engine.Options{
		Medium:    store,
		Codec:     cdc,
		Locker:    locker,
		Sealer:    sealer,
		Validator: validator,
		Log:       log,
		Author:    medium.Author{Name: cfg.Author.Name, Email: cfg.Author.Email},
		CacheTTL:  cfg.Cache.TTL.Std(),
		CacheSize: cfg.Cache.Size,
		BackupDir: cfg.Backup.Dir,
	})
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open engine", err)
	}

	a := &app{cfg: cfg, txn: txn, log: log}
	return a, func() { _ = txn.Close() }, nil
}

// openHistory additionally wires the history engine; it fails on a
// medium without a version log.
func openHistory(opts *RootOptions) (*app, *history.Engine, func(), error) {
	a, cleanup, err := openApp(opts)
	if err != nil {
		return nil, nil, nil, err
	}
	hist, err := history.New(a.txn, a.cfg.History.Workers, a.log)
	if err != nil {
		cleanup()
		return nil, nil, nil, WrapExitError(ExitCommandError, "history", err)
	}
	return a, hist, cleanup, nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// failureCode maps engine errors to stable CLI error codes.
func failureCode(err error) string {
	switch {
	case errs.IsValidation(err):
		return "E_VALIDATION"
	case errs.IsFormat(err):
		return "E_FORMAT"
	case errors.Is(err, errs.ErrNotFound):
		return "E_NOT_FOUND"
	case errors.Is(err, errs.ErrVersionConflict):
		return "E_CONFLICT"
	case errors.Is(err, errs.ErrLockTimeout):
		return "E_LOCK_TIMEOUT"
	case errors.Is(err, errs.ErrIntegrity):
		return "E_INTEGRITY"
	}
	return "E_GENERIC"
}

// parseFields decodes a JSON object argument into record fields.
func parseFields(raw string) (value.Object, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var decoded map[string]any
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("fields must be a JSON object: %w", err)
	}
	v, err := value.FromAny(decoded)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(value.Object)
	if !ok {
		return nil, fmt.Errorf("fields must be a JSON object")
	}
	return obj, nil
}

// renderRecord renders a record as pretty JSON for text output.
func renderRecord(rec value.Record) string {
	b, err := value.MarshalCanonical(value.Object(rec))
	if err != nil {
		return fmt.Sprintf("%v", rec)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "  "); err != nil {
		return string(b)
	}
	return buf.String()
}

func configExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
