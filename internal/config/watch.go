package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
)

// Watch reloads cfgFile whenever it changes and passes every valid result to
// onChange. Invalid files are logged and ignored. It returns when ctx is done.
//
// The directory is watched rather than the file so that editors replacing the
// file are noticed.
func Watch(ctx context.Context, cfgFile string, flags *pflag.FlagSet, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	abs, err := filepath.Abs(cfgFile)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(abs, flags)
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				slog.WarnContext(ctx, "Ignoring invalid config change", "file", abs, "err", err)
				continue
			}
			slog.InfoContext(ctx, "Config reloaded", "file", abs)
			onChange(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "Error watching config", "err", err)
		}
	}
}
