package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/NicolasHaas/linechat/pkg/datastore"
	"github.com/NicolasHaas/linechat/pkg/logging"
	"github.com/NicolasHaas/linechat/pkg/server"
	"github.com/NicolasHaas/linechat/pkg/version"
)

func main() {
	opts := newOptions()
	fs := pflag.NewFlagSet("linechat-server", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: linechat-server [flags] [port]\n\n")
		fs.PrintDefaults()
	}
	opts.addFlags(fs)
	_ = fs.Parse(os.Args[1:])

	if opts.ShowVersion {
		fmt.Println(version.Banner("linechat-server"))
		return
	}

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  opts.LogLevel,
		Format: opts.LogFormat,
		Output: os.Stderr,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	if err := opts.complete(fs.Args()); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// Handle export command (run and exit)
	if opts.ExportEvents {
		if err := exportEvents(opts.DBPath); err != nil {
			slog.Error("export events", "err", err)
			os.Exit(1)
		}
		return
	}

	var deps server.Dependencies
	if opts.DBPath != "" {
		st, err := datastore.NewSQLStore(opts.DBPath)
		if err != nil {
			slog.Error("open database", "err", err)
			os.Exit(1)
		}
		deps.Events = st
	}

	srv := server.New(opts.Config, deps)
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

func exportEvents(dbPath string) error {
	if dbPath == "" {
		return fmt.Errorf("--export-events requires --db")
	}
	st, err := datastore.NewSQLStore(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	data, err := datastore.ExportEventsYAML(context.Background(), st)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
