package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/NicolasHaas/linechat/pkg/logging"
	"github.com/NicolasHaas/linechat/pkg/server"
)

// options holds the command-line configuration of linechat-server.
type options struct {
	server.Config

	ConfigFile   string // YAML file overlaid before explicit flags
	LogLevel     string
	LogFormat    string
	ExportEvents bool // print the audit log as YAML and exit
	ShowVersion  bool

	fs *pflag.FlagSet // consulted in complete() to find explicitly set flags
}

func newOptions() *options {
	return &options{
		Config:    server.DefaultConfig(),
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// addFlags binds the option fields to fs.
func (o *options) addFlags(fs *pflag.FlagSet) {
	o.fs = fs

	fs.StringVar(&o.Addr, "addr", o.Addr, "TCP bind address for chat clients")
	fs.StringVar(&o.MetricsAddr, "metrics", o.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	fs.StringVar(&o.DBPath, "db", o.DBPath, "SQLite presence audit log path (empty to disable)")
	fs.StringVarP(&o.ConfigFile, "config", "c", "", "YAML config file; explicit flags take precedence")
	fs.DurationVar(&o.IdleTimeout, "idle-timeout", o.IdleTimeout, "Drop connections silent for this long")
	fs.Int64Var(&o.MaxConnections, "max-connections", o.MaxConnections, "Connections handled concurrently; extra ones wait")
	fs.IntVar(&o.LoginAttempts, "login-attempts", o.LoginAttempts, "Failed LOGIN lines before disconnect")
	fs.DurationVar(&o.ShutdownGrace, "shutdown-grace", o.ShutdownGrace, "Wait this long for handlers on shutdown")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level: "+logging.LevelNames())
	fs.StringVar(&o.LogFormat, "log-format", o.LogFormat, "Log format: text or json")
	fs.BoolVar(&o.ExportEvents, "export-events", false, "Export the presence audit log as YAML and exit")
	fs.BoolVar(&o.ShowVersion, "version", false, "Print version and exit")
}

// complete overlays the config file and the optional positional port onto
// the parsed flags. Flags set explicitly on the command line win over the
// file. An invalid port argument is logged and ignored.
func (o *options) complete(args []string) error {
	if o.ConfigFile != "" {
		fileCfg := server.DefaultConfig()
		if err := server.LoadConfigFile(o.ConfigFile, &fileCfg); err != nil {
			return err
		}
		o.applyFile(fileCfg)
	}

	if len(args) > 1 {
		return fmt.Errorf("unexpected arguments %q: at most one port may be given", args)
	}
	if len(args) == 1 {
		addr, err := server.AddrForPort(args[0])
		if err != nil {
			slog.Warn("ignoring port argument", "err", err, "addr", o.Addr)
		} else {
			o.Addr = addr
		}
	}
	return nil
}

// applyFile copies every field whose flag was not set explicitly.
func (o *options) applyFile(file server.Config) {
	changed := func(name string) bool {
		f := o.fs.Lookup(name)
		return f != nil && f.Changed
	}
	if !changed("addr") {
		o.Addr = file.Addr
	}
	if !changed("metrics") {
		o.MetricsAddr = file.MetricsAddr
	}
	if !changed("db") {
		o.DBPath = file.DBPath
	}
	if !changed("idle-timeout") {
		o.IdleTimeout = file.IdleTimeout
	}
	if !changed("max-connections") {
		o.MaxConnections = file.MaxConnections
	}
	if !changed("login-attempts") {
		o.LoginAttempts = file.LoginAttempts
	}
	if !changed("shutdown-grace") {
		o.ShutdownGrace = file.ShutdownGrace
	}
	o.WriteTimeout = file.WriteTimeout
	o.SendQueueSize = file.SendQueueSize
}
