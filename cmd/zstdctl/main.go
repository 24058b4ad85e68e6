// Package main implements zstdctl, a small administrative CLI around the
// enable/disable/columns/stats lifecycle functions (spec §9's "the CLI
// loader" is named out of scope for the core, but the admin surface it
// implies is not). It uses cobra for command dispatch and an optional TOML
// config file for defaults, matching the teacher's CLI conventions.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/brianmacy/sqlite-zstd/driver"
	"github.com/brianmacy/sqlite-zstd/lifecycle"
)

// config is the optional TOML file format (default path flag --config):
// defaults for --dsn and --level so repeated invocations against the same
// database don't need to repeat them.
type config struct {
	DSN   string `toml:"dsn"`
	Level int    `toml:"level"`
}

type rootFlags struct {
	dsn        string
	configPath string
	level      int
}

func main() {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:   "zstdctl",
		Short: "Administer zstd-compressed SQLite tables",
	}
	rootCmd.PersistentFlags().StringVar(&flags.dsn, "dsn", "", "path to the SQLite database file")
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "optional TOML config file providing dsn/level defaults")
	rootCmd.PersistentFlags().IntVar(&flags.level, "level", 0, "default zstd compression level (1-22); 0 selects the built-in default")

	rootCmd.AddCommand(enableCmd(flags))
	rootCmd.AddCommand(disableCmd(flags))
	rootCmd.AddCommand(columnsCmd(flags))
	rootCmd.AddCommand(statsCmd(flags))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func enableCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <table> [column...]",
		Short: "Compress a table, renaming it behind a zstd virtual table",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			db, err := openFromFlags(flags)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			if err := lifecycle.Enable(context.Background(), db, args[0], args[1:]); err != nil {
				return err
			}
			fmt.Printf("enabled compression on %s\n", args[0])
			return nil
		},
	}
}

func disableCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <table> [column...]",
		Short: "Reverse enable, decompressing and restoring the original table",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			db, err := openFromFlags(flags)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			if err := lifecycle.Disable(context.Background(), db, args[0], args[1:]); err != nil {
				return err
			}
			fmt.Printf("disabled compression on %s\n", args[0])
			return nil
		},
	}
}

func columnsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "columns <table>",
		Short: "List the compressed columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			db, err := openFromFlags(flags)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			cols, err := lifecycle.Columns(context.Background(), db, args[0])
			if err != nil {
				return err
			}
			fmt.Println(cols)
			return nil
		},
	}
}

func statsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <table>",
		Short: "Report stored vs. original byte totals per compressed column",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			db, err := openFromFlags(flags)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			report, err := lifecycle.Stats(context.Background(), db, args[0])
			if err != nil {
				return err
			}
			fmt.Println(report)
			return nil
		},
	}
}

// openFromFlags resolves dsn/level (flags override config file values, per
// cobra's usual precedence), registers the driver once, and opens the
// database.
func openFromFlags(flags *rootFlags) (*sql.DB, error) {
	dsn, level := flags.dsn, flags.level
	if flags.configPath != "" {
		var cfg config
		if _, err := toml.DecodeFile(flags.configPath, &cfg); err != nil {
			return nil, fmt.Errorf("zstdctl: read config %s: %w", flags.configPath, err)
		}
		if dsn == "" {
			dsn = cfg.DSN
		}
		if level == 0 {
			level = cfg.Level
		}
	}
	if dsn == "" {
		return nil, fmt.Errorf("zstdctl: --dsn (or a config file's dsn) is required")
	}

	driver.Register(driver.Options{Level: level})
	return driver.Open(dsn)
}
