// Package main provides the oarq CLI entry point.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/libsys/oarequest/internal/config"
	"github.com/libsys/oarequest/internal/elements"
	"github.com/libsys/oarequest/internal/record"
)

// Version is set at build time via ldflags
var Version = "dev"

// verbose controls debug-level logging
var verbose bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "oarq",
	Short: "Open-access email request importer",
	Long: `oarq imports an author's bibliographic metadata from the Symplectic
Elements API, filters publications against the open-access request policy,
and records qualifying authors and publications in a local database for the
email-request workflow.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level instead of info")
	rootCmd.Version = Version
}

// newLogger builds the logger injected into every pipeline component.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newClient builds the Elements API client from configuration.
func newClient(cfg *config.Config, logger *slog.Logger) *elements.Client {
	opts := []elements.Option{
		elements.WithCredentials(cfg.ElementsUser, cfg.ElementsPassword),
		elements.WithTimeout(cfg.Timeout),
		elements.WithLogger(logger),
	}
	if cfg.ProxyURL != "" {
		opts = append(opts, elements.WithProxy(cfg.ProxyURL))
	}
	return elements.NewClient(cfg.ElementsEndpoint, opts...)
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	var mf *record.MissingFieldError
	var se *elements.StatusError
	switch {
	case errors.Is(err, config.ErrMissingSettings):
		return ExitConfigError
	case errors.As(err, &mf), errors.As(err, &se):
		return ExitDataError
	default:
		return ExitError
	}
}
