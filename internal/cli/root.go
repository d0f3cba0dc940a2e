// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-enclave.
//
// go-enclave is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-enclave/internal/config"
	"github.com/jeremyhahn/go-enclave/pkg/bridge"
	"github.com/jeremyhahn/go-enclave/pkg/metrics"
)

// errFailed is returned by a command whose bridge result failed. The
// diagnostic has already been printed.
var errFailed = errors.New("operation failed")

// Options holds the global flags.
type Options struct {
	// ConfigFile is the path to the configuration file. ENCLAVE_CONFIG is
	// used when empty.
	ConfigFile string

	// OutputFormat is text or json
	OutputFormat string

	// Verbose enables debug logging
	Verbose bool
}

// NewRootCommand returns the enclave command tree.
func NewRootCommand() *cobra.Command {
	opts := &Options{}
	root := &cobra.Command{
		Use:   "enclave",
		Short: "Hardware-backed key operations",
		Long: `enclave creates keys inside a secure element and uses them to
encrypt, decrypt, sign and verify without the private key ever leaving
the element.

Supported secure elements:
  - software: in-process element, key references sealed under a master secret
  - pkcs11:   PKCS#11 token or HSM (build with -tags pkcs11)
  - tpm2:     TPM 2.0 device or simulator`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.ConfigFile, "config", "",
		"config file (default $ENCLAVE_CONFIG)")
	root.PersistentFlags().StringVarP(&opts.OutputFormat, "output", "o", "text",
		"output format (text, json)")
	root.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"verbose output")

	root.AddCommand(newVersionCommand(opts))
	root.AddCommand(newInitCommand(opts))
	root.AddCommand(newHealthCommand(opts))
	root.AddCommand(newKeyCommand(opts))
	root.AddCommand(newEncryptCommand(opts))
	root.AddCommand(newDecryptCommand(opts))
	root.AddCommand(newSignCommand(opts))
	root.AddCommand(newVerifyCommand(opts))
	return root
}

// Execute runs the root command
func Execute() error {
	err := NewRootCommand().Execute()
	if err != nil && !errors.Is(err, errFailed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// openBridge builds a Bridge from the configuration and initializes it.
// An unavailable element is not an error here: creating keys reports it.
func openBridge(opts *Options) (*bridge.Bridge, error) {
	path := opts.ConfigFile
	if path == "" {
		path = os.Getenv("ENCLAVE_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	logger := cfg.NewLogger()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
	}

	se, err := cfg.NewSecureElement(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open secure element: %w", err)
	}
	store, err := cfg.NewStorage()
	if err != nil {
		_ = se.Close()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	b, err := bridge.New(&bridge.Config{
		SecureElement: se,
		Storage:       store,
		Metrics:       m,
		Logger:        logger,
	})
	if err != nil {
		_ = se.Close()
		_ = store.Close()
		return nil, err
	}
	if !b.InitializeModule() {
		logger.Warnf("%s secure element is not available", cfg.Backend.Type)
	}
	return b, nil
}

// run opens a Bridge, runs op against it and prints the result.
func run(cmd *cobra.Command, opts *Options, name string, op func(*bridge.Bridge) bridge.Result) error {
	b, err := openBridge(opts)
	if err != nil {
		return err
	}
	result := op(b)
	if err := b.Close(); err != nil {
		return err
	}
	printer := NewPrinter(opts.OutputFormat, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err := printer.PrintResult(name, result); err != nil {
		return err
	}
	if result.Failed {
		return errFailed
	}
	return nil
}
