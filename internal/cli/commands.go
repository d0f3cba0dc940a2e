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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-enclave/pkg/bridge"
	"github.com/jeremyhahn/go-enclave/pkg/health"
)

// dataFlags selects the payload of encrypt, sign and verify.
type dataFlags struct {
	data string
	in   string
}

func (f *dataFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.data, "data", "", "payload as a string")
	cmd.Flags().StringVar(&f.in, "in", "", "read the payload from a file")
	cmd.MarkFlagsMutuallyExclusive("data", "in")
	cmd.MarkFlagsOneRequired("data", "in")
}

func (f *dataFlags) read() ([]byte, error) {
	if f.in == "" {
		return []byte(f.data), nil
	}
	// #nosec G304 - path is provided by the user
	data, err := os.ReadFile(f.in)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.in, err)
	}
	return data, nil
}

func newInitCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Check that the configured secure element is available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "init", func(b *bridge.Bridge) bridge.Result {
				if !b.Initialized() {
					return bridge.Result{Failed: true, Message: bridge.ErrorPrefix + "secure element is not available"}
				}
				return bridge.Result{Message: "secure element is available"}
			})
		},
	}
}

func newHealthCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run readiness checks against the secure element and storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBridge(opts)
			if err != nil {
				return err
			}
			results := b.Health(cmd.Context())
			if err := b.Close(); err != nil {
				return err
			}
			printer := NewPrinter(opts.OutputFormat, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err := printer.PrintHealth(results); err != nil {
				return err
			}
			if health.AggregateStatus(results) == health.StatusUnhealthy {
				return errFailed
			}
			return nil
		},
	}
}

func newKeyCommand(opts *Options) *cobra.Command {
	key := &cobra.Command{
		Use:   "key",
		Short: "Create and load keys",
	}
	key.AddCommand(&cobra.Command{
		Use:     "create <id> <TYPE;SIZE>",
		Short:   "Create a key pair in the secure element",
		Example: `  enclave key create device-1 "ECDSA;256"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "create", func(b *bridge.Bridge) bridge.Result {
				return b.CreateKey(args[0], args[1])
			})
		},
	})
	key.AddCommand(&cobra.Command{
		Use:   "load <id> <type> <hash>",
		Short: "Load a key and print its fingerprint",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "load", func(b *bridge.Bridge) bridge.Result {
				return b.LoadKey(args[0], args[1], args[2])
			})
		},
	})
	return key
}

func newEncryptCommand(opts *Options) *cobra.Command {
	var flags dataFlags
	cmd := &cobra.Command{
		Use:     "encrypt <id> <type> <hash>",
		Short:   "Encrypt a payload and print the base64 ciphertext",
		Example: `  enclave encrypt test-rsa-1 RSA SHA256 --data secret`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := flags.read()
			if err != nil {
				return err
			}
			return run(cmd, opts, "encrypt", func(b *bridge.Bridge) bridge.Result {
				return b.Encrypt(args[0], data, args[1], args[2])
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newDecryptCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <id> <type> <hash> <ciphertext>",
		Short: "Decrypt a base64 ciphertext",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "decrypt", func(b *bridge.Bridge) bridge.Result {
				return b.Decrypt(args[0], []byte(args[3]), args[1], args[2])
			})
		},
	}
}

func newSignCommand(opts *Options) *cobra.Command {
	var flags dataFlags
	cmd := &cobra.Command{
		Use:     "sign <id> <type> <hash>",
		Short:   "Sign a payload and print the base64 signature",
		Example: `  enclave sign test-ec-1 ECDSA SHA256 --data hello`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := flags.read()
			if err != nil {
				return err
			}
			return run(cmd, opts, "sign", func(b *bridge.Bridge) bridge.Result {
				return b.Sign(args[0], data, args[1], args[2])
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newVerifyCommand(opts *Options) *cobra.Command {
	var flags dataFlags
	cmd := &cobra.Command{
		Use:   "verify <id> <type> <hash> <signature>",
		Short: "Verify a base64 signature and print true or false",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := flags.read()
			if err != nil {
				return err
			}
			return run(cmd, opts, "verify", func(b *bridge.Bridge) bridge.Result {
				return b.Verify(args[0], data, []byte(args[3]), args[1], args[2])
			})
		},
	}
	flags.register(cmd)
	return cmd
}
