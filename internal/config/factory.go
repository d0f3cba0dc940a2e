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

package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/backend/software"
	"github.com/jeremyhahn/go-enclave/pkg/backend/tpm2"
	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/storage"
	"github.com/jeremyhahn/go-enclave/pkg/storage/bolt"
	"github.com/jeremyhahn/go-enclave/pkg/storage/file"
	"github.com/jeremyhahn/go-enclave/pkg/storage/memory"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// NewLogger returns a logger for the logging section.
func (c *Config) NewLogger() *logging.Logger {
	return logging.New(logging.Options{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
	})
}

// NewSecureElement opens the configured secure element.
func (c *Config) NewSecureElement(logger *logging.Logger) (backend.SecureElement, error) {
	switch types.BackendType(c.Backend.Type) {
	case types.BackendTypeSoftware:
		secret, err := c.masterSecret()
		if err != nil {
			return nil, err
		}
		return software.NewBackend(&software.Config{
			MasterSecret: secret,
			ElementID:    c.Backend.Software.ElementID,
			Logger:       logger,
		})
	case types.BackendTypePKCS11:
		return newPKCS11(&c.Backend.PKCS11, logger)
	case types.BackendTypeTPM2:
		return tpm2.NewBackend(&tpm2.Config{
			Device:       c.Backend.TPM2.Device,
			UseSimulator: c.Backend.TPM2.Simulator,
			Logger:       logger,
		})
	default:
		return nil, fmt.Errorf("%w: unknown backend type %q", ErrInvalidConfig, c.Backend.Type)
	}
}

// NewStorage opens the configured credential store backend.
func (c *Config) NewStorage() (storage.Backend, error) {
	switch c.Storage.Type {
	case StorageMemory:
		return memory.New(), nil
	case StorageFile:
		return file.New(c.Storage.Path)
	case StorageBolt:
		if err := os.MkdirAll(filepath.Dir(c.Storage.Path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		return bolt.Open(c.Storage.Path, &bolt.Options{Timeout: 5 * time.Second, Mode: 0600})
	default:
		return nil, fmt.Errorf("%w: unknown storage type %q", ErrInvalidConfig, c.Storage.Type)
	}
}

// secretFs holds the software master secret file.
var secretFs = afero.NewOsFs()

// masterSecret returns the configured software master secret, creating the
// secret file with random content on first use. A file that could not be
// written completely is removed.
func (c *Config) masterSecret() ([]byte, error) {
	sw := c.Backend.Software
	if sw.MasterSecretFile == "" {
		return software.ParseMasterSecret(sw.MasterSecret)
	}

	secret, err := afero.ReadFile(secretFs, sw.MasterSecretFile)
	if err == nil {
		if len(secret) < software.MinMasterSecretSize {
			return nil, fmt.Errorf("%w: master secret file %s is too short",
				ErrInvalidConfig, sw.MasterSecretFile)
		}
		return secret, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read master secret: %w", err)
	}

	secret = make([]byte, software.MinMasterSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate master secret: %w", err)
	}
	if err := secretFs.MkdirAll(filepath.Dir(sw.MasterSecretFile), 0700); err != nil {
		return nil, fmt.Errorf("failed to create master secret directory: %w", err)
	}
	f, err := secretFs.OpenFile(sw.MasterSecretFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0400)
	if err != nil {
		return nil, fmt.Errorf("failed to create master secret: %w", err)
	}
	if _, err := f.Write(secret); err != nil {
		_ = f.Close()
		_ = secretFs.Remove(sw.MasterSecretFile)
		return nil, fmt.Errorf("failed to write master secret: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = secretFs.Remove(sw.MasterSecretFile)
		return nil, fmt.Errorf("failed to write master secret: %w", err)
	}
	return secret, nil
}
