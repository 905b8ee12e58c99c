// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

const defaultHeader = `# docsearch configuration.
# Every key can be overridden with a DOCSEARCH_ environment variable,
# e.g. DOCSEARCH_INDEX_PATH or DOCSEARCH_EMBEDDING_API_KEY.
# embedding.api_key accepts keyring://docsearch/<key> references.
`

// DefaultConfigYAML renders the built-in defaults as a commented YAML file.
func DefaultConfigYAML() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(defaultHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Defaults()); err != nil {
		return nil, dserr.Errorf(dserr.CodeInternalFailure, "encoding default config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, dserr.Errorf(dserr.CodeInternalFailure, "encoding default config: %w", err)
	}
	return buf.Bytes(), nil
}

// DefaultConfigPath returns ~/.config/docsearch/docsearch.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", dserr.Errorf(dserr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "docsearch", "docsearch.yaml"), nil
}

// WriteDefault writes the default config to path. It returns false if the
// file already exists.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, dserr.Errorf(dserr.CodeConfigLoadReadFailure, "checking %s: %w", path, err)
	}

	data, err := DefaultConfigYAML()
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, dserr.Errorf(dserr.CodeConfigLoadReadFailure, "creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return false, dserr.Errorf(dserr.CodeConfigLoadReadFailure, "writing config %s: %w", path, err)
	}
	return true, nil
}

// BootstrapConfig writes the default config to DefaultConfigPath if it does
// not already exist. Returns the path written, or empty string if the file
// already existed or an error occurred (non-fatal, logged and skipped).
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}

	written, err := WriteDefault(cfgPath)
	if err != nil {
		slog.Debug("skipping config bootstrap", "path", cfgPath, "error", err)
		return ""
	}
	if !written {
		return ""
	}

	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}
