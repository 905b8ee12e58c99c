// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

// Package secrets keeps credentials such as embedding API keys out of the
// config file. Config values of the form keyring://service/key are resolved
// against a Store after loading.
package secrets

// DefaultService is the keyring service docsearch stores its secrets under.
const DefaultService = "docsearch"

// Store provides secure secret storage operations.
type Store interface {
	// Store saves a secret value under the given service and key.
	Store(service, key, value string) error

	// Retrieve fetches the secret value for the given service and key.
	// A missing key yields dserr.CodeSecretNotFound.
	Retrieve(service, key string) (string, error)

	// Delete removes the secret for the given service and key.
	// A missing key yields dserr.CodeSecretNotFound.
	Delete(service, key string) error

	// List returns all key names stored under the given service.
	List(service string) ([]string, error)
}
