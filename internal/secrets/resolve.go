// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package secrets

import (
	"errors"
	"strings"

	"github.com/spf13/viper"

	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

const keyringScheme = "keyring://"

// IsKeyringURI reports whether value uses the keyring:// URI scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// URI builds the keyring reference for key under DefaultService.
func URI(key string) string {
	return keyringScheme + DefaultService + "/" + key
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", dserr.Errorf(dserr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	service, key, ok := strings.Cut(strings.TrimPrefix(uri, keyringScheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", dserr.Errorf(dserr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return service, key, nil
}

// ResolveKeyringURI resolves a single keyring:// URI to its secret value.
// Other values are returned unchanged.
func ResolveKeyringURI(store Store, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Retrieve(service, key)
	if err != nil {
		return "", dserr.Wrapf(err, dserr.CodeSecretResolveFailure, "resolving keyring URI %q", value)
	}
	return secret, nil
}

// ResolveViperSecrets replaces every keyring:// string value in v with the
// secret it names. Values that fail to resolve are left in place and
// reported together in the returned error.
func ResolveViperSecrets(v *viper.Viper, store Store) error {
	var errs []error
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsKeyringURI(val) {
			continue
		}

		resolved, err := ResolveKeyringURI(store, val)
		if err != nil {
			errs = append(errs, dserr.Wrapf(err, dserr.CodeSecretResolveFailure, "config key %s (%s)", key, val))
			continue
		}
		v.Set(key, resolved)
	}
	if len(errs) > 0 {
		return dserr.Wrap(errors.Join(errs...), dserr.CodeSecretResolveFailure, "resolving config secrets")
	}
	return nil
}
