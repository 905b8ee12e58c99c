// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package secrets_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/ngoquytuan/chatbotdangcap/internal/secrets"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

func init() {
	// Keep tests off the real OS keyring.
	keyring.MockInit()
}

func TestKeyringStore_StoreAndRetrieve(t *testing.T) {
	ks := secrets.NewKeyringStore()

	require.NoError(t, ks.Store("test-roundtrip", "openai", "sk-secret-123"))

	val, err := ks.Retrieve("test-roundtrip", "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret-123", val)
}

func TestKeyringStore_NotFound(t *testing.T) {
	ks := secrets.NewKeyringStore()

	_, err := ks.Retrieve("no-such-service", "no-key")
	require.Error(t, err)
	assert.True(t, dserr.HasCode(err, dserr.CodeSecretNotFound))
	assert.True(t, dserr.IsNotFound(err))

	err = ks.Delete("no-such-service", "no-key")
	require.Error(t, err)
	assert.True(t, dserr.HasCode(err, dserr.CodeSecretNotFound))
}

func TestKeyringStore_DeleteUpdatesList(t *testing.T) {
	ks := secrets.NewKeyringStore()
	svc := "test-delete"

	keys, err := ks.List(svc)
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, ks.Store(svc, "openai", "a"))
	require.NoError(t, ks.Store(svc, "google", "b"))
	require.NoError(t, ks.Store(svc, "openai", "c"))

	keys, err = ks.List(svc)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"openai", "google"}, keys)

	require.NoError(t, ks.Delete(svc, "openai"))
	keys, err = ks.List(svc)
	require.NoError(t, err)
	assert.Equal(t, []string{"google"}, keys)

	_, err = ks.Retrieve(svc, "openai")
	assert.True(t, dserr.HasCode(err, dserr.CodeSecretNotFound))

	require.NoError(t, ks.Delete(svc, "google"))
	keys, err = ks.List(svc)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestKeyringStore_InvalidInput(t *testing.T) {
	ks := secrets.NewKeyringStore()

	tests := []struct {
		name    string
		service string
		key     string
	}{
		{"empty service", "", "key"},
		{"empty key", "svc", ""},
		{"reserved index key", "svc", "svc::keys-index"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ks.Store(tt.service, tt.key, "v")
			require.Error(t, err)
			assert.True(t, dserr.HasCode(err, dserr.CodeSecretInvalidInput))
		})
	}

	_, err := ks.List("")
	assert.True(t, dserr.HasCode(err, dserr.CodeSecretInvalidInput))
}

func TestKeyringStore_EmptyValueAllowed(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Store("test-empty", "k", ""))

	val, err := ks.Retrieve("test-empty", "k")
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestKeyringStore_ImplementsStoreInterface(t *testing.T) {
	var _ secrets.Store = secrets.NewKeyringStore()
}
