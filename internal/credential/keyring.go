// Package credential keeps secrets (the remote API token, the SMTP
// password) in the OS keyring, with environment overrides for headless
// hosts.
package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "reminders"

// Well-known credential keys.
const (
	// RemoteToken is the bearer token for the remote event service.
	RemoteToken = "remote-token"
	// SMTPPassword authenticates against the SMS email gateway relay.
	SMTPPassword = "smtp-password"
)

// ErrNotFound indicates no credential is stored under the key.
var ErrNotFound = keyring.ErrKeyNotFound

// Dir is where the file backend keeps encrypted credentials.
var Dir = filepath.Join("~", ".config", "reminders", "credentials")

// Backends lists the keyring backends to try, in order. Setting
// REMINDERS_KEYRING_BACKEND=file restricts it to the encrypted file store.
var Backends = []keyring.BackendType{
	keyring.KeychainBackend,
	keyring.SecretServiceBackend,
	keyring.WinCredBackend,
	keyring.PassBackend,
	keyring.FileBackend,
}

// EnvName returns the environment variable that overrides key, e.g.
// REMINDERS_REMOTE_TOKEN.
func EnvName(key string) string {
	return "REMINDERS_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

func allowedBackends() []keyring.BackendType {
	if b := strings.TrimSpace(os.Getenv("REMINDERS_KEYRING_BACKEND")); b != "" {
		return []keyring.BackendType{keyring.BackendType(b)}
	}
	return Backends
}

func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:              serviceName,
		AllowedBackends:          allowedBackends(),
		FileDir:                  Dir,
		FilePasswordFunc:         keyring.FixedStringPrompt("reminders-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential from the keyring. The environment override
// is not consulted; see Lookup.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Lookup returns the environment override for key if set, else the
// keyring value. A missing key is reported as ("", nil).
func Lookup(key string) (string, error) {
	if v := os.Getenv(EnvName(key)); v != "" {
		return v, nil
	}
	value, err := Get(key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return value, err
}

// Set stores a credential in the keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "reminders " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential from the keyring. Removing a missing key
// reports ErrNotFound.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if errors.Is(err, os.ErrNotExist) {
		err = ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}
