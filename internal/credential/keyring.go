// Package credential resolves the IMAP password from the OS keyring when it
// is not present in the configuration file.
package credential

import (
	"fmt"

	"github.com/99designs/keyring"
)

// Key returns the keyring key under which the password for user is stored.
func Key(user string) string {
	return "imap:" + user
}

// Open returns the keyring for the given service name.
func Open(service string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/" + service + "/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt(service + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Password reads the IMAP password for user from ring.
func Password(ring keyring.Keyring, user string) (string, error) {
	item, err := ring.Get(Key(user))
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", Key(user), err)
	}
	if len(item.Data) == 0 {
		return "", fmt.Errorf("credential %q is empty", Key(user))
	}
	return string(item.Data), nil
}

// Resolve returns configured when it is set. Otherwise it looks the password
// up in the keyring of service. An empty service with no configured password
// is an error.
func Resolve(configured, service, user string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if service == "" {
		return "", fmt.Errorf("no password configured for %s and no keyring service set", user)
	}
	ring, err := Open(service)
	if err != nil {
		return "", err
	}
	return Password(ring, user)
}
