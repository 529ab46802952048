package creds

import (
	"errors"
	"runtime"

	"github.com/zalando/go-keyring"
)

// ErrUnsupportedPlatform means a keychain operation was attempted on an
// OS other than macOS. The platform cookie jar lives in the macOS
// Keychain; other hosts must supply credentials via the environment.
var ErrUnsupportedPlatform = errors.New("keychain storage is only supported on macOS")

// ErrKeychainNotFound means the requested entry does not exist.
var ErrKeychainNotFound = errors.New("keychain entry not found")

// Keychain is the minimal secret-store surface the credential store
// needs. Tests substitute an in-memory implementation.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
	Delete(service, account string) error
}

// SystemKeychain backs the Keychain interface with the macOS Keychain.
type SystemKeychain struct{}

func (SystemKeychain) Get(service, account string) (string, error) {
	if runtime.GOOS != "darwin" {
		return "", ErrUnsupportedPlatform
	}
	v, err := keyring.Get(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrKeychainNotFound
	}
	return v, err
}

func (SystemKeychain) Set(service, account, value string) error {
	if runtime.GOOS != "darwin" {
		return ErrUnsupportedPlatform
	}
	return keyring.Set(service, account, value)
}

func (SystemKeychain) Delete(service, account string) error {
	if runtime.GOOS != "darwin" {
		return ErrUnsupportedPlatform
	}
	err := keyring.Delete(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrKeychainNotFound
	}
	return err
}
