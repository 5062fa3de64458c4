package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Credentials holds bearer tokens outside the settings file so settings
// can be shared or checked in without leaking secrets.
type Credentials struct {
	Tokens map[string]string `json:"tokens"` // provider ID → bearer token
}

// Token returns the stored token for a provider, or "" when absent.
func (c Credentials) Token(providerID string) string {
	return c.Tokens[providerID]
}

// credMu guards read-modify-write cycles on the credentials file.
var credMu sync.Mutex

func CredentialsPath() string {
	return filepath.Join(ConfigDir(), "credentials.json")
}

func LoadCredentials() (Credentials, error) {
	return LoadCredentialsFrom(CredentialsPath())
}

func LoadCredentialsFrom(path string) (Credentials, error) {
	creds := Credentials{Tokens: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return creds, nil
		}
		return creds, fmt.Errorf("reading credentials: %w", err)
	}

	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{Tokens: make(map[string]string)}, fmt.Errorf("parsing credentials %s: %w", path, err)
	}

	if creds.Tokens == nil {
		creds.Tokens = make(map[string]string)
	}

	return creds, nil
}

func SaveToken(providerID, token string) error {
	return SaveTokenTo(CredentialsPath(), providerID, token)
}

func SaveTokenTo(path, providerID, token string) error {
	credMu.Lock()
	defer credMu.Unlock()

	creds, err := LoadCredentialsFrom(path)
	if err != nil {
		creds = Credentials{Tokens: make(map[string]string)}
	}

	creds.Tokens[providerID] = token

	return writeCredentials(path, creds)
}

func DeleteToken(providerID string) error {
	return DeleteTokenFrom(CredentialsPath(), providerID)
}

func DeleteTokenFrom(path, providerID string) error {
	credMu.Lock()
	defer credMu.Unlock()

	creds, err := LoadCredentialsFrom(path)
	if err != nil {
		return err
	}

	delete(creds.Tokens, providerID)

	return writeCredentials(path, creds)
}

func writeCredentials(path string, creds Credentials) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating credentials dir: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}
