package indexing

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceAccount holds the fields consumed from a service account key file
type ServiceAccount struct {
	Type         string `json:"type"`
	ClientEmail  string `json:"client_email"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	TokenURI     string `json:"token_uri"`

	key *rsa.PrivateKey
}

// LoadServiceAccount reads and validates a service account key file
func LoadServiceAccount(path string) (*ServiceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account file: %w", err)
	}

	return ParseServiceAccount(data)
}

// ParseServiceAccount validates raw service account JSON
func ParseServiceAccount(data []byte) (*ServiceAccount, error) {
	var account ServiceAccount
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("failed to parse service account JSON: %w", err)
	}

	if account.ClientEmail == "" {
		return nil, fmt.Errorf("service account is missing client_email")
	}
	if account.PrivateKey == "" {
		return nil, fmt.Errorf("service account is missing private_key")
	}
	if account.TokenURI == "" {
		return nil, fmt.Errorf("service account is missing token_uri")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(account.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account private key: %w", err)
	}
	account.key = key

	return &account, nil
}
