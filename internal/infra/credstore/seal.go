package credstore

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/farelink/flightgw/internal/domain"

	"golang.org/x/crypto/chacha20poly1305"
)

// Seal encrypts credentials for storage in the credential service,
// binding the provider name as associated data. Used by provisioning
// tooling and tests; the gateway itself only ever decrypts.
func Seal(masterKey []byte, providerName string, creds domain.Credentials) (string, error) {
	aead, err := chacha20poly1305.NewX(masterKey)
	if err != nil {
		return "", fmt.Errorf("credstore: bad master key: %w", err)
	}

	plain, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, plain, []byte(providerName))
	return base64.StdEncoding.EncodeToString(sealed), nil
}
