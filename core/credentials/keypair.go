// Package credentials issues ephemeral SSH key material and controls how long
// it stays reachable on disk.
package credentials

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"command-center/core/models"

	"golang.org/x/crypto/ssh"
)

// ErrMalformedKey is returned when supplied private key text cannot be parsed.
var ErrMalformedKey = errors.New("malformed private key")

const keyComment = "command-center-ephemeral"

// Generate creates a new ed25519 keypair encoded for OpenSSH
func Generate() (*models.SshKeypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, keyComment)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}

	return &models.SshKeypair{
		PrivateKey: string(pem.EncodeToMemory(block)),
		PublicKey:  authorizedKey(sshPub),
	}, nil
}

// DerivePublicKey returns the authorized_keys line matching a PEM private key.
// Passphrase-protected keys are rejected: there is nobody to ask for the passphrase.
func DerivePublicKey(privatePEM string) (string, error) {
	signer, err := ParseSigner([]byte(privatePEM))
	if err != nil {
		return "", err
	}
	return authorizedKey(signer.PublicKey()), nil
}

// ParseSigner parses PEM private key bytes into an ssh.Signer
func ParseSigner(privatePEM []byte) (ssh.Signer, error) {
	if len(strings.TrimSpace(string(privatePEM))) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrMalformedKey)
	}
	signer, err := ssh.ParsePrivateKey(privatePEM)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: key is passphrase protected", ErrMalformedKey)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return signer, nil
}

func authorizedKey(pub ssh.PublicKey) string {
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub)))
}
