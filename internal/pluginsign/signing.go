// Package pluginsign signs and verifies plugin binaries with ed25519.
// Whether verification is mandatory is decided by configuration
// (JN_REQUIRE_SIGNED_PLUGINS via internal/config), not here; this
// package only implements the key, digest, and signature mechanics.
package pluginsign

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// GenerateKeyPair creates a new ed25519 signing key pair.
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("pluginsign: generate key pair: %w", err)
	}
	return pub, priv, nil
}

// digestFile reads path and returns its SHA-256 digest. Both signing
// and verification need exactly this: the digest, never the raw bytes,
// is what ed25519 actually signs or checks.
func digestFile(path string) ([sha256.Size]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("pluginsign: read %s: %w", path, err)
	}
	return sha256.Sum256(data), nil
}

// decodeSignature hex-decodes raw and checks it has the shape of a
// genuine ed25519 signature before any key is tried against it.
func decodeSignature(raw []byte) ([]byte, error) {
	sig, err := hex.DecodeString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("pluginsign: invalid signature encoding: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("pluginsign: invalid signature length: expected %d, got %d", ed25519.SignatureSize, len(sig))
	}
	return sig, nil
}

// SignBinary writes a hex-encoded ed25519 signature of binaryPath's
// SHA-256 digest to outputSigPath.
func SignBinary(binaryPath, outputSigPath string, privateKey ed25519.PrivateKey) error {
	digest, err := digestFile(binaryPath)
	if err != nil {
		return err
	}
	sig := ed25519.Sign(privateKey, digest[:])
	if err := os.WriteFile(outputSigPath, []byte(hex.EncodeToString(sig)), 0o644); err != nil {
		return fmt.Errorf("pluginsign: write signature: %w", err)
	}
	return nil
}

// VerifyBinary checks binaryPath's signature file against every key in
// trustedKeys, succeeding on the first match.
func VerifyBinary(binaryPath, signaturePath string, trustedKeys []ed25519.PublicKey) error {
	digest, err := digestFile(binaryPath)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(signaturePath)
	if err != nil {
		return fmt.Errorf("pluginsign: read signature file: %w", err)
	}
	sig, err := decodeSignature(raw)
	if err != nil {
		return err
	}

	if !signatureMatchesAny(digest[:], sig, trustedKeys) {
		return fmt.Errorf("pluginsign: no trusted key matches signature on %s", binaryPath)
	}
	return nil
}

func signatureMatchesAny(digest, sig []byte, trustedKeys []ed25519.PublicKey) bool {
	for _, pub := range trustedKeys {
		if ed25519.Verify(pub, digest, sig) {
			return true
		}
	}
	return false
}

// DefaultSignaturePath returns the conventional signature path for a
// plugin binary: "<binaryPath>.sig".
func DefaultSignaturePath(binaryPath string) string {
	return binaryPath + ".sig"
}
