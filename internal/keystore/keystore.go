// Package keystore owns the single piece of global mutable state in XoQ:
// the Ed25519 node identity. It is generated on first launch, persisted
// to a key file, and read back on every subsequent launch.
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// NodeId is the Ed25519 public key advertised to peers.
type NodeId [ed25519.PublicKeySize]byte

// String renders the NodeId as lowercase hex.
func (n NodeId) String() string {
	const hexdigits = "0123456789abcdef"
	buf := make([]byte, len(n)*2)
	for i, b := range n {
		buf[i*2] = hexdigits[b>>4]
		buf[i*2+1] = hexdigits[b&0xf]
	}
	return string(buf)
}

const (
	magic      = "XOQ1"
	fileFormat = len(magic) + 1 + ed25519.SeedSize // magic + role tag + seed
)

// KeyStore holds a long-lived Ed25519 keypair for one role (server
// identity) within a single process. Construct with
// InitFromPathOrGenerate, never directly.
type KeyStore struct {
	priv ed25519.PrivateKey
	pub  NodeId
}

// NodeId returns the public key identifying this process to peers.
func (k *KeyStore) NodeId() NodeId { return k.pub }

// PrivateKey returns the Ed25519 private key, e.g. for TLS certificate
// generation or session-ticket signing. Never logged or exported.
func (k *KeyStore) PrivateKey() ed25519.PrivateKey { return k.priv }

// InitFromPathOrGenerate is the keystore's sole entry point. It reads the
// key file at $dir/.xoq_<role>_key if present, or generates a new
// keypair and persists it there if not. role identifies the bridge
// type ("serial", "can", "camera", "depth", "audio", "relay") and is
// folded into the file name so multiple bridges can share a key
// directory without clobbering each other's identity.
func InitFromPathOrGenerate(dir, role string) (*KeyStore, error) {
	if role == "" {
		return nil, errors.New("keystore: role is required")
	}
	path := keyFilePath(dir, role)

	data, err := os.ReadFile(path)
	if err == nil {
		return parseKeyFile(data, role)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("keystore: read %s: %w", path, err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keystore: generate key: %w", err)
	}

	ks := &KeyStore{priv: priv}
	copy(ks.pub[:], pub)

	if err := persist(path, role, priv.Seed()); err != nil {
		return nil, err
	}
	return ks, nil
}

func keyFilePath(dir, role string) string {
	return filepath.Join(dir, fmt.Sprintf(".xoq_%s_key", role))
}

func parseKeyFile(data []byte, role string) (*KeyStore, error) {
	if len(data) != fileFormat {
		return nil, fmt.Errorf("keystore: malformed key file: want %d bytes, got %d", fileFormat, len(data))
	}
	if string(data[:len(magic)]) != magic {
		return nil, errors.New("keystore: bad magic in key file")
	}
	if data[len(magic)] != roleTag(role) {
		return nil, fmt.Errorf("keystore: key file role mismatch for %q", role)
	}
	seed := data[len(magic)+1:]
	priv := ed25519.NewKeyFromSeed(seed)

	ks := &KeyStore{priv: priv}
	copy(ks.pub[:], priv.Public().(ed25519.PublicKey))
	return ks, nil
}

func persist(path, role string, seed []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("keystore: mkdir: %w", err)
	}

	buf := make([]byte, 0, fileFormat)
	buf = append(buf, magic...)
	buf = append(buf, roleTag(role))
	buf = append(buf, seed...)

	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return fmt.Errorf("keystore: write %s: %w", path, err)
	}
	return nil
}

// roleTag folds a role name into a single byte for the key file header.
// It is not used to distinguish files (the file name already does that
// via keyFilePath) — it exists so a key file cannot be silently loaded
// under the wrong role via a rename.
func roleTag(role string) byte {
	var sum byte
	for i := 0; i < len(role); i++ {
		sum = sum*31 + role[i]
	}
	return sum
}
