// Package nodekey manages the node's secp256k1 identity key and the node ID
// derived from it.
package nodekey

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/sha3"

	"github.com/cmatc13/p2pservice/pkg/errors"
)

// IDLength is the size of a node ID in bytes.
const IDLength = 32

// ID identifies a node on the network: the Keccak-256 hash of its
// uncompressed public key without the leading format byte.
type ID [IDLength]byte

// String returns the base58 form used in APIs and status snapshots.
func (id ID) String() string {
	return base58.Encode(id[:])
}

// Hex returns the full hex encoding.
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

// TerminalString returns a shortened hex form for log lines.
func (id ID) TerminalString() string {
	return hex.EncodeToString(id[:4])
}

// ParseID decodes the base58 form produced by String.
func ParseID(s string) (ID, error) {
	var id ID
	raw := base58.Decode(s)
	if len(raw) != IDLength {
		return id, errors.E("invalid node id", "nodekey", "ParseID", errors.ErrInvalidInput)
	}
	copy(id[:], raw)
	return id, nil
}

// Key is the node's private identity key.
type Key struct {
	private *btcec.PrivateKey
	id      ID
}

// Generate creates a fresh random key.
func Generate() (*Key, error) {
	private, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate private key")
	}
	return newKey(private), nil
}

// FromHex imports a key from its hex-encoded scalar.
func FromHex(raw string) (*Key, error) {
	b, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.E("invalid private key format", "nodekey", "FromHex", errors.ErrInvalidInput)
	}
	if len(b) != btcec.PrivKeyBytesLen {
		return nil, errors.E(errors.Sprintf("private key must be %d bytes, got %d", btcec.PrivKeyBytesLen, len(b)),
			"nodekey", "FromHex", errors.ErrInvalidInput)
	}
	private, _ := btcec.PrivKeyFromBytes(b)
	return newKey(private), nil
}

func newKey(private *btcec.PrivateKey) *Key {
	return &Key{private: private, id: PublicKeyID(private.PubKey())}
}

// PublicKeyID derives the node ID of a public key.
func PublicKeyID(pub *btcec.PublicKey) ID {
	var id ID
	copy(id[:], Hash(pub.SerializeUncompressed()[1:]))
	return id
}

// LoadOrCreate reads the key stored at path, generating and saving a new one
// when the file does not exist. The boolean reports whether a key was created.
func LoadOrCreate(path string) (*Key, bool, error) {
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		key, err := FromHex(string(raw))
		if err != nil {
			return nil, false, errors.WrapWithField(err, "path", path)
		}
		return key, false, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, false, errors.Wrap(err, "failed to read node key "+path)
	}

	key, err := Generate()
	if err != nil {
		return nil, false, err
	}
	if err := key.Save(path); err != nil {
		return nil, false, err
	}
	return key, true, nil
}

// Save writes the key hex-encoded to path, readable only by the owner.
func (k *Key) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.Wrap(err, "failed to create key directory")
		}
	}
	if err := os.WriteFile(path, []byte(k.Hex()), 0o600); err != nil {
		return errors.Wrap(err, "failed to write node key "+path)
	}
	return nil
}

// ID returns the node ID.
func (k *Key) ID() ID {
	return k.id
}

// Hex exports the private scalar.
func (k *Key) Hex() string {
	return hex.EncodeToString(k.private.Serialize())
}

// PublicKey returns the compressed public key.
func (k *Key) PublicKey() []byte {
	return k.private.PubKey().SerializeCompressed()
}

// Sign signs the Keccak-256 hash of message and returns the DER signature.
func (k *Key) Sign(message []byte) []byte {
	return ecdsa.Sign(k.private, Hash(message)).Serialize()
}

// Verify checks a signature produced by Sign against a compressed or
// uncompressed public key.
func Verify(publicKey, message, signature []byte) (bool, error) {
	pub, err := btcec.ParsePubKey(publicKey)
	if err != nil {
		return false, errors.Wrap(err, "failed to parse public key")
	}
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false, errors.Wrap(err, "failed to parse signature")
	}
	return sig.Verify(Hash(message), pub), nil
}

// Hash returns the Keccak-256 digest of data.
func Hash(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}
