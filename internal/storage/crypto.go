package storage

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// deriveUserKey derives a per-user at-rest encryption key from the user id
// and a device-held master secret via a stable KDF (spec §6: "per-user key
// derived from user id via a stable KDF"). The same (userID, masterSecret)
// pair always yields the same key, so re-opening an existing store never
// requires re-encrypting rows.
//
// mattn/go-sqlite3 has no page-level encryption (that needs SQLCipher,
// which is not in this module's dependency set); instead sensitive columns
// are encrypted at the DAO layer with this key, the pragmatic equivalent
// used throughout the corpus wherever a plain sqlite3 driver meets an
// at-rest requirement.
func deriveUserKey(userID int64, masterSecret []byte) ([chacha20poly1305.KeySize]byte, error) {
	var key [chacha20poly1305.KeySize]byte
	var salt [8]byte
	binary.BigEndian.PutUint64(salt[:], uint64(userID))

	r := hkdf.New(sha256.New, masterSecret, salt[:], []byte("privchat-sdk-go/storage/v1"))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, fmt.Errorf("deriving storage key: %w", err)
	}
	return key, nil
}

// cipherBox seals and opens column values with the per-user key.
type cipherBox struct {
	aead cipher.AEAD
}

func newCipherBox(key [chacha20poly1305.KeySize]byte) (*cipherBox, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("constructing AEAD: %w", err)
	}
	return &cipherBox{aead: aead}, nil
}

// Seal encrypts plaintext, prepending a fresh random nonce to the output.
func (c *cipherBox) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a value produced by Seal.
func (c *cipherBox) Open(ciphertext []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, body := ciphertext[:n], ciphertext[n:]
	return c.aead.Open(nil, nonce, body, nil)
}
