// Package keystore implements the node's persistent static-secret file
// (spec §6): the 32-byte X25519 secret used for noise-style session
// derivation, symmetrically wrapped with a scrypt-derived key and
// AES-128-CTR, matching the --keystore-path/--keystore-pass-path CLI
// contract.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/scrypt"
)

const (
	secretLen = 32
	saltLen   = 16
	keyLen    = 16 // AES-128
	ivLen     = aes.BlockSize

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// file is the on-disk JSON shape, kept minimal and self-describing like
// moto's other JSON config files rather than a binary blob.
type file struct {
	Salt       string `json:"salt"`
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
	ScryptN    int    `json:"scrypt_n"`
	ScryptR    int    `json:"scrypt_r"`
	ScryptP    int    `json:"scrypt_p"`
}

// Generate creates a fresh random 32-byte static secret.
func Generate() ([secretLen]byte, error) {
	var secret [secretLen]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return secret, fmt.Errorf("keystore: generate secret: %w", err)
	}
	return secret, nil
}

// Save encrypts secret with a key derived from passphrase via scrypt and
// writes it to path, creating the file (and its parent directory) if
// needed.
func Save(path string, passphrase []byte, secret [secretLen]byte) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("keystore: salt: %w", err)
	}
	key, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return fmt.Errorf("keystore: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("keystore: aes cipher: %w", err)
	}
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return fmt.Errorf("keystore: iv: %w", err)
	}
	ciphertext := make([]byte, secretLen)
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, secret[:])

	f := file{
		Salt:       hex.EncodeToString(salt),
		IV:         hex.EncodeToString(iv),
		Ciphertext: hex.EncodeToString(ciphertext),
		ScryptN:    scryptN,
		ScryptR:    scryptR,
		ScryptP:    scryptP,
	}
	buf, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("keystore: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("keystore: mkdir: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return fmt.Errorf("keystore: write %s: %w", path, err)
	}
	return nil
}

// Load reads and decrypts the static secret at path using passphrase.
func Load(path string, passphrase []byte) ([secretLen]byte, error) {
	var secret [secretLen]byte

	buf, err := os.ReadFile(path)
	if err != nil {
		return secret, fmt.Errorf("keystore: read %s: %w", path, err)
	}
	var f file
	if err := json.Unmarshal(buf, &f); err != nil {
		return secret, fmt.Errorf("keystore: parse %s: %w", path, err)
	}

	salt, err := hex.DecodeString(f.Salt)
	if err != nil {
		return secret, fmt.Errorf("keystore: bad salt: %w", err)
	}
	iv, err := hex.DecodeString(f.IV)
	if err != nil {
		return secret, fmt.Errorf("keystore: bad iv: %w", err)
	}
	ciphertext, err := hex.DecodeString(f.Ciphertext)
	if err != nil {
		return secret, fmt.Errorf("keystore: bad ciphertext: %w", err)
	}
	if len(ciphertext) != secretLen {
		return secret, fmt.Errorf("keystore: ciphertext is %d bytes, want %d", len(ciphertext), secretLen)
	}

	key, err := scrypt.Key(passphrase, salt, f.ScryptN, f.ScryptR, f.ScryptP, keyLen)
	if err != nil {
		return secret, fmt.Errorf("keystore: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return secret, fmt.Errorf("keystore: aes cipher: %w", err)
	}
	cipher.NewCTR(block, iv).XORKeyStream(secret[:], ciphertext)
	return secret, nil
}

// LoadOrCreate loads path's secret, generating and persisting a fresh
// one on first run (spec §6: "created on first run").
func LoadOrCreate(path string, passphrase []byte) ([secretLen]byte, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path, passphrase)
	}
	secret, err := Generate()
	if err != nil {
		return secret, err
	}
	if err := Save(path, passphrase, secret); err != nil {
		return secret, err
	}
	return secret, nil
}
