package config

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Encryption constants for the on-disk secret key file.
const (
	SaltSize = 32
	// Encrypted format: [salt(32)][memory(4)][iterations(4)][parallelism(1)][nonce(24)][ciphertext...]
	headerSize = SaltSize + 4 + 4 + 1
)

// KeyEncryptionParams holds Argon2id parameters.
type KeyEncryptionParams struct {
	Memory      uint32 // in KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultKeyEncryptionParams returns recommended Argon2id parameters.
func DefaultKeyEncryptionParams() KeyEncryptionParams {
	return KeyEncryptionParams{
		Memory:      64 * 1024, // 64 MB
		Iterations:  3,
		Parallelism: 4,
	}
}

func deriveKeyEncryptionKey(passphrase, salt []byte, params KeyEncryptionParams) []byte {
	return argon2.IDKey(
		passphrase,
		salt,
		params.Iterations,
		params.Memory,
		params.Parallelism,
		chacha20poly1305.KeySize,
	)
}

// EncryptSecretKey encrypts a 32-byte secp256k1 secret key scalar with a
// passphrase using Argon2id + XChaCha20-Poly1305.
func EncryptSecretKey(secretKey, passphrase []byte, params KeyEncryptionParams) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKeyEncryptionKey(passphrase, salt, params)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, secretKey, nil)

	out := make([]byte, 0, headerSize+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = binary.LittleEndian.AppendUint32(out, params.Memory)
	out = binary.LittleEndian.AppendUint32(out, params.Iterations)
	out = append(out, params.Parallelism)
	out = append(out, nonce...)
	out = append(out, ciphertext...)

	for i := range key {
		key[i] = 0
	}
	return out, nil
}

// DecryptSecretKey reverses EncryptSecretKey.
func DecryptSecretKey(encrypted, passphrase []byte) ([]byte, error) {
	nonceSize := chacha20poly1305.NonceSizeX
	minSize := headerSize + nonceSize + chacha20poly1305.Overhead
	if len(encrypted) < minSize {
		return nil, fmt.Errorf("encrypted key file too short: %d bytes, need at least %d", len(encrypted), minSize)
	}

	salt := encrypted[:SaltSize]
	memory := binary.LittleEndian.Uint32(encrypted[SaltSize:])
	iterations := binary.LittleEndian.Uint32(encrypted[SaltSize+4:])
	parallelism := encrypted[SaltSize+8]

	params := KeyEncryptionParams{Memory: memory, Iterations: iterations, Parallelism: parallelism}

	nonce := encrypted[headerSize : headerSize+nonceSize]
	ciphertext := encrypted[headerSize+nonceSize:]

	key := deriveKeyEncryptionKey(passphrase, salt, params)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		for i := range key {
			key[i] = 0
		}
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	for i := range key {
		key[i] = 0
	}
	if err != nil {
		return nil, fmt.Errorf("decrypt key file (wrong passphrase?): %w", err)
	}
	return plaintext, nil
}

// WriteKeyFile encrypts and writes a secret key to disk.
func WriteKeyFile(path string, secretKey, passphrase []byte) error {
	encrypted, err := EncryptSecretKey(secretKey, passphrase, DefaultKeyEncryptionParams())
	if err != nil {
		return err
	}
	return os.WriteFile(path, encrypted, 0600)
}

// ReadKeyFile reads and decrypts a secret key from disk.
func ReadKeyFile(path string, passphrase []byte) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file %s: %w", path, err)
	}
	return DecryptSecretKey(data, passphrase)
}
