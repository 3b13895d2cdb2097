// Package cryptox implements the crypto primitives for snapshot protection:
// Argon2id key derivation, AES-GCM encryption of JSON values, and the
// password-derived auth token used against the remote sync store.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
)

const nonceSize = 12

var ErrMalformedPayload = errors.New("malformed encrypted payload")

// DeriveKey derives a 32-byte master key from a password and salt using
// Argon2id. The same parameters must be used on every device, otherwise
// snapshots encrypted elsewhere cannot be opened.
func DeriveKey(password []byte, salt []byte) []byte {
	return argon2IDKey(password, salt)
}

// MakeAuthToken computes the derived token sent in the sync store auth
// header: hex(sha256(masterKey)). The remote store only ever sees this
// hash, never the key itself.
func MakeAuthToken(masterKey []byte) string {
	hash := sha256.Sum256(masterKey)
	return hex.EncodeToString(hash[:])
}

// MakePasswordToken computes the auth token for the first pull, before any
// salt is known locally: hex(sha256(password)). It gates access to the
// ciphertext only; the encryption key is still salted Argon2id.
func MakePasswordToken(password []byte) string {
	hash := sha256.Sum256(password)
	return hex.EncodeToString(hash[:])
}

// EncryptJSON serializes v to JSON and encrypts it with AES-GCM.
//
// The key must be a valid AES key length (16, 24, or 32 bytes). A fresh
// random 12-byte nonce is generated per call and returned alongside the
// ciphertext.
func EncryptJSON(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)

	return ciphertext, nonce, nil
}

// DecryptJSON decrypts ciphertext produced by EncryptJSON and unmarshals
// the plaintext into v. The key and nonce must match the ones used for
// encryption.
func DecryptJSON(ciphertext, nonce, key []byte, v any) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}

	return json.Unmarshal(plaintext, v)
}

// EncodePayload packs nonce and ciphertext into a single base64 string for
// the wire envelope: base64(nonce || ciphertext).
func EncodePayload(ciphertext, nonce []byte) string {
	buf := make([]byte, 0, len(nonce)+len(ciphertext))
	buf = append(buf, nonce...)
	buf = append(buf, ciphertext...)
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodePayload reverses EncodePayload. It returns ErrMalformedPayload if
// the data is not base64 or is too short to contain a nonce.
func DecodePayload(data string) (ciphertext, nonce []byte, err error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, nil, ErrMalformedPayload
	}
	if len(raw) <= nonceSize {
		return nil, nil, ErrMalformedPayload
	}
	return raw[nonceSize:], raw[:nonceSize], nil
}
