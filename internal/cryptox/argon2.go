package cryptox

import "golang.org/x/crypto/argon2"

// Argon2id parameters. Changing any of these invalidates every existing
// snapshot and offline verifier, so they are fixed.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

func argon2IDKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}
