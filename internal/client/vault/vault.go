// Package vault holds the process-wide derived encryption key and its
// lifecycle: unset until first unlock, unlocked while a key is present,
// locked after an explicit Lock. Operations that need decryption fail
// deterministically with common.ErrLocked instead of silently no-opping.
package vault

import (
	"sync"

	"github.com/Sonicx161/aiomanager/internal/common"
	"github.com/Sonicx161/aiomanager/internal/cryptox"
)

type State string

const (
	StateUnset    State = "unset"
	StateUnlocked State = "unlocked"
	StateLocked   State = "locked"
)

// Vault owns the master key derived from the user's password. It is safe
// for concurrent use.
type Vault struct {
	mu    sync.RWMutex
	key   []byte
	salt  []byte
	state State
}

func New() *Vault {
	return &Vault{state: StateUnset}
}

// Unlock derives the master key from password and salt and stores both.
func (v *Vault) Unlock(password, salt []byte) {
	key := cryptox.DeriveKey(password, salt)

	v.mu.Lock()
	defer v.mu.Unlock()
	common.WipeByteArray(v.key)
	v.key = key
	v.salt = append([]byte(nil), salt...)
	v.state = StateUnlocked
}

// Lock wipes the key. Salt is kept so a later unlock can reuse it.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	common.WipeByteArray(v.key)
	v.key = nil
	v.state = StateLocked
}

func (v *Vault) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

func (v *Vault) Unlocked() bool {
	return v.State() == StateUnlocked
}

// Key returns the master key, or common.ErrLocked when the vault is not
// unlocked. Callers must not retain the slice past the current operation.
func (v *Vault) Key() ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.state != StateUnlocked {
		return nil, common.ErrLocked
	}
	return v.key, nil
}

// Salt returns the salt of the last unlock, or nil.
func (v *Vault) Salt() []byte {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]byte(nil), v.salt...)
}

// AuthToken returns the derived token for the remote sync store, or
// common.ErrLocked.
func (v *Vault) AuthToken() (string, error) {
	key, err := v.Key()
	if err != nil {
		return "", err
	}
	return cryptox.MakeAuthToken(key), nil
}
