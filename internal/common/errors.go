// Package common defines shared constants and sentinel errors used across
// client and server layers of aiomanager. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository/entity-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Vault lifecycle errors.
	ErrLocked = errors.New("vault is locked")

	// Remote store errors.
	ErrBadCredential      = errors.New("bad credential")
	ErrCorruptRemoteState = errors.New("corrupt remote state")
	ErrUnavailable        = errors.New("service unavailable")

	// Mutation policy errors.
	ErrProtected = errors.New("addon is protected")

	// Sync errors.
	ErrSerialization = errors.New("snapshot serialization error")
	ErrPullRequired  = errors.New("pull required before automatic push")

	// Auth errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
