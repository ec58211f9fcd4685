// Package auth decides which rigs the daemon will drive, keyed by the UID a
// link announces in LinkOnline.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrInvalidUID   = errors.New("auth: invalid uid")
)

// Validator validates an announced link UID.
type Validator interface {
	Validate(uid uuid.UUID) error
}

// AllowAll accepts every link. It is the default when no allowlist is
// configured.
type AllowAll struct{}

func (AllowAll) Validate(uuid.UUID) error { return nil }

// Allowlist accepts only the listed UIDs. An empty Allowlist denies
// everything; NewValidator never builds one.
type Allowlist struct {
	uids []uuid.UUID
}

// NewAllowlist parses UIDs in any form uuid.Parse accepts, including the
// 32-digit hex form links print.
func NewAllowlist(raw []string) (Allowlist, error) {
	out := Allowlist{uids: make([]uuid.UUID, 0, len(raw))}
	for i, entry := range raw {
		uid, err := ParseUID(entry)
		if err != nil {
			return Allowlist{}, fmt.Errorf("allowlist[%d]: %w", i, err)
		}
		out.uids = append(out.uids, uid)
	}
	return out, nil
}

// NewValidator turns configured UIDs into a Validator. No entries means no
// allowlist is configured and every link is accepted.
func NewValidator(raw []string) (Validator, error) {
	if len(raw) == 0 {
		return AllowAll{}, nil
	}
	list, err := NewAllowlist(raw)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (a Allowlist) Validate(uid uuid.UUID) error {
	ok := 0
	for _, allowed := range a.uids {
		ok |= subtle.ConstantTimeCompare(allowed[:], uid[:])
	}
	if ok != 1 {
		return fmt.Errorf("%w: uid=%s", ErrUnauthorized, strings.ToUpper(fmt.Sprintf("%x", uid[:])))
	}
	return nil
}

// Len reports how many UIDs are allowed.
func (a Allowlist) Len() int { return len(a.uids) }

// FuncValidator adapts a function into a Validator.
type FuncValidator func(uid uuid.UUID) error

func (f FuncValidator) Validate(uid uuid.UUID) error {
	return f(uid)
}

// ParseUID parses a link UID.
func ParseUID(raw string) (uuid.UUID, error) {
	uid, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q: %v", ErrInvalidUID, raw, err)
	}
	return uid, nil
}
