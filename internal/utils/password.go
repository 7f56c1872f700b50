package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// Hashes are stored in the modular crypt format used by passlib:
// $pbkdf2-sha256$<rounds>$<salt>$<checksum>, salt and checksum in the
// "adapted" base64 alphabet ('.' instead of '+', no padding).
const (
	pbkdf2Ident   = "pbkdf2-sha256"
	pbkdf2SaltLen = 16
	pbkdf2KeyLen  = 32
	maxRounds     = 10_000_000
)

var ab64 = base64.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789./").WithPadding(base64.NoPadding)

// PasswordHasher hashes new passwords with PBKDF2-SHA256 and verifies both
// PBKDF2 and legacy bcrypt hashes.
type PasswordHasher struct {
	rounds int
	dummy  string
}

// NewPasswordHasher returns a hasher producing hashes with the given number
// of rounds.
func NewPasswordHasher(rounds int) (*PasswordHasher, error) {
	if rounds <= 0 || rounds > maxRounds {
		return nil, fmt.Errorf("pbkdf2 rounds out of range: %d", rounds)
	}
	h := &PasswordHasher{rounds: rounds}
	dummy, err := h.Hash("dummy-password-for-unknown-logins")
	if err != nil {
		return nil, err
	}
	h.dummy = dummy
	return h, nil
}

// Hash returns a freshly salted hash of plain.
func (h *PasswordHasher) Hash(plain string) (string, error) {
	salt := make([]byte, pbkdf2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	sum := pbkdf2.Key([]byte(plain), salt, h.rounds, pbkdf2KeyLen, sha256.New)
	return "$" + pbkdf2Ident + "$" + strconv.Itoa(h.rounds) + "$" + ab64.EncodeToString(salt) + "$" + ab64.EncodeToString(sum), nil
}

// Verify reports whether plain matches stored.  Malformed or unknown hash
// formats never match.
func (h *PasswordHasher) Verify(plain, stored string) bool {
	switch {
	case strings.HasPrefix(stored, "$"+pbkdf2Ident+"$"):
		return verifyPBKDF2(plain, stored)
	case strings.HasPrefix(stored, "$2a$"), strings.HasPrefix(stored, "$2b$"), strings.HasPrefix(stored, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)) == nil
	}
	return false
}

// VerifyDummy burns the same work as a real verification.  Callers use it
// when the login is unknown so both failure paths take similar time.
func (h *PasswordHasher) VerifyDummy(plain string) {
	_ = verifyPBKDF2(plain, h.dummy)
}

func verifyPBKDF2(plain, stored string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != pbkdf2Ident {
		return false
	}
	rounds, err := strconv.Atoi(parts[2])
	if err != nil || rounds <= 0 || rounds > maxRounds {
		return false
	}
	salt, err := ab64.DecodeString(parts[3])
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := ab64.DecodeString(parts[4])
	if err != nil || len(want) == 0 {
		return false
	}
	got := pbkdf2.Key([]byte(plain), salt, rounds, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
