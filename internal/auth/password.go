// Package auth manages registered users and the session tokens handed
// to API clients.
package auth

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// bcryptMaxLen is the longest password bcrypt accepts.
const bcryptMaxLen = 72

// bcryptInput is the byte string handed to bcrypt. Passwords longer than
// bcrypt accepts are replaced by their base64 SHA-256 digest, so hashing
// and checking agree without truncating.
func bcryptInput(password string) []byte {
	if len(password) <= bcryptMaxLen {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

// HashPassword returns a salted bcrypt hash of password.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword(bcryptInput(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CheckPassword reports whether password matches hash. Besides bcrypt it
// understands the "method$salt$hex" hashes found in older users tables
// (pbkdf2:<digest>[:iterations] and scrypt:n:r:p).
func CheckPassword(hash, password string) bool {
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password)) == nil
	}
	method, rest, ok := strings.Cut(hash, "$")
	if !ok {
		return false
	}
	salt, want, ok := strings.Cut(rest, "$")
	if !ok {
		return false
	}
	expected, err := hex.DecodeString(want)
	if err != nil || len(expected) == 0 {
		return false
	}
	got, err := legacyDerive(method, salt, password, len(expected))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, expected) == 1
}

func legacyDerive(method, salt, password string, keyLen int) ([]byte, error) {
	parts := strings.Split(method, ":")
	switch parts[0] {
	case "pbkdf2":
		if len(parts) < 2 {
			return nil, fmt.Errorf("pbkdf2 without digest")
		}
		var h func() hash.Hash
		switch parts[1] {
		case "sha256":
			h = sha256.New
		case "sha512":
			h = sha512.New
		case "sha1":
			h = sha1.New
		default:
			return nil, fmt.Errorf("unsupported digest %q", parts[1])
		}
		iter := 600000
		if len(parts) > 2 {
			n, err := strconv.Atoi(parts[2])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("bad iteration count %q", parts[2])
			}
			iter = n
		}
		return pbkdf2.Key([]byte(password), []byte(salt), iter, keyLen, h), nil
	case "scrypt":
		n, r, p := 32768, 8, 1
		if len(parts) == 4 {
			var errs [3]error
			n, errs[0] = strconv.Atoi(parts[1])
			r, errs[1] = strconv.Atoi(parts[2])
			p, errs[2] = strconv.Atoi(parts[3])
			for _, err := range errs {
				if err != nil {
					return nil, fmt.Errorf("bad scrypt parameters %q", method)
				}
			}
		}
		return scrypt.Key([]byte(password), []byte(salt), n, r, p, keyLen)
	default:
		return nil, fmt.Errorf("unsupported hash method %q", parts[0])
	}
}
