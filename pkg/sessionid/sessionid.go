// Package sessionid generates proctoring session identifiers that sort
// chronologically as plain strings.
package sessionid

import (
	"crypto/rand"
	"io"
	"time"
)

// alphabet is in ASCII order so that encoded values compare lexically the
// same way they compare numerically.
const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// SessionIDLen is the externally defined base session ID length. Generated
// IDs carry one extra character, giving TotalLen characters overall: a
// 6-character timestamp prefix and a random suffix.
const (
	SessionIDLen = 24
	TotalLen     = SessionIDLen + 1
	prefixLen    = 6
)

// Generate returns a new session ID for the given creation time.
func Generate(now time.Time) string {
	id, err := GenerateWithRand(now, rand.Reader)
	if err != nil {
		// crypto/rand failure means the process has no usable entropy
		// source; nothing sensible can continue from here.
		panic("sessionid: reading random source: " + err.Error())
	}
	return id
}

// GenerateWithRand is Generate with an explicit entropy source.
//
// The prefix encodes (year%100+10, month, day, hour, minute, second), one
// base-62 character each, so IDs created later always sort after IDs
// created earlier. Two IDs generated in the same second share a prefix and
// differ only in the random suffix.
func GenerateWithRand(now time.Time, r io.Reader) (string, error) {
	buf := make([]byte, TotalLen)

	buf[0] = alphabet[(now.Year()%100+10)%len(alphabet)]
	buf[1] = alphabet[int(now.Month())]
	buf[2] = alphabet[now.Day()]
	buf[3] = alphabet[now.Hour()]
	buf[4] = alphabet[now.Minute()]
	buf[5] = alphabet[now.Second()]

	random := make([]byte, TotalLen-prefixLen)
	if _, err := io.ReadFull(r, random); err != nil {
		return "", err
	}
	for i, b := range random {
		buf[prefixLen+i] = alphabet[int(b)%len(alphabet)]
	}

	return string(buf), nil
}

// IsValid reports whether id has the generated length and draws every
// character from the base-62 alphabet.
func IsValid(id string) bool {
	if len(id) != TotalLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !inAlphabet(id[i]) {
			return false
		}
	}
	return true
}

func inAlphabet(c byte) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= 'a' && c <= 'z':
		return true
	default:
		return false
	}
}
