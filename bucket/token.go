package bucket

import (
	"crypto/rand"

	"github.com/pkg/errors"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// bytes at or above this are rejected so every symbol is equally likely
const unbiased = 256 - 256%len(alphabet)

// Token returns n random characters drawn from [0-9a-z].
func Token(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n+n/2+1)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Wrap(err, "bucket: reading random bytes")
		}
		for _, b := range buf {
			if int(b) >= unbiased {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

func isToken(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'z') {
			return false
		}
	}
	return true
}
