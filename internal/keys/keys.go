// Package keys generates and hashes the opaque secrets the service hands
// out: owner API keys, session keys, and per-side player tokens.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"math/big"
)

func NewAPIKey() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

func HashAPIKey(pepper, apiKey string) string {
	sum := sha256.Sum256([]byte(pepper + ":" + apiKey))
	return hex.EncodeToString(sum[:])
}

const idCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Session keys are 22 chars, side tokens 20. Both are bearer secrets;
// neither is ever logged.
const (
	SessionKeyLen = 22
	SideTokenLen  = 20
)

func NewSessionKey() (string, error) { return randomID(SessionKeyLen) }

func NewSideToken() (string, error) { return randomID(SideTokenLen) }

func randomID(length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(idCharset)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = idCharset[n.Int64()]
	}
	return string(out), nil
}

// Equal compares two tokens in constant time.
func Equal(a, b string) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
