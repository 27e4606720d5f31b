package utils

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

// Characters that survive into a pass serial number; everything else in the
// email is replaced so the serial stays filesystem- and URL-safe.
var reNonSerial = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// Serial derives the pass serial number from an email address. The same
// derivation is used at issuance and at render time, so a serial can always
// be traced back to its ticket.
func Serial(email string) string {
	return reNonSerial.ReplaceAllString(email, "_")
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the fixed length of ticket codes.
const CodeLength = 6

// GenerateCode returns a random alphanumeric ticket code. Uniqueness is the
// caller's concern; check the store and retry on collision.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
