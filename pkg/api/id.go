package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	repairIDPrefix = "run_"
)

var repairIDPattern = regexp.MustCompile(`^run_[a-zA-Z0-9]{24}$`)

// NewRepairID generates a new repair run ID with the "run_" prefix
// followed by 24 cryptographically random alphanumeric characters.
func NewRepairID() string {
	return repairIDPrefix + randomAlphanumeric(idLength)
}

// ValidateRepairID checks whether the given string is a valid repair ID
// (matches "run_" + 24 alphanumeric characters).
func ValidateRepairID(id string) bool {
	return repairIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
