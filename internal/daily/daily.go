// internal/daily/daily.go
//
// Deterministic identity selection for the Daily Challenge.
// Every player gets the same hidden identity on a given UTC date;
// the salt keeps the sequence unpredictable without the server secret.

package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// IdentityIndex returns a deterministic roster index for a date using
// HMAC(salt, YYYY-MM-DD) % rosterLen.
func IdentityIndex(date time.Time, salt string, rosterLen int) int {
	if rosterLen <= 0 {
		return 0
	}
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(DateKey(date)))
	sum := h.Sum(nil)
	// first 8 bytes to uint64 for modulus distribution
	n := binary.BigEndian.Uint64(sum[:8])
	return int(n % uint64(rosterLen))
}
