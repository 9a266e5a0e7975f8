package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// isoTimestamp renders t the way Python's datetime.isoformat does for an aware
// UTC value: microseconds are printed only when non-zero.
func isoTimestamp(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/int(time.Microsecond) == 0 {
		return t.Format("2006-01-02T15:04:05") + "+00:00"
	}
	return t.Format("2006-01-02T15:04:05.000000") + "+00:00"
}

func antiReplayID(secret []byte, subject string, issuedAt time.Time) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(subject + "-" + isoTimestamp(issuedAt)))
	return hex.EncodeToString(mac.Sum(nil))
}

func antiReplayEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
