package alerting

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

// Fingerprint computes the deduplication identity of an alert: the
// SHA-256 hex digest of "type:domain:threshold". The observed value is
// deliberately excluded so repeated firings of the same condition share
// one fingerprint regardless of how far past the threshold they land.
// An empty domain stays an empty component.
func Fingerprint(t models.AlertType, domain string, threshold float64) string {
	key := string(t) + ":" + domain + ":" + formatThreshold(threshold)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// formatThreshold renders a threshold with a stable decimal form: the
// shortest exact representation, with ".0" appended to integral values
// so 25 and 25.0 hash identically as "25.0".
func formatThreshold(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
