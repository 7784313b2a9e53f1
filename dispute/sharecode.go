package dispute

import (
	"crypto/rand"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const (
	shareCodeLen      = 6
	shareCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewDisputeID mints a globally unique dispute identifier.
func NewDisputeID() string {
	return uuid.NewString()
}

// NewShareCode draws a 6-character uppercase alphanumeric code from an
// independent random source. Codes are not derived from the identifier;
// uniqueness is enforced by the registry, which retries on collision.
func NewShareCode() string {
	buf := make([]byte, shareCodeLen)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("dispute: read random: %v", err))
	}
	out := make([]byte, shareCodeLen)
	for i, b := range buf {
		out[i] = shareCodeAlphabet[int(b)%len(shareCodeAlphabet)]
	}
	return string(out)
}

// ShareLink renders the join URL embedding the dispute identifier.
func ShareLink(host, disputeID string) string {
	return fmt.Sprintf("https://%s/join/%s", host, disputeID)
}

// ParseShareLink extracts the dispute identifier from a share link.
func ParseShareLink(link string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", false
	}
	const prefix = "/join/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", false
	}
	id := strings.TrimPrefix(u.Path, prefix)
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// NormalizeShareCode uppercases and trims a user-entered code.
func NormalizeShareCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validShareCode(code string) bool {
	if len(code) != shareCodeLen {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(shareCodeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}
