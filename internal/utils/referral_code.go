package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codePrefixLen    = 4
	codeRandomLen    = 4
	MaxGeneratedCode = 10
)

var referralCodePattern = regexp.MustCompile(`^[A-Z0-9]{4,12}$`)

// ValidReferralCode reports whether code is 4-12 uppercase alphanumerics
func ValidReferralCode(code string) bool {
	return referralCodePattern.MatchString(code)
}

// NormalizeReferralCode trims and uppercases user input
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GenerateReferralCode builds a code from the email's local part, four random
// characters and the tail of a base-36 timestamp, e.g. "JOHNX7Q2K9".
// The result is not guaranteed to be unique.
func GenerateReferralCode(email string, now time.Time) (string, error) {
	prefix := emailPrefix(email)

	random := make([]byte, codeRandomLen)
	for i := range random {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random code character: %w", err)
		}
		random[i] = codeAlphabet[idx.Int64()]
	}

	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	tail := 3
	if len(prefix) == codePrefixLen {
		tail = MaxGeneratedCode - codePrefixLen - codeRandomLen
	}
	if len(stamp) > tail {
		stamp = stamp[len(stamp)-tail:]
	}

	return prefix + string(random) + stamp, nil
}

func emailPrefix(email string) string {
	local := email
	if at := strings.Index(email, "@"); at >= 0 {
		local = email[:at]
	}

	var b strings.Builder
	for _, r := range strings.ToUpper(local) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == codePrefixLen {
				break
			}
		}
	}
	return b.String()
}
