package utils

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

// BuildReferralLink returns the signup URL carrying a referral code
func BuildReferralLink(baseURL, code string) (string, error) {
	if baseURL == "" {
		return "", fmt.Errorf("referral base URL is not configured")
	}
	if code == "" {
		return "", fmt.Errorf("referral code is empty")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid referral base URL: %w", err)
	}
	q := u.Query()
	q.Set("ref", code)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// GenerateReferralQRCode renders the referral link as a 256px PNG
func GenerateReferralQRCode(baseURL, code string) ([]byte, error) {
	link, err := BuildReferralLink(baseURL, code)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return png, nil
}
