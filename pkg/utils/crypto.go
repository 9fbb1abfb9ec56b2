package utils

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenerateSalt returns 16 random bytes hex encoded
func GenerateSalt() (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return hex.EncodeToString(salt), nil
}

// SignHMAC returns the hex HMAC-SHA256 of message under secret
func SignHMAC(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks signature against message in constant time
func VerifyHMAC(secret, message, signature string) bool {
	expected, err := hex.DecodeString(SignHMAC(secret, message))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// MaskString mask string (for sensitive information display)
func MaskString(str string, start, end int, mask rune) string {
	runes := []rune(str)
	if len(runes) <= start+end {
		return strings.Repeat(string(mask), len(runes))
	}
	for i := start; i < len(runes)-end; i++ {
		runes[i] = mask
	}
	return string(runes)
}

// MaskAccount masks a login identifier for logs
func MaskAccount(account string) string {
	if at := strings.IndexByte(account, '@'); at > 0 {
		return MaskString(account[:at], 1, 1, '*') + account[at:]
	}
	return MaskString(account, 2, 2, '*')
}
