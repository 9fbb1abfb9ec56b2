package utils

import "github.com/google/uuid"

// GenerateTokenID returns a random identifier for jti claims and session keys
func GenerateTokenID() string {
	return uuid.NewString()
}
