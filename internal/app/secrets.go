package app

import (
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"
)

// SecretService mints the reconnection tokens players hold onto between
// sessions. Tokens are HS256 JWTs bound to a username and lobby; they never
// expire on their own because rooms are reaped long before expiry matters.
type SecretService struct {
	signingKey string
}

func NewSecretService(signingKey string) *SecretService {
	return &SecretService{signingKey: signingKey}
}

func (s *SecretService) Mint(username, lobby string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("secret service is nil")
	}
	if username == "" {
		return "", fmt.Errorf("username is required")
	}
	if s.signingKey == "" {
		return "", fmt.Errorf("signing key is not configured")
	}

	claims := jwt.MapClaims{
		"sub":   username,
		"lobby": lobby,
		"iat":   time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.signingKey))
}

// Verify checks the token signature and that it was minted for this
// username and lobby.
func (s *SecretService) Verify(secret, username, lobby string) bool {
	if s == nil || secret == "" {
		return false
	}
	token, err := jwt.Parse(secret, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.signingKey), nil
	})
	if err != nil || !token.Valid {
		return false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	return claims["sub"] == username && claims["lobby"] == lobby
}
