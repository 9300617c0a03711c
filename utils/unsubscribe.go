package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UnsubscribePlaceholder is the token operators put in broadcast bodies where
// the recipient-specific unsubscribe link should go.
const UnsubscribePlaceholder = "{{unsubscribe_url}}"

// UnsubscribeToken signs a recipient-specific unsubscribe claim. The token
// rides in the email footer, so it gets a long expiry.
func UnsubscribeToken(key []byte, email string, sentBroadcastID uint) (string, error) {
	claims := jwt.MapClaims{
		"sub": email,
		"bid": sentBroadcastID,
		"exp": time.Now().Add(180 * 24 * time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// ParseUnsubscribeToken validates a token and returns the email and sent
// broadcast id it was issued for.
func ParseUnsubscribeToken(key []byte, tokenString string) (string, uint, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return "", 0, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", 0, fmt.Errorf("invalid unsubscribe token")
	}

	email, _ := claims["sub"].(string)
	if email == "" {
		return "", 0, fmt.Errorf("unsubscribe token missing subject")
	}
	bid, _ := claims["bid"].(float64)
	return email, uint(bid), nil
}

// UnsubscribeURL builds the full link substituted for UnsubscribePlaceholder.
func UnsubscribeURL(baseURL string, key []byte, email string, sentBroadcastID uint) (string, error) {
	token, err := UnsubscribeToken(key, email, sentBroadcastID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/t/u/%s", baseURL, token), nil
}
