// Package auth resolves bearer tokens to users.
package auth

import (
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	// Issuer is the iss claim of access tokens.
	Issuer = "rhythm"
	// AccessTokenDuration is the lifetime of tokens issued by GenerateAccessToken.
	AccessTokenDuration = 24 * time.Hour

	bearerPrefix = "Bearer "
)

var (
	// ErrMissingToken is returned when the request carries no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned for malformed, expired or foreign tokens.
	ErrInvalidToken = errors.New("invalid access token")
)

// ClaimsMessage is the claim set of an access token. The subject is the
// user id in decimal.
type ClaimsMessage struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// UserClaims is the verified identity carried by a token.
type UserClaims struct {
	Username string
	UserID   int32
}

// GenerateAccessToken signs an HS256 access token for the user.
func GenerateAccessToken(secret string, userID int32, username string, expiresAt time.Time) (string, error) {
	claims := &ClaimsMessage{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   strconv.FormatInt(int64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign access token")
	}
	return signed, nil
}

// ParseAccessToken verifies the token signature, issuer and expiry.
func ParseAccessToken(secret, tokenString string) (*UserClaims, error) {
	claims := &ClaimsMessage{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 32)
	if err != nil || userID <= 0 {
		return nil, errors.Wrapf(ErrInvalidToken, "bad subject %q", claims.Subject)
	}
	return &UserClaims{UserID: int32(userID), Username: claims.Username}, nil
}

// ExtractBearerToken returns the token of an "Authorization: Bearer" header.
func ExtractBearerToken(header string) (string, error) {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
