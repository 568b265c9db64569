package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const grantPrivileged = "privileged"

// PrivilegeClaims is the body of a privilege token.
type PrivilegeClaims struct {
	Grant string `json:"grant"`
	jwt.RegisteredClaims
}

// IssuePrivilegeToken signs a token granting the privileged tier to
// subject for ttl.
func IssuePrivilegeToken(subject, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("privilege tokens are disabled: no signing secret")
	}
	now := time.Now()
	claims := &PrivilegeClaims{
		Grant: grantPrivileged,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParsePrivilegeToken(tokenString, secret string) (*PrivilegeClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PrivilegeClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*PrivilegeClaims); ok && token.Valid && claims.Grant == grantPrivileged {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// Validator checks privilege tokens locally against the signing secret.
type Validator struct {
	secret string
}

func NewValidator(secret string) *Validator {
	return &Validator{secret: secret}
}

func (v *Validator) Validate(token string) bool {
	if v.secret == "" || token == "" {
		return false
	}
	_, err := ParsePrivilegeToken(token, v.secret)
	return err == nil
}
