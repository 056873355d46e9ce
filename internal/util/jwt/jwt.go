// Package jwt verifies the user tokens issued by the auth service. Signing
// is kept for development tooling and tests; this service never issues
// tokens to clients.
package jwt

import (
	"time"

	libjwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/dependency"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
)

const UserTokenType = "USER"

func generateRegisteredClaims(expiration time.Duration) libjwt.RegisteredClaims {
	return libjwt.RegisteredClaims{
		ExpiresAt: libjwt.NewNumericDate(time.Now().Add(expiration)),
		IssuedAt:  libjwt.NewNumericDate(time.Now()),
		ID:        uuid.New().String(),
	}
}

func SignUserToken(dep *dependency.Dependency, userID uint, expiration time.Duration) (string, error) {
	claims := dto.UserJwtPayload{
		UserID:           userID,
		Type:             UserTokenType,
		RegisteredClaims: generateRegisteredClaims(expiration),
	}

	token := libjwt.NewWithClaims(libjwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(dep.Cfg.JwtSecret))
	if err != nil {
		return "", err
	}

	return signedToken, nil
}

func validateToken[T libjwt.Claims](dep *dependency.Dependency, signedToken string, claims T) (T, error) {
	token, err := libjwt.ParseWithClaims(
		signedToken,
		claims,
		func(token *libjwt.Token) (any, error) {
			return []byte(dep.Cfg.JwtSecret), nil
		},
		libjwt.WithValidMethods([]string{libjwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return claims, err
	}

	if !token.Valid {
		return claims, libjwt.ErrTokenInvalidClaims
	}

	return claims, nil
}

func ValidateUserToken(dep *dependency.Dependency, signedToken string) (*dto.UserJwtPayload, error) {
	claims := &dto.UserJwtPayload{}
	parsedClaims, err := validateToken(dep, signedToken, claims)
	if err != nil {
		return nil, err
	}

	if parsedClaims.Type != UserTokenType || parsedClaims.UserID == 0 {
		return nil, libjwt.ErrTokenInvalidClaims
	}

	return parsedClaims, nil
}
