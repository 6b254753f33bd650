package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

// ErrMissingSubject токен не содержит идентификатора пользователя.
var ErrMissingSubject = errors.New("token has no subject")

// UserMetadata метаданные пользователя, которые провайдер кладёт в токен.
type UserMetadata struct {
	Plan string `json:"plan,omitempty"`
}

// CustomClaims описывает данные сессии, хранящиеся в JWT.
// Идентификатор пользователя передаётся в стандартном поле sub.
type CustomClaims struct {
	Email                string       `json:"email"`
	Role                 string       `json:"role"`
	UserMetadata         UserMetadata `json:"user_metadata"`
	jwt.RegisteredClaims              // Встроенные стандартные claims JWT (sub, exp, iat)
}

// Session преобразует claims в доменную сессию.
func (c *CustomClaims) Session() models.Session {
	return models.Session{
		UserID: c.Subject,
		Email:  c.Email,
		Role:   c.Role,
		Plan:   c.UserMetadata.Plan,
	}
}

// GenerateToken создает JWT токен для сессии, подписывая его секретным ключом.
func (j *MakerImpl) GenerateToken(session models.Session) (string, error) {
	claims := CustomClaims{
		Email:        session.Email,
		Role:         session.Role,
		UserMetadata: UserMetadata{Plan: session.Plan},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(j.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secretKey))
}

// ParseToken парсит JWT токен, проверяет подпись, срок действия и наличие sub.
func (j *MakerImpl) ParseToken(tokenStr string) (*CustomClaims, error) {
	const op = "jwt.ParseToken"
	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(j.secretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: invalid token", op)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingSubject)
	}
	return claims, nil
}
