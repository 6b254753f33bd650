// Package jwt реализует генерацию и парсинг JWT токенов сессии с пользовательскими claim полями.
//
// Токены выдаёт провайдер идентичности; сервис только проверяет подпись общим
// секретом и извлекает из них сессию. GenerateToken используется в тестах и
// в локальном окружении для выпуска токенов разработчика.
package jwt

import (
	"time"

	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

// Maker описывает интерфейс для генерации и парсинга JWT токенов сессии.
type Maker interface {
	GenerateToken(session models.Session) (string, error)
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl реализует интерфейс Maker с использованием секретного ключа
// и времени жизни токена (TTL).
type MakerImpl struct {
	secretKey string        // Секретный ключ для подписи токенов.
	tokenTTL  time.Duration // Время жизни токена.
}

// NewJWTMaker создаёт новый экземпляр MakerImpl на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}
