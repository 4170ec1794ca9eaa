// Package session описывает аутентифицированную сессию запроса.
// Сессия явно кладётся в context.Context middleware-ом и явно достаётся обработчиками:
// никакого глобального «текущего пользователя».
package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"serotonyl.ru/waste-rewards/internal/common"
)

// Role — роль владельца сессии.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Session — проверенная сессия.
type Session struct {
	UserID    int64     // ID пользователя (0 у админской сессии)
	Role      Role      // user или admin
	TokenID   string    // jti токена
	ExpiresAt time.Time // Когда токен истекает
}

// IsAdmin — сессия выдана по паролю администратора.
func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

type ctxKey struct{}

// WithSession возвращает контекст с сессией.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext достаёт сессию из контекста.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}

// Claims — payload сессионного JWT.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Manager выпускает и проверяет сессионные токены (HS256).
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager создаёт менеджер токенов.
func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL — время жизни выпускаемых токенов.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue выпускает токен для пользователя (или админа при role=admin).
func (m *Manager) Issue(userID int64, role Role) (string, Session, error) {
	now := m.now()
	s := Session{
		UserID:    userID,
		Role:      role,
		TokenID:   uuid.NewString(),
		ExpiresAt: now.Add(m.ttl).Truncate(time.Second),
	}

	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        s.TokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return token, s, nil
}

// Parse проверяет подпись и срок токена и возвращает сессию.
func (m *Manager) Parse(token string) (Session, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid {
		return Session{}, common.ErrSessionExpired
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Session{}, common.ErrSessionExpired
	}
	if claims.Role != RoleUser && claims.Role != RoleAdmin {
		return Session{}, common.ErrSessionExpired
	}
	if claims.Role == RoleUser && userID <= 0 {
		return Session{}, common.ErrSessionExpired
	}

	s := Session{UserID: userID, Role: claims.Role, TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}
