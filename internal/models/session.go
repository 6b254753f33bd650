package models

// RoleAdmin роль администратора в claims сессии.
const RoleAdmin = "admin"

// Session аутентифицированная сессия, полученная от провайдера идентичности.
// Plan значение плана из метаданных пользователя, может быть пустым.
type Session struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Plan   string `json:"plan,omitempty"`
}

// IsAdmin сообщает, выдана ли сессии административная роль.
func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}
