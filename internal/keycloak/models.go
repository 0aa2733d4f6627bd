// Пакет keycloak — HTTP-клиент к Keycloak Admin REST API.
// models.go — модели данных Keycloak.
package keycloak

import "time"

// TokenResponse — ответ на запрос токена через Client Credentials flow.
type TokenResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // G117: структура токена OAuth2
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// KeycloakUser — пользователь в Keycloak.
type KeycloakUser struct { //nolint:revive // stuttering допустим — внешний API Keycloak
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Enabled       bool   `json:"enabled"`
	CreatedAt     int64  `json:"createdTimestamp"`
	EmailVerified bool   `json:"emailVerified"`
}

// CreatedAtTime возвращает CreatedAt как time.Time.
// Keycloak хранит timestamp в миллисекундах.
func (u *KeycloakUser) CreatedAtTime() time.Time {
	return time.UnixMilli(u.CreatedAt)
}

// KeycloakGroup — группа в Keycloak.
type KeycloakGroup struct { //nolint:revive // stuttering допустим — внешний API Keycloak
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// RealmRepresentation — краткая информация о realm.
type RealmRepresentation struct {
	Realm   string `json:"realm"`
	Enabled bool   `json:"enabled"`
}

// userEnabledRequest — запрос на включение/отключение пользователя.
// Keycloak принимает частичное представление пользователя в PUT /users/{id}.
type userEnabledRequest struct {
	Enabled bool `json:"enabled"`
}
