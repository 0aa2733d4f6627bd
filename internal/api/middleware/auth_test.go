package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key-pm"

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	nB64 := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	eB64 := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())

	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   nB64,
				"e":   eB64,
			},
		},
	}

	data, _ := json.Marshal(jwks)
	return data
}

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestJWTAuth создаёт JWTAuth для тестов.
func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey) *JWTAuth {
	t.Helper()
	jwksJSON := buildJWKSetJSON(&key.PublicKey, testKeyID)
	kf, err := keyfunc.NewJWKSetJSON(jwksJSON)
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}

	return NewJWTAuthWithKeyfunc(
		kf,
		"https://keycloak.test/realms/ortokids",
		[]string{"ortokids-admins"},
		[]string{"ortokids-users"},
		testLogger(),
	)
}

// generateUserToken генерирует JWT пользователя.
func generateUserToken(t *testing.T, key *rsa.PrivateKey, sub, username, email string, roles, groups []string, expired bool) string {
	t.Helper()

	exp := time.Now().Add(time.Hour)
	if expired {
		exp = time.Now().Add(-time.Hour)
	}

	claims := jwt.MapClaims{
		"sub":                sub,
		"preferred_username": username,
		"email":              email,
		"iss":                "https://keycloak.test/realms/ortokids",
		"exp":                jwt.NewNumericDate(exp),
		"nbf":                jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		"iat":                jwt.NewNumericDate(time.Now()),
	}

	if len(roles) > 0 {
		claims["realm_access"] = map[string]any{
			"roles": roles,
		}
	}
	if len(groups) > 0 {
		claims["groups"] = groups
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return tokenStr
}

// --- Тесты JWT Middleware ---

// TestJWTAuth_ValidAdminToken — валидный JWT администратора.
func TestJWTAuth_ValidAdminToken(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			t.Fatal("claims не найдены в контексте")
		}

		if claims.Subject != "user-123" {
			t.Errorf("ожидался sub=user-123, получен %s", claims.Subject)
		}
		if claims.PreferredUsername != "admin" {
			t.Errorf("ожидался username=admin, получен %s", claims.PreferredUsername)
		}
		if claims.Email != "admin@test.com" {
			t.Errorf("ожидался email=admin@test.com, получен %s", claims.Email)
		}
		if claims.Role != "app_admin" {
			t.Errorf("ожидалась роль app_admin, получена %s", claims.Role)
		}

		w.WriteHeader(http.StatusOK)
	}))

	tokenStr := generateUserToken(t, key, "user-123", "admin", "admin@test.com",
		[]string{"app_admin"}, []string{"ortokids-admins"}, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
}

// TestJWTAuth_RawTokenInContext — исходный токен сохраняется для проброса в бэкенд.
func TestJWTAuth_RawTokenInContext(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	tokenStr := generateUserToken(t, key, "user-123", "maria", "maria@test.com",
		nil, []string{"ortokids-users"}, false)

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TokenFromContext(r.Context()); got != tokenStr {
			t.Errorf("ожидался исходный токен в контексте, получен %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d", rec.Code)
	}
}

// TestJWTAuth_MissingToken — отсутствие Authorization header.
func TestJWTAuth_MissingToken(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestJWTAuth_ExpiredToken — просроченный токен.
func TestJWTAuth_ExpiredToken(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	tokenStr := generateUserToken(t, key, "user-123", "admin", "admin@test.com",
		nil, nil, true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestJWTAuth_InvalidFormat — некорректный формат Authorization.
func TestJWTAuth_InvalidFormat(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"no bearer prefix", "token123"},
		{"empty bearer", "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("ожидался статус 401, получен %d", rec.Code)
			}
		})
	}
}

// TestJWTAuth_GroupMapping — маппинг групп в роли.
func TestJWTAuth_GroupMapping(t *testing.T) {
	tests := []struct {
		name         string
		groups       []string
		expectedRole string
	}{
		{"admin group", []string{"ortokids-admins"}, "app_admin"},
		{"user group", []string{"ortokids-users"}, "user"},
		{"both groups", []string{"ortokids-admins", "ortokids-users"}, "app_admin"},
		{"no groups", []string{}, ""},
		{"unknown group", []string{"other-group"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := generateTestKey(t)
			auth := newTestJWTAuth(t, key)

			handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				claims := ClaimsFromContext(r.Context())
				if claims == nil {
					t.Fatal("claims не найдены")
				}
				if claims.Role != tt.expectedRole {
					t.Errorf("ожидалась роль %q, получена %q", tt.expectedRole, claims.Role)
				}
				w.WriteHeader(http.StatusOK)
			}))

			tokenStr := generateUserToken(t, key, "user-123", "user", "user@test.com",
				nil, tt.groups, false)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
			req.Header.Set("Authorization", "Bearer "+tokenStr)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("ожидался статус 200, получен %d", rec.Code)
			}
		})
	}
}

// TestJWTAuth_WrongIssuer — токен с неверным issuer.
func TestJWTAuth_WrongIssuer(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	exp := time.Now().Add(time.Hour)
	claims := jwt.MapClaims{
		"sub":                "user-123",
		"preferred_username": "admin",
		"iss":                "https://other-keycloak.test/realms/other",
		"exp":                jwt.NewNumericDate(exp),
		"nbf":                jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		"iat":                jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestJWTAuth_RolesFromRealmAccess — роль из realm_access при отсутствии групп.
func TestJWTAuth_RolesFromRealmAccess(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			t.Fatal("claims не найдены")
		}
		// Без групп, но с realm_access.roles=["app_admin"] → Role=app_admin
		if claims.Role != "app_admin" {
			t.Errorf("ожидалась роль app_admin, получена %s", claims.Role)
		}
		w.WriteHeader(http.StatusOK)
	}))

	tokenStr := generateUserToken(t, key, "user-123", "admin", "admin@test.com",
		[]string{"app_admin", "default-roles-ortokids"}, nil, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d", rec.Code)
	}
}

// TestJWTAuth_CustomClaimNames — имена claims с ролями и группами
// берутся из конфигурации, включая вложенные пути через точку.
func TestJWTAuth_CustomClaimNames(t *testing.T) {
	key := generateTestKey(t)
	jwksJSON := buildJWKSetJSON(&key.PublicKey, testKeyID)
	kf, err := keyfunc.NewJWKSetJSON(jwksJSON)
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}

	auth := &JWTAuth{
		jwks:        kf,
		logger:      testLogger(),
		adminGroups: []string{"ortokids-admins"},
		userGroups:  []string{"ortokids-users"},
		issuer:      "https://keycloak.test/realms/ortokids",
		rolesClaim:  "resource_access.portal.roles",
		groupsClaim: "member_of",
	}

	claims := jwt.MapClaims{
		"sub":       "user-123",
		"iss":       "https://keycloak.test/realms/ortokids",
		"exp":       jwt.NewNumericDate(time.Now().Add(time.Hour)),
		"iat":       jwt.NewNumericDate(time.Now()),
		"member_of": []string{"ortokids-users"},
		"resource_access": map[string]any{
			"portal": map[string]any{"roles": []string{"user"}},
		},
		// Стандартные claims не должны использоваться при кастомных именах
		"groups": []string{"ortokids-admins"},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := ClaimsFromContext(r.Context())
		if got == nil {
			t.Fatal("claims не найдены")
		}
		if got.Role != "user" {
			t.Errorf("ожидалась роль user из member_of, получена %q", got.Role)
		}
		if len(got.Groups) != 1 || got.Groups[0] != "ortokids-users" {
			t.Errorf("Groups = %v, ожидались группы из member_of", got.Groups)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
}

// TestClaimStrings — извлечение списков строк по пути claim'а.
func TestClaimStrings(t *testing.T) {
	m := jwt.MapClaims{
		"groups": []any{"a", "b", 42},
		"realm_access": map[string]any{
			"roles": []any{"app_admin"},
		},
	}

	if got := claimStrings(m, "groups"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("claimStrings(groups) = %v, ожидали [a b]", got)
	}
	if got := claimStrings(m, "realm_access.roles"); len(got) != 1 || got[0] != "app_admin" {
		t.Errorf("claimStrings(realm_access.roles) = %v, ожидали [app_admin]", got)
	}
	if got := claimStrings(m, "missing.path"); got != nil {
		t.Errorf("claimStrings(missing.path) = %v, ожидали nil", got)
	}
}

// --- Тесты RBAC middleware ---

// TestRequireRole_HasRole — пользователь с нужной ролью.
func TestRequireRole_HasRole(t *testing.T) {
	handler := RequireRole("app_admin", "user")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	claims := &AuthClaims{Role: "app_admin"}
	ctx := context.WithValue(context.Background(), ContextKeyClaims, claims)
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d", rec.Code)
	}
}

// TestRequireRole_MissingRole — пользователь без нужной роли.
func TestRequireRole_MissingRole(t *testing.T) {
	handler := RequireRole("app_admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	claims := &AuthClaims{Role: "user"}
	ctx := context.WithValue(context.Background(), ContextKeyClaims, claims)
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("ожидался статус 403, получен %d", rec.Code)
	}
}

// TestRequireRole_NoClaims — отсутствие claims в контексте.
func TestRequireRole_NoClaims(t *testing.T) {
	handler := RequireRole("app_admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// --- Тесты context helpers ---

// TestClaimsFromContext_Empty — пустой контекст.
func TestClaimsFromContext_Empty(t *testing.T) {
	if claims := ClaimsFromContext(context.Background()); claims != nil {
		t.Errorf("ожидался nil, получено %+v", claims)
	}
}

// TestSubjectFromContext — извлечение subject.
func TestSubjectFromContext(t *testing.T) {
	claims := &AuthClaims{Subject: "user-123"}
	ctx := context.WithValue(context.Background(), ContextKeyClaims, claims)

	if sub := SubjectFromContext(ctx); sub != "user-123" {
		t.Errorf("ожидался user-123, получен %q", sub)
	}
}

// TestSubjectFromContext_Empty — пустой контекст.
func TestSubjectFromContext_Empty(t *testing.T) {
	if sub := SubjectFromContext(context.Background()); sub != "" {
		t.Errorf("ожидалась пустая строка, получено %q", sub)
	}
}

// TestTokenFromContext_Empty — пустой контекст.
func TestTokenFromContext_Empty(t *testing.T) {
	if token := TokenFromContext(context.Background()); token != "" {
		t.Errorf("ожидалась пустая строка, получено %q", token)
	}
}

// TestAuthClaims_HasRole — проверка HasRole.
func TestAuthClaims_HasRole(t *testing.T) {
	claims := &AuthClaims{Role: "app_admin"}

	if !claims.HasRole("app_admin") {
		t.Error("ожидался HasRole(app_admin) = true")
	}
	if claims.HasRole("user") {
		t.Error("ожидался HasRole(user) = false")
	}
}
