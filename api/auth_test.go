package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func validClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": sub,
		"aud": "taskboard",
		"iss": "https://issuer/",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"nbf": time.Now().Add(-time.Minute).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	}
}

func jwtNone(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	auth, err := NewAuth(testSecret, "taskboard", "https://issuer/")
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	return auth
}

func TestNewAuthRequiresSecret(t *testing.T) {
	if _, err := NewAuth("", "", ""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestParseBearer(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "plain", header: "Bearer header.payload.signature", want: "header.payload.signature"},
		{name: "padded lowercase scheme", header: "  bearer  a.b.c ", want: "a.b.c"},
		{name: "blank", header: "   ", wantErr: errMissingAuthorization},
		{name: "basic scheme", header: "Basic dXNlcjpwdw==", wantErr: errBadAuthorization},
		{name: "no token", header: "Bearer", wantErr: errBadAuthorization},
		{name: "two segments", header: "Bearer a.b", wantErr: errBadAuthorization},
		{name: "many periods", header: "Bearer " + strings.Repeat(".", 1000), wantErr: errBadAuthorization},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseBearer(tc.header)
			if err != tc.wantErr {
				t.Fatalf("parseBearer(%q) error = %v, want %v", tc.header, err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("parseBearer(%q) = %q, want %q", tc.header, got, tc.want)
			}
		})
	}
}

func TestUserIDFromTokenHS256(t *testing.T) {
	auth := newTestAuth(t)
	userID, err := auth.UserIDFromToken(signToken(t, testSecret, validClaims("user-123")))
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("unexpected user id: %s", userID)
	}
}

func TestUserIDFromTokenRejectsBadTokens(t *testing.T) {
	auth := newTestAuth(t)

	expired := validClaims("user-123")
	expired["exp"] = time.Now().Add(-5 * time.Minute).Unix()
	wrongAud := validClaims("user-123")
	wrongAud["aud"] = "someone-else"
	noSub := validClaims("")
	noExp := validClaims("user-123")
	delete(noExp, "exp")

	cases := map[string]string{
		"wrong secret":   signToken(t, "other", validClaims("user-123")),
		"expired":        signToken(t, testSecret, expired),
		"wrong audience": signToken(t, testSecret, wrongAud),
		"missing sub":    signToken(t, testSecret, noSub),
		"missing exp":    signToken(t, testSecret, noExp),
		"wrong method":   jwtNone(t, validClaims("user-123")),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := auth.UserIDFromAuthHeader("Bearer " + token); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRequireUserWithoutAuthUsesLocalUser(t *testing.T) {
	e := echo.New()
	var got string
	e.GET("/who", func(c echo.Context) error {
		got = userID(c)
		return c.NoContent(http.StatusOK)
	}, requireUser(nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/who", nil))
	if rec.Code != http.StatusOK || got != localUserID {
		t.Fatalf("expected local user, got %q (status %d)", got, rec.Code)
	}
}

func TestRequireUserAcceptsQueryTokenOnGet(t *testing.T) {
	auth := newTestAuth(t)
	token := signToken(t, testSecret, validClaims("user-9"))

	e := echo.New()
	var got string
	handler := func(c echo.Context) error {
		got = userID(c)
		return c.NoContent(http.StatusOK)
	}
	e.GET("/who", handler, requireUser(auth))
	e.POST("/who", handler, requireUser(auth))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/who?token="+token, nil))
	if rec.Code != http.StatusOK || got != "user-9" {
		t.Fatalf("expected user-9, got %q (status %d)", got, rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/who?token="+token, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for query token on POST, got %d", rec.Code)
	}
}
