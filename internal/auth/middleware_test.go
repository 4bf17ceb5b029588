package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims, method jwt.SigningMethod) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func serve(t *testing.T, mw gin.HandlerFunc, header string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var subject string
	router := gin.New()
	router.GET("/admin", mw, func(c *gin.Context) {
		subject, _ = Subject(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp, subject
}

func TestJWTMiddleware(t *testing.T) {
	valid := jwt.RegisteredClaims{Subject: "ops", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	expired := jwt.RegisteredClaims{Subject: "ops", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}
	noSubject := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	withAud := jwt.RegisteredClaims{Subject: "ops", Audience: jwt.ClaimStrings{"productmatch"}}

	tests := []struct {
		name     string
		mw       gin.HandlerFunc
		header   string
		wantCode int
	}{
		{"valid", JWTMiddleware("s3cret", ""), "Bearer " + signToken(t, "s3cret", valid, jwt.SigningMethodHS256), http.StatusNoContent},
		{"missing header", JWTMiddleware("s3cret", ""), "", http.StatusUnauthorized},
		{"wrong scheme", JWTMiddleware("s3cret", ""), "Basic abc", http.StatusUnauthorized},
		{"wrong secret", JWTMiddleware("s3cret", ""), "Bearer " + signToken(t, "other", valid, jwt.SigningMethodHS256), http.StatusUnauthorized},
		{"wrong method", JWTMiddleware("s3cret", ""), "Bearer " + signToken(t, "s3cret", valid, jwt.SigningMethodHS512), http.StatusUnauthorized},
		{"expired", JWTMiddleware("s3cret", ""), "Bearer " + signToken(t, "s3cret", expired, jwt.SigningMethodHS256), http.StatusUnauthorized},
		{"missing subject", JWTMiddleware("s3cret", ""), "Bearer " + signToken(t, "s3cret", noSubject, jwt.SigningMethodHS256), http.StatusUnauthorized},
		{"audience mismatch", JWTMiddleware("s3cret", "other-app"), "Bearer " + signToken(t, "s3cret", withAud, jwt.SigningMethodHS256), http.StatusUnauthorized},
		{"audience match", JWTMiddleware("s3cret", "productmatch"), "Bearer " + signToken(t, "s3cret", withAud, jwt.SigningMethodHS256), http.StatusNoContent},
		{"no secret configured", JWTMiddleware("", ""), "Bearer " + signToken(t, "s3cret", valid, jwt.SigningMethodHS256), http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, subject := serve(t, tc.mw, tc.header)
			if resp.Code != tc.wantCode {
				t.Fatalf("expected status %d, got %d (%s)", tc.wantCode, resp.Code, resp.Body.String())
			}
			if tc.wantCode == http.StatusNoContent && subject != "ops" {
				t.Fatalf("expected subject ops, got %q", subject)
			}
		})
	}
}
