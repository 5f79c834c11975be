package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/analysis"
)

const testSecret = "test-secret"

func newProtectedRouter(secret, audience string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/whoami", JWTMiddleware(secret, audience), func(c *gin.Context) {
		subject, _ := GetUserID(c.Request.Context())
		c.String(http.StatusOK, subject)
	})
	return router
}

func serve(router *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestJWTMiddlewareAcceptsIssuedToken(t *testing.T) {
	router := newProtectedRouter(testSecret, "smart-ingredients")
	token, err := IssueToken(testSecret, "user-123", "smart-ingredients", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	resp := serve(router, token)
	if resp.Code != http.StatusOK || resp.Body.String() != "user-123" {
		t.Fatalf("unexpected response: %d %s", resp.Code, resp.Body.String())
	}
}

func TestJWTMiddlewareRejectsBadTokens(t *testing.T) {
	router := newProtectedRouter(testSecret, "smart-ingredients")

	wrongAudience, _ := IssueToken(testSecret, "user-123", "other", time.Hour)
	wrongSecret, _ := IssueToken("other-secret", "user-123", "smart-ingredients", time.Hour)
	expired, _ := IssueToken(testSecret, "user-123", "smart-ingredients", -time.Minute)

	for name, token := range map[string]string{
		"missing":        "",
		"wrong audience": wrongAudience,
		"wrong secret":   wrongSecret,
		"expired":        expired,
	} {
		resp := serve(router, token)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, resp.Code)
		}
		var body analysis.ErrorBody
		if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode body: %v", name, err)
		}
		if body.Code != analysis.CodeUnauthorized {
			t.Fatalf("%s: unexpected code %s", name, body.Code)
		}
	}
}

func TestJWTMiddlewareDisabledWithoutSecret(t *testing.T) {
	router := newProtectedRouter("", "")
	if resp := serve(router, ""); resp.Code != http.StatusOK {
		t.Fatalf("expected open access, got %d", resp.Code)
	}
}

func TestIssueTokenValidatesInput(t *testing.T) {
	if _, err := IssueToken("", "user", "", time.Hour); err == nil {
		t.Fatal("expected error without secret")
	}
	if _, err := IssueToken(testSecret, "", "", time.Hour); err == nil {
		t.Fatal("expected error without subject")
	}
}
