package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/microblog/internal/model"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(1.0 / 60.0),
		GeneralBurst:    2,
		AuthRate:        rate.Limit(1.0 / 60.0),
		AuthBurst:       1,
		CleanupInterval: time.Hour,
	}
}

func doRequest(h http.Handler, method, remoteAddr string, principal model.Principal) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", nil)
	req.RemoteAddr = remoteAddr
	req = req.WithContext(ContextWithPrincipal(req.Context(), principal))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGeneralMiddleware_LimitsPerIP(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	h := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		if w := doRequest(h, http.MethodGet, "192.0.2.1:1234", model.Anonymous); w.Code != http.StatusOK {
			t.Fatalf("%d回目: status = %d, want 200", i+1, w.Code)
		}
	}

	w := doRequest(h, http.MethodGet, "192.0.2.1:5678", model.Anonymous)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("バースト超過: status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-Afterヘッダーが設定されていない")
	}

	// 別IPは独立して制限される
	if w := doRequest(h, http.MethodGet, "192.0.2.2:1234", model.Anonymous); w.Code != http.StatusOK {
		t.Errorf("別IP: status = %d, want 200", w.Code)
	}
}

// 認証済みユーザーはIPではなくユーザー単位で制限されることを検証
func TestGeneralMiddleware_LimitsPerUser(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	h := rl.GeneralMiddleware()(okHandler())
	user := model.Principal{UserID: 5, SessionID: "s"}

	doRequest(h, http.MethodGet, "192.0.2.1:1", user)
	doRequest(h, http.MethodGet, "192.0.2.2:1", user)
	if w := doRequest(h, http.MethodGet, "192.0.2.3:1", user); w.Code != http.StatusTooManyRequests {
		t.Errorf("IPが変わっても同一ユーザーは制限されるべき: status = %d", w.Code)
	}
	if rl.GeneralLimiterCount() != 1 {
		t.Errorf("GeneralLimiterCount = %d, want 1", rl.GeneralLimiterCount())
	}
}

func TestAuthMiddleware_OnlyLimitsPOST(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	h := rl.AuthMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		if w := doRequest(h, http.MethodGet, "192.0.2.1:1", model.Anonymous); w.Code != http.StatusOK {
			t.Fatalf("GETは制限対象外: status = %d", w.Code)
		}
	}
	if rl.AuthLimiterCount() != 0 {
		t.Errorf("GETでリミッターが作成された: %d", rl.AuthLimiterCount())
	}

	if w := doRequest(h, http.MethodPost, "192.0.2.1:1", model.Anonymous); w.Code != http.StatusOK {
		t.Fatalf("1回目のPOST: status = %d", w.Code)
	}
	if w := doRequest(h, http.MethodPost, "192.0.2.1:2", model.Anonymous); w.Code != http.StatusTooManyRequests {
		t.Errorf("2回目のPOST: status = %d, want 429", w.Code)
	}
}

func TestRateLimiter_CleanupEvictsStaleEntries(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	rl.general.get("ip:192.0.2.1")
	rl.auth.get("192.0.2.1")

	rl.general.evict(time.Minute, time.Now().Add(2*time.Minute))
	rl.auth.evict(time.Minute, time.Now())

	if rl.GeneralLimiterCount() != 0 {
		t.Errorf("古いエントリが残っている: %d", rl.GeneralLimiterCount())
	}
	if rl.AuthLimiterCount() != 1 {
		t.Errorf("新しいエントリが削除された: %d", rl.AuthLimiterCount())
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{remoteAddr: "192.0.2.1:1234", want: "192.0.2.1"},
		{remoteAddr: "[2001:db8::1]:443", want: "2001:db8::1"},
		{remoteAddr: "192.0.2.9", want: "192.0.2.9"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		if got := clientIP(req); got != tt.want {
			t.Errorf("clientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}
