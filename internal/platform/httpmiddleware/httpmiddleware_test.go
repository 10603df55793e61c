package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"filedrop.local/gee"
	"filedrop.local/gee/middleware"
	"filedrop.local/internal/platform/auth"
	"filedrop.local/internal/platform/metrics"
	"filedrop.local/internal/platform/ratelimit"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"direct", "203.0.113.5:5555", nil, "203.0.113.5"},
		{"untrusted proxy header ignored", "203.0.113.5:5555", map[string]string{"X-Forwarded-For": "1.1.1.1"}, "203.0.113.5"},
		{"cloudflare via loopback", "127.0.0.1:1234", map[string]string{"CF-Connecting-IP": "198.51.100.1"}, "198.51.100.1"},
		{"xff skips trusted hops", "10.0.0.2:80", map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.9"}, "198.51.100.2"},
		{"xff spoofed left hop ignored", "10.0.0.2:80", map[string]string{"X-Forwarded-For": "6.6.6.6, 198.51.100.2, 10.0.0.9"}, "198.51.100.2"},
		{"xff all private", "10.0.0.2:80", map[string]string{"X-Forwarded-For": "192.168.1.7, 10.0.0.9"}, "192.168.1.7"},
		{"xff garbage left of real client", "10.0.0.2:80", map[string]string{"X-Forwarded-For": "junk, 198.51.100.4"}, "198.51.100.4"},
		{"xff garbage stops walk", "10.0.0.2:80", map[string]string{"X-Forwarded-For": "198.51.100.4, junk, 10.0.0.9"}, "10.0.0.9"},
		{"x-real-ip", "192.168.1.10:80", map[string]string{"X-Real-IP": "198.51.100.3"}, "198.51.100.3"},
		{"garbage header", "172.16.0.1:80", map[string]string{"X-Forwarded-For": "not-an-ip"}, "172.16.0.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tc.want {
				t.Fatalf("ClientIP: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClientIP_MultipleForwardedForLines(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:80"
	req.Header.Add("X-Forwarded-For", "6.6.6.6")
	req.Header.Add("X-Forwarded-For", "198.51.100.5, 10.0.0.9")
	if got := ClientIP(req); got != "198.51.100.5" {
		t.Fatalf("ClientIP: got %q", got)
	}
}

func newAdminRouter(t *testing.T) (*gee.Engine, auth.TokenService) {
	t.Helper()
	ts, err := auth.NewHS256Service("secret", "issuer", time.Hour)
	if err != nil {
		t.Fatalf("NewHS256Service: %v", err)
	}
	r := gee.New()
	r.Use(gee.Recovery(), middleware.ReqID())
	admin := r.Group("/admin")
	admin.Use(AuthRequired(ts), RequireRole(auth.RoleAdmin))
	admin.GET("/me", func(ctx *gee.Context) {
		id, _ := auth.GetIdentity(ctx.Req.Context())
		ctx.JSON(http.StatusOK, gee.H{"sub": id.Subject, "role": id.Role})
	})
	return r, ts
}

func TestAuthRequired(t *testing.T) {
	r, ts := newAdminRouter(t)

	do := func(authz string) int {
		req := httptest.NewRequest(http.MethodGet, "/admin/me", nil)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := do(""); got != http.StatusUnauthorized {
		t.Fatalf("missing header: got %d", got)
	}
	if got := do("Token abc"); got != http.StatusUnauthorized {
		t.Fatalf("bad scheme: got %d", got)
	}
	if got := do("Bearer not.a.jwt"); got != http.StatusUnauthorized {
		t.Fatalf("bad token: got %d", got)
	}

	userTok, _, err := ts.Sign("someone", "user")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if got := do("Bearer " + userTok); got != http.StatusForbidden {
		t.Fatalf("wrong role: got %d", got)
	}

	adminTok, _, err := ts.Sign(auth.RoleAdmin, auth.RoleAdmin)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if got := do("bearer " + adminTok); got != http.StatusOK {
		t.Fatalf("admin: got %d", got)
	}
}

func TestRateLimit_NilLimiterPassesThrough(t *testing.T) {
	r := gee.New()
	r.GET("/t", RateLimit(nil, ratelimit.ShortenRule), func(ctx *gee.Context) { ctx.String(http.StatusOK, "ok") })

	for i := 0; i < ratelimit.ShortenRule.Limit+5; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/t", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, rec.Code)
		}
	}
}

func TestRateLimit_RedisDownFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 20 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	r := gee.New()
	r.GET("/t", RateLimit(ratelimit.NewLimiter(client), ratelimit.RedirectRule), func(ctx *gee.Context) { ctx.String(http.StatusOK, "ok") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/t", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200 when redis is unreachable", rec.Code)
	}
}

func TestRateLimitMiddleware_HTTP(t *testing.T) {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr, Password: os.Getenv("REDIS_PASSWORD")})
	t.Cleanup(func() { _ = client.Close() })

	pingCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		t.Skipf("skip: redis not available at %s: %v", redisAddr, err)
	}

	rule := ratelimit.Rule{Prefix: "mw-test-" + time.Now().Format("150405.000000"), Limit: 2, Window: 2 * time.Second}
	r := gee.New()
	r.GET("/t", RateLimit(ratelimit.NewLimiter(client), rule), func(ctx *gee.Context) { ctx.String(http.StatusOK, "ok") })

	doReq := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/t", nil)
		req.RemoteAddr = "127.0.0.1:1234"
		req.Header.Set("CF-Connecting-IP", "203.0.113.10")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < rule.Limit; i++ {
		if got := doReq().Code; got != http.StatusOK {
			t.Fatalf("request %d: got %d, want %d", i+1, got, http.StatusOK)
		}
	}
	rec := doReq()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over limit: got %d, want %d, body=%s", rec.Code, http.StatusTooManyRequests, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}

func TestMetrics_CountsByRoutePattern(t *testing.T) {
	r := gee.New()
	r.Use(Metrics())
	r.GET("/s/:code", func(ctx *gee.Context) { ctx.Status(http.StatusFound) })

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/s/:code", "302"))
	for _, code := range []string{"aaaaaaaa", "bbbbbbbb"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/s/"+code, nil))
	}
	after := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/s/:code", "302"))
	if after-before != 2 {
		t.Fatalf("requests counted under route pattern: got %v, want 2", after-before)
	}
}

func TestTraceName_RenamesSpanToRoute(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	r := gee.New()
	r.Use(middleware.ReqID(), TraceName())
	r.GET("/s/:code", func(ctx *gee.Context) { ctx.Redirect(http.StatusFound, "https://example.com/") })
	h := otelhttp.NewHandler(r, "http", otelhttp.WithTracerProvider(tp))

	for _, path := range []string{"/s/ab12CD34", "/nope"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Request-ID", "rid-"+path)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	ended := sr.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "GET /s/:code", ended[0].Name())
	assert.Equal(t, "GET UNMATCHED", ended[1].Name())

	attrs := attribute.NewSet(ended[0].Attributes()...)
	route, _ := attrs.Value("http.route")
	assert.Equal(t, "/s/:code", route.AsString())
	rid, _ := attrs.Value("request.id")
	assert.Equal(t, "rid-/s/ab12CD34", rid.AsString())
}

func TestRetryAfterSeconds(t *testing.T) {
	cases := map[time.Duration]int{
		time.Millisecond:        1,
		time.Second:             1,
		1500 * time.Millisecond: 2,
		59 * time.Second:        59,
	}
	for d, want := range cases {
		assert.Equal(t, want, retryAfterSeconds(d), d.String())
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"bearer   abc.def ", "abc.def", true},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"Bearer a b", "", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/shortlinks", nil)
		req.Header.Set("Authorization", tc.header)
		token, ok := bearerToken(req)
		assert.Equal(t, tc.ok, ok, tc.header)
		assert.Equal(t, tc.token, token, tc.header)
	}
}
