package gee

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecovery_PanicBecomesJSON500(t *testing.T) {
	e := New()
	e.Use(Recovery())
	e.GET("/s/:code", func(ctx *Context) {
		panic("store exploded")
	})

	req := httptest.NewRequest(http.MethodGet, "/s/ab12CD34", nil)
	req.Header.Set("X-Request-ID", "req-1")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v (%s)", err, w.Body.String())
	}
	if body.Code != http.StatusInternalServerError || body.RequestId != "req-1" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestRecovery_SkipsRestOfChain(t *testing.T) {
	var ran []string
	e := New()
	e.Use(Recovery(), func(ctx *Context) {
		ran = append(ran, "mw")
		ctx.Next()
		ran = append(ran, "mw-after") // panic 直接越过这里
	})
	e.GET("/panic",
		func(ctx *Context) {
			ran = append(ran, "h1")
			panic("boom")
		},
		func(ctx *Context) { ran = append(ran, "h2") },
	)

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/panic", nil))

	if len(ran) != 2 || ran[0] != "mw" || ran[1] != "h1" {
		t.Fatalf("executed: %v, want [mw h1]", ran)
	}
}

// 已经写出 302 再 panic：状态码不能被改写成 500
func TestRecovery_AfterRedirectKeepsStatus(t *testing.T) {
	e := New()
	e.Use(Recovery())
	e.GET("/s/:code", func(ctx *Context) {
		ctx.Redirect(http.StatusFound, "https://example.com/")
		panic("click log exploded")
	})

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/s/ab12CD34", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusFound)
	}
	if w.Header().Get("Location") != "https://example.com/" {
		t.Fatalf("Location: %q", w.Header().Get("Location"))
	}
}

func TestDefault_RecoveryWrapsLaterMiddleware(t *testing.T) {
	e := Default()
	e.Use(func(ctx *Context) { panic("panic in middleware") })
	e.GET("/healthz", func(ctx *Context) { ctx.String(http.StatusOK, "ok") })

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic escaped Recovery: %v", r)
		}
	}()
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
