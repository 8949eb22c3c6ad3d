package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goodhare/goodhare/internal/shared"
	th "github.com/goodhare/goodhare/internal/testing"
)

func ok(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body)
	}
}

func TestBasicRouter(t *testing.T) {
	t.Run("method patterns", func(t *testing.T) {
		r := NewBasicRouter()
		r.HandleFunc(http.MethodGet, "/items/{id}", func(w http.ResponseWriter, req *http.Request) {
			io.WriteString(w, "item "+req.PathValue("id"))
		})

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))
		if rec.Body.String() != "item 42" {
			t.Errorf("unexpected body %q", rec.Body.String())
		}

		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/items/42", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("middleware order", func(t *testing.T) {
		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(mw("first"), mw("second"))
		r.Handle("", "/", ok("root"))

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		if strings.Join(order, ",") != "first,second" {
			t.Errorf("unexpected middleware order %v", order)
		}
	})

	t.Run("Handler registers routes", func(t *testing.T) {
		r := NewBasicRouter()
		h := NewOAuthHandler(th.NewMockAuth(), "state")
		r.Handler(h)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=state&code=abc", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("Logging", func(t *testing.T) {
		var buf bytes.Buffer
		logger := shared.NewLogger(&buf)

		h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))

		out := buf.String()
		for _, want := range []string{"path=/brew", "status=418", "method=GET"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in log output %q", want, out)
			}
		}
	})

	t.Run("Recover", func(t *testing.T) {
		var buf bytes.Buffer
		h := Recover(shared.NewLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
		if !strings.Contains(buf.String(), "boom") {
			t.Errorf("expected panic to be logged, got %q", buf.String())
		}
	})

	t.Run("SecurityHeaders", func(t *testing.T) {
		rec := httptest.NewRecorder()
		SecurityHeaders(ok("x")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Header().Get("X-Frame-Options") != "DENY" {
			t.Error("expected X-Frame-Options header")
		}
	})
}

func TestOAuthHandler(t *testing.T) {
	callback := func(h *OAuthHandler, query string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+query, nil))
		return rec
	}

	t.Run("successful exchange", func(t *testing.T) {
		auth := th.NewMockAuth()
		h := NewOAuthHandler(auth, "xyz")

		rec := callback(h, "state=xyz&code=abc")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Authorization Successful") {
			t.Errorf("expected success page, got %q", rec.Body.String())
		}

		token, err := h.Wait(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		if token.AccessToken != "mock_access" {
			t.Errorf("unexpected token %+v", token)
		}
		if codes := auth.Codes(); len(codes) != 1 || codes[0] != "abc" {
			t.Errorf("expected code abc to be exchanged, got %v", codes)
		}
	})

	t.Run("invalid state", func(t *testing.T) {
		h := NewOAuthHandler(th.NewMockAuth(), "xyz")

		rec := callback(h, "state=other&code=abc")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if _, err := h.Wait(context.Background(), time.Second); !errors.Is(err, shared.ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("access denied", func(t *testing.T) {
		h := NewOAuthHandler(th.NewMockAuth(), "xyz")

		callback(h, "state=xyz&error=access_denied")
		if _, err := h.Wait(context.Background(), time.Second); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("exchange failure", func(t *testing.T) {
		auth := th.NewMockAuth()
		auth.ExchangeErr = shared.ErrAuthFailed
		h := NewOAuthHandler(auth, "xyz")

		rec := callback(h, "state=xyz&code=abc")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
		if _, err := h.Wait(context.Background(), time.Second); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("second callback rejected", func(t *testing.T) {
		h := NewOAuthHandler(th.NewMockAuth(), "xyz")
		callback(h, "state=xyz&code=abc")

		if rec := callback(h, "state=xyz&code=abc"); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 on replay, got %d", rec.Code)
		}
	})

	t.Run("wait timeout", func(t *testing.T) {
		h := NewOAuthHandler(th.NewMockAuth(), "xyz")
		if _, err := h.Wait(context.Background(), time.Millisecond); !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})
}

func TestRun(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	srv := New(ok("pong"), Options{ReadTimeout: time.Second, WriteTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Run(ctx, srv, ln, shared.NewLogger(&bytes.Buffer{})) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "pong" {
		t.Errorf("unexpected body %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

var _ CodeExchanger = (*th.MockAuth)(nil)
