package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/zulandar/mhai/internal/conversation"
)

// recorder captures requests made to a stub backend.
type recorder struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []map[string]string
}

func (r *recorder) last() (*http.Request, map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.requests)
	return r.requests[n-1], r.bodies[n-1]
}

func newStub(t *testing.T, handler http.HandlerFunc) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		rec.mu.Lock()
		rec.requests = append(rec.requests, r)
		rec.bodies = append(rec.bodies, body)
		rec.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Opts{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, rec
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"no scheme", "localhost:8000"},
		{"ftp", "ftp://example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(Opts{BaseURL: tt.url}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLogin_StoresCookiesAndEchoesCSRF(t *testing.T) {
	c, rec := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case SessionPath:
			http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "sess-1", Path: "/"})
			http.SetCookie(w, &http.Cookie{Name: CSRFCookie, Value: "csrf-1", Path: "/"})
			_, _ = w.Write([]byte(`{"id":3,"username":"river"}`))
		default:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":10,"prompt":"hi","response":null}`))
		}
	})

	user, err := c.Login(context.Background(), "river")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != 3 || user.Username != "river" {
		t.Errorf("user = %+v", user)
	}
	if c.CSRFToken() != "csrf-1" {
		t.Errorf("csrf token = %q, want csrf-1", c.CSRFToken())
	}

	if _, err := c.Send(context.Background(), conversation.Diary, "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	req, _ := rec.last()
	if got := req.Header.Get(CSRFHeader); got != "csrf-1" {
		t.Errorf("%s = %q, want csrf-1", CSRFHeader, got)
	}
	ck, err := req.Cookie(SessionCookie)
	if err != nil || ck.Value != "sess-1" {
		t.Errorf("session cookie = %v, %v", ck, err)
	}
}

func TestLogin_RequiresUsername(t *testing.T) {
	c, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {})
	if _, err := c.Login(context.Background(), " "); err == nil {
		t.Fatal("expected error for blank username")
	}
}

func TestList_SinceQuery(t *testing.T) {
	c, rec := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":5,"user_input":"hello","ai_response":"hi there"}]`))
	})

	since := uint(4)
	msgs, err := c.List(context.Background(), conversation.Chat, &since)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	req, _ := rec.last()
	if req.URL.Path != "/api/mhai-chat/" || req.URL.Query().Get("since_id") != "4" {
		t.Errorf("request = %s", req.URL)
	}
	if len(msgs) != 1 || msgs[0].Prompt != "hello" || msgs[0].Response != "hi there" {
		t.Errorf("msgs = %+v", msgs)
	}

	if _, err := c.List(context.Background(), conversation.Chat, nil); err != nil {
		t.Fatalf("list: %v", err)
	}
	req, _ = rec.last()
	if req.URL.RawQuery != "" {
		t.Errorf("full list query = %q, want empty", req.URL.RawQuery)
	}
}

func TestSend_UsesSurfaceInputField(t *testing.T) {
	tests := []struct {
		surface conversation.Surface
		field   string
	}{
		{conversation.Chat, "user_input"},
		{conversation.Diary, "prompt"},
	}
	for _, tt := range tests {
		t.Run(tt.surface.Name, func(t *testing.T) {
			c, rec := newStub(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"id":1,"prompt":"x","response":null}`))
			})
			m, err := c.Surface(tt.surface).Send(context.Background(), "x")
			if err != nil {
				t.Fatalf("send: %v", err)
			}
			if m.Answered() {
				t.Error("null response decoded as answered")
			}
			req, body := rec.last()
			if req.Method != http.MethodPost || req.URL.Path != tt.surface.Path {
				t.Errorf("request = %s %s", req.Method, req.URL.Path)
			}
			if body[tt.field] != "x" {
				t.Errorf("body = %v, want %s=x", body, tt.field)
			}
		})
	}
}

func TestStatusError(t *testing.T) {
	c, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail":"CSRF Failed"}`))
	})

	_, err := c.List(context.Background(), conversation.Diary, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != http.StatusForbidden || !strings.Contains(se.Body, "CSRF Failed") {
		t.Errorf("status error = %+v", se)
	}
	if !strings.Contains(err.Error(), "status 403") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestList_MalformedJSON(t *testing.T) {
	c, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"prompt":"no id"}]`))
	})
	if _, err := c.List(context.Background(), conversation.Diary, nil); err == nil {
		t.Fatal("expected decode error for message without id")
	}
}

func TestList_ContextCancelled(t *testing.T) {
	c, _ := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.List(ctx, conversation.Diary, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
