package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

type fakeServer struct {
	t        *testing.T
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeServer(t *testing.T) (*fakeServer, *Client) {
	t.Helper()
	fake := &fakeServer{t: t, routes: map[string]func(http.ResponseWriter, *http.Request){}}
	server := httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(server.Close)

	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok", TokenType: "Bearer"})
	client, err := NewClient(server.URL+"/", tokens, 5*time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return fake, client
}

func (f *fakeServer) handle(route string, handler func(w http.ResponseWriter, r *http.Request)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = handler
}

func (f *fakeServer) reply(route string, status int, body string) {
	f.handle(route, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func (f *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Auth:   r.Header.Get("Authorization"),
	}
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	handler, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	handler(w, r)
}

func (f *fakeServer) last() recordedRequest {
	f.t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		f.t.Fatal("no requests recorded")
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeServer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "http://localhost:8081/", want: "http://localhost:8081"},
		{input: "  https://desk.example.edu  ", want: "https://desk.example.edu"},
		{input: "localhost:8081", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeBaseURL(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tt.input)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%q: got %q err=%v", tt.input, got, err)
		}
	}
}

func TestDecodeEnvelope(t *testing.T) {
	op := operation{name: "test", fallback: "실패했습니다.", byStatus: map[int]string{http.StatusNotFound: "없습니다."}}
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		malformed   bool
		wantValue   string
	}{
		{name: "success", status: 200, body: `{"success":true,"data":{"value":"ok"}}`, wantValue: "ok"},
		{name: "bare body", status: 200, body: `{"value":"bare"}`, wantValue: "bare"},
		{name: "success false with message", status: 200, body: `{"success":false,"message":"권한 없음"}`, wantMessage: "권한 없음"},
		{name: "success false without message", status: 200, body: `{"success":false}`, wantMessage: "실패했습니다."},
		{name: "non 2xx with success true", status: 500, body: `{"success":true,"data":{}}`, wantMessage: "실패했습니다."},
		{name: "status override", status: 404, body: `{"success":false}`, wantMessage: "없습니다."},
		{name: "empty body", status: 200, body: ``, wantMessage: "실패했습니다."},
		{name: "invalid json", status: 200, body: `<html>`, malformed: true},
		{name: "invalid json on error status", status: 502, body: `<html>`, wantMessage: "실패했습니다."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Value string `json:"value"`
			}
			err := decodeEnvelope(op, tt.status, []byte(tt.body), &out)
			switch {
			case tt.malformed:
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("expected ErrMalformedResponse, got %v", err)
				}
			case tt.wantMessage != "":
				var apiErr *APIError
				if !errors.As(err, &apiErr) {
					t.Fatalf("expected APIError, got %v", err)
				}
				if apiErr.Error() != tt.wantMessage || apiErr.Status != tt.status {
					t.Fatalf("got %q (%d) want %q", apiErr.Error(), apiErr.Status, tt.wantMessage)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if out.Value != tt.wantValue {
					t.Fatalf("value: got %q want %q", out.Value, tt.wantValue)
				}
			}
		})
	}
}

func TestMissingDataUsesMissingText(t *testing.T) {
	op := operation{name: "detail", fallback: "실패", missing: "데이터가 없습니다."}
	var out map[string]any
	err := decodeEnvelope(op, 200, []byte(`{"success":true,"data":null}`), &out)
	if UserMessage(err) != "데이터가 없습니다." {
		t.Fatalf("got %v", err)
	}
}

func TestUserMessage(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), &ValidationError{Field: "title", Message: "채팅 제목을 입력해주세요."})
	if got := UserMessage(wrapped); got != "채팅 제목을 입력해주세요." {
		t.Fatalf("validation: got %q", got)
	}
	if got := UserMessage(ErrMalformedResponse); !strings.Contains(got, "형식") {
		t.Fatalf("malformed: got %q", got)
	}
	if got := UserMessage(nil); got != "" {
		t.Fatalf("nil: got %q", got)
	}
}

func TestUnauthenticatedSourceBlocksRequest(t *testing.T) {
	fake := &fakeServer{t: t, routes: map[string]func(http.ResponseWriter, *http.Request){}}
	server := httptest.NewServer(http.HandlerFunc(fake.serve))
	defer server.Close()

	errMissing := errors.New("no token")
	client, err := NewClient(server.URL, failingSource{err: errMissing}, time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.ListMyThreads(context.Background(), "", ""); !errors.Is(err, errMissing) {
		t.Fatalf("expected token error, got %v", err)
	}
	if fake.count() != 0 {
		t.Fatalf("request should not reach the server")
	}
}

type failingSource struct {
	err error
}

func (f failingSource) Token() (*oauth2.Token, error) {
	return nil, f.err
}
