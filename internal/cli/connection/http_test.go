package connection

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewHTTPClient(t *testing.T) {
	tests := []struct {
		name string
		addr string
		want string
	}{
		{"with http prefix", "http://127.0.0.1:5090", "http://127.0.0.1:5090"},
		{"with https prefix", "https://localhost:5090", "https://localhost:5090"},
		{"without prefix", "127.0.0.1:5090", "http://127.0.0.1:5090"},
		{"trailing slash", "127.0.0.1:5090/", "http://127.0.0.1:5090"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewHTTPClient(tt.addr, 0).BaseURL(); got != tt.want {
				t.Errorf("BaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHTTPClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/maintenance/size" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "timemachine/") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(`{"code":"OK","message":"Success","data":{"bytes":42,"label":"Storing 42 B of data"}}`))
	}))
	defer server.Close()

	var size struct {
		Bytes int64  `json:"bytes"`
		Label string `json:"label"`
	}
	client := NewHTTPClient(server.URL, time.Second)
	if err := client.Get(context.Background(), "/v1/maintenance/size", &size); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if size.Bytes != 42 || size.Label == "" {
		t.Errorf("size = %+v", size)
	}
}

func TestHTTPClient_Post(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		var body struct {
			Keep []string `json:"keep"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(body.Keep) != 1 || body.Keep[0] != "abc" {
			t.Errorf("body = %+v", body)
		}
		w.Write([]byte(`{"code":"OK","data":{"removed":["old"]}}`))
	}))
	defer server.Close()

	var report struct {
		Removed []string `json:"removed"`
	}
	client := NewHTTPClient(server.URL, time.Second)
	if err := client.Post(context.Background(), "/v1/maintenance/gc", map[string]any{"keep": []string{"abc"}}, &report); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if len(report.Removed) != 1 || report.Removed[0] != "old" {
		t.Errorf("report = %+v", report)
	}
}

func TestHTTPClient_Delete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := NewHTTPClient(server.URL, time.Second).Delete(context.Background(), "/v1/sessions/abc"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
}

func TestParseResponse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		header   string
		wantCode string
		wantMsg  string
	}{
		{"envelope", http.StatusNotFound, `{"code":"TM-SNAP-4040","message":"snapshot not found","details":"abc/3"}`, "", "TM-SNAP-4040", "snapshot not found: abc/3"},
		{"plain body", http.StatusInternalServerError, `oops`, "TM-SYS-5000", "TM-SYS-5000", "status 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			if tt.header != "" {
				rec.Header().Set("X-Error-Code", tt.header)
			}
			rec.WriteHeader(tt.status)
			rec.WriteString(tt.body)

			err := ParseResponse(rec.Result(), nil)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if apiErr.Status != tt.status || apiErr.Code != tt.wantCode {
				t.Errorf("APIError = %+v", apiErr)
			}
			if !strings.Contains(apiErr.Error(), tt.wantMsg) {
				t.Errorf("Error() = %q, want %q", apiErr.Error(), tt.wantMsg)
			}
		})
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	if err := NewHTTPClient(addr, 200*time.Millisecond).Get(context.Background(), "/health", nil); err == nil {
		t.Error("Get() should fail against a closed server")
	}
}

func TestHTTPClient_UnixSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "tm")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "d.sock")

	l, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"OK","data":{"status":"healthy"}}`))
	}))
	server.Listener = l
	server.Start()
	defer server.Close()

	client := NewHTTPClient(UnixScheme+path, time.Second)
	if client.BaseURL() != "http://unix" {
		t.Errorf("BaseURL() = %q", client.BaseURL())
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := client.Get(context.Background(), "/health", &health); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("status = %q", health.Status)
	}
}
