package command

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
)

// mockServer is a test daemon routing by longest matching path prefix.
type mockServer struct {
	*httptest.Server
	handlers map[string]http.HandlerFunc
}

func newMockServer() *mockServer {
	m := &mockServer{handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		patterns := make([]string, 0, len(m.handlers))
		for p := range m.handlers {
			patterns = append(patterns, p)
		}
		sort.Slice(patterns, func(i, j int) bool { return len(patterns[i]) > len(patterns[j]) })
		for _, p := range patterns {
			if strings.HasPrefix(r.URL.Path, p) {
				m.handlers[p](w, r)
				return
			}
		}
		http.NotFound(w, r)
	}))
	return m
}

func (m *mockServer) handle(pattern string, handler http.HandlerFunc) {
	m.handlers[pattern] = handler
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResponse(w http.ResponseWriter, status int, code, message string) {
	jsonResponse(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
