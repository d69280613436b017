package logger

import (
	"testing"
)

func TestRedactSensitive_SecretKeys(t *testing.T) {
	l, buf := newBufferLogger(t, "info", "json")

	l.Info("config loaded", "api_token", "abc123", "password", "hunter2", "empty_secret", "")

	entry := decodeEntry(t, buf)
	if entry["api_token"] != redactedValue {
		t.Errorf("api_token = %v", entry["api_token"])
	}
	if entry["password"] != redactedValue {
		t.Errorf("password = %v", entry["password"])
	}
	if entry["empty_secret"] != "" {
		t.Errorf("empty values are left alone, got %v", entry["empty_secret"])
	}
}

func TestRedactSensitive_ProfileKeys(t *testing.T) {
	l, buf := newBufferLogger(t, "info", "json")

	l.Info("store opened", "owner_id", "76561198000000000", "profile", "abc")

	entry := decodeEntry(t, buf)
	if entry["owner_id"] != "76...00" {
		t.Errorf("owner_id = %v, want 76...00", entry["owner_id"])
	}
	if entry["profile"] != "***" {
		t.Errorf("profile = %v, want ***", entry["profile"])
	}
}

func TestRedactSensitive_ProfilePaths(t *testing.T) {
	l, buf := newBufferLogger(t, "info", "json")

	l.Info("filesystem store opened", "root", "/data/profiles/76561198000000000/TimeMachineSaves")

	if got := decodeEntry(t, buf)["root"]; got != "/data/profiles/76...00/TimeMachineSaves" {
		t.Errorf("root = %v", got)
	}
}

func TestRedactSensitive_NormalValues(t *testing.T) {
	l, buf := newBufferLogger(t, "info", "json")

	l.Info("snapshot stored", "session_id", "42", "round", 7, "root", "/data/TimeMachineSaves")

	entry := decodeEntry(t, buf)
	if entry["session_id"] != "42" {
		t.Errorf("session_id = %v", entry["session_id"])
	}
	if entry["round"] != float64(7) {
		t.Errorf("round = %v", entry["round"])
	}
	if entry["root"] != "/data/TimeMachineSaves" {
		t.Errorf("root = %v", entry["root"])
	}
}

func TestRedactPath(t *testing.T) {
	tests := map[string]string{
		"/base/profiles/player-1234/TimeMachineSaves": "/base/profiles/pl...34/TimeMachineSaves",
		"/base/TimeMachineSaves":                      "/base/TimeMachineSaves",
		"profiles/abc/x":                              "profiles/***/x",
	}
	for in, want := range tests {
		if got := RedactPath(in); got != want {
			t.Errorf("RedactPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsSensitiveKey(t *testing.T) {
	for _, k := range []string{"password", "API_TOKEN", "client_secret", "Authorization"} {
		if !IsSensitiveKey(k) {
			t.Errorf("IsSensitiveKey(%q) = false", k)
		}
	}
	for _, k := range []string{"session_id", "round", "owner_id"} {
		if IsSensitiveKey(k) {
			t.Errorf("IsSensitiveKey(%q) = true", k)
		}
	}
}

func TestMaskValue(t *testing.T) {
	tests := map[string]string{
		"":        "***",
		"abcdef":  "***",
		"abcdefg": "ab...fg",
	}
	for in, want := range tests {
		if got := maskValue(in); got != want {
			t.Errorf("maskValue(%q) = %q, want %q", in, got, want)
		}
	}
}
