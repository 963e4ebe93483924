package utils

import (
	"net/http/httptest"
	"testing"
	"time"
)

// TestGetIPAddress checks the header precedence used behind a reverse proxy.
func TestGetIPAddress(t *testing.T) {
	testCases := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expected   string
	}{
		{"RemoteAddr IPv4", "10.0.0.5:12345", nil, "10.0.0.5"},
		{"RemoteAddr IPv6", "[::1]:12345", nil, "::1"},
		{"RemoteAddr without port", "not-an-ip", nil, "not-an-ip"},
		{"X-Real-IP", "8.8.8.8:1", map[string]string{"X-Real-IP": "192.168.1.50"}, "192.168.1.50"},
		{"X-Forwarded-For first hop", "8.8.8.8:1", map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2"}, "1.1.1.1"},
		{"Cloudflare wins", "8.8.8.8:1", map[string]string{"CF-Connecting-IP": "3.3.3.3", "X-Real-IP": "4.4.4.4"}, "3.3.3.3"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := GetIPAddress(req); got != tc.expected {
				t.Errorf("Expected IP '%s', but got '%s'", tc.expected, got)
			}
		})
	}
}

// TestPasswordHashing ensures hashes verify only against the original password.
func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "correct horse" {
		t.Fatal("Expected password to be hashed, but got plaintext")
	}
	if !CheckPassword(hash, "correct horse") {
		t.Error("Expected matching password to verify")
	}
	if CheckPassword(hash, "wrong horse") {
		t.Error("Expected wrong password to be rejected")
	}
	if CheckPassword("not-a-bcrypt-hash", "correct horse") {
		t.Error("Expected malformed hash to be rejected")
	}
}

// TestCookieCodec verifies signing round trips and tamper detection.
func TestCookieCodec(t *testing.T) {
	codec := NewCookieCodec("test-secret", time.Hour)

	encoded, err := codec.Encode("user_session", int64(42))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var id int64
	if err := codec.Decode("user_session", encoded, &id); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if id != 42 {
		t.Errorf("Expected decoded id 42, got %d", id)
	}

	if err := codec.Decode("other_cookie", encoded, &id); err == nil {
		t.Error("Expected decode under a different cookie name to fail")
	}

	other := NewCookieCodec("another-secret", time.Hour)
	if err := other.Decode("user_session", encoded, &id); err == nil {
		t.Error("Expected decode with a different secret to fail")
	}
}
