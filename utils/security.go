// familybook/utils/security.go
package utils

import (
	"crypto/sha256"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"
)

// GetIPAddress extracts the real IP address from a request, trusting proxy headers.
func GetIPAddress(r *http.Request) string {
	if cf := r.Header.Get("CF-Connecting-IP"); cf != "" {
		return cf
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// HashPassword returns a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}

// CookieCodec signs and verifies cookie values. Values are JSON encoded and
// carry a timestamp, so stale cookies are rejected after maxAge.
type CookieCodec struct {
	sc *securecookie.SecureCookie
}

// NewCookieCodec derives a 32-byte HMAC key from secret.
func NewCookieCodec(secret string, maxAge time.Duration) *CookieCodec {
	hashKey := sha256.Sum256([]byte(secret))
	sc := securecookie.New(hashKey[:], nil)
	sc.MaxAge(int(maxAge.Seconds()))
	sc.SetSerializer(securecookie.JSONEncoder{})
	return &CookieCodec{sc: sc}
}

func (c *CookieCodec) Encode(name string, value interface{}) (string, error) {
	return c.sc.Encode(name, value)
}

func (c *CookieCodec) Decode(name, raw string, dst interface{}) error {
	return c.sc.Decode(name, raw, dst)
}
