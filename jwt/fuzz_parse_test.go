package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

// FuzzParse feeds arbitrary strings to Parse. It must never panic, and any
// token it accepts must carry a valid HS256 signature under the secret.
func FuzzParse(f *testing.F) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m, err := NewManager(Config{
		Secret:    testSecret,
		AccessTTL: 5 * time.Minute,
		Issuer:    "authcore",
		Now:       clock.Now,
	})
	if err != nil {
		f.Fatal(err)
	}

	valid, _, err := m.Issue("user-1")
	if err != nil {
		f.Fatal(err)
	}
	forged, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "authcore",
		IssuedAt:  gjwt.NewNumericDate(clock.now),
		ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute)),
	}).SignedString([]byte("another-secret-another-secret-xx"))
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add(valid[:len(valid)-1])
	f.Add(forged)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJub25lIn0.eyJzdWIiOiJ1c2VyLTEifQ.")
	f.Add(strings.Replace(valid, ".", "..", 1))

	f.Fuzz(func(t *testing.T, token string) {
		claims, err := m.Parse(token)
		if err != nil {
			if claims != nil {
				t.Fatal("Parse returned claims with an error")
			}
			return
		}
		if claims == nil || claims.Subject == "" {
			t.Fatal("Parse accepted a token without a subject")
		}

		parts := strings.Split(token, ".")
		if len(parts) != 3 {
			t.Fatalf("Parse accepted a token with %d segments", len(parts))
		}
		sig, err := base64.RawURLEncoding.DecodeString(parts[2])
		if err != nil {
			t.Fatalf("Parse accepted an undecodable signature: %v", err)
		}
		mac := hmac.New(sha256.New, testSecret)
		mac.Write([]byte(parts[0] + "." + parts[1]))
		if !hmac.Equal(sig, mac.Sum(nil)) {
			t.Fatal("Parse accepted a token whose signature does not verify")
		}
	})
}
