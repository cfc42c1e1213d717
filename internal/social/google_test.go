package social

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testAudience = "test-client-id.apps.googleusercontent.com"

func newJWKSServer(t *testing.T, kid string, key *rsa.PublicKey) *httptest.Server {
	t.Helper()
	doc := map[string]any{
		"keys": []map[string]string{
			{
				"kty": "RSA",
				"kid": kid,
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			},
		},
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}))
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, kid string, claims googleClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign id token: %v", err)
	}
	return signed
}

func googleTestClaims(aud string, verified bool) googleClaims {
	return googleClaims{
		Email:         "ada@example.com",
		EmailVerified: verified,
		Name:          "Ada Lovelace",
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{aud},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestGoogleVerify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := newJWKSServer(t, "kid-1", &key.PublicKey)
	defer srv.Close()

	verifier := NewGoogleVerifier(testAudience, srv.URL, srv.Client())
	idToken := signIDToken(t, key, "kid-1", googleTestClaims(testAudience, true))

	profile, err := verifier.Verify(context.Background(), idToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if profile.Email != "ada@example.com" || profile.Name != "Ada Lovelace" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestGoogleVerifyUnverifiedEmail(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := newJWKSServer(t, "kid-1", &key.PublicKey)
	defer srv.Close()

	verifier := NewGoogleVerifier(testAudience, srv.URL, srv.Client())
	idToken := signIDToken(t, key, "kid-1", googleTestClaims(testAudience, false))

	if _, err := verifier.Verify(context.Background(), idToken); !errors.Is(err, ErrUnverifiedEmail) {
		t.Fatalf("got %v, want ErrUnverifiedEmail", err)
	}
}

func TestGoogleVerifyWrongAudience(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := newJWKSServer(t, "kid-1", &key.PublicKey)
	defer srv.Close()

	verifier := NewGoogleVerifier(testAudience, srv.URL, srv.Client())
	idToken := signIDToken(t, key, "kid-1", googleTestClaims("someone-else", true))

	if _, err := verifier.Verify(context.Background(), idToken); !errors.Is(err, ErrProviderLookup) {
		t.Fatalf("got %v, want ErrProviderLookup", err)
	}
}

func TestGoogleVerifyWrongKey(t *testing.T) {
	signingKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	publishedKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := newJWKSServer(t, "kid-1", &publishedKey.PublicKey)
	defer srv.Close()

	verifier := NewGoogleVerifier(testAudience, srv.URL, srv.Client())
	idToken := signIDToken(t, signingKey, "kid-1", googleTestClaims(testAudience, true))

	if _, err := verifier.Verify(context.Background(), idToken); !errors.Is(err, ErrProviderLookup) {
		t.Fatalf("got %v, want ErrProviderLookup", err)
	}
}

func TestGoogleVerifyUnknownKid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := newJWKSServer(t, "kid-1", &key.PublicKey)
	defer srv.Close()

	verifier := NewGoogleVerifier(testAudience, srv.URL, srv.Client())
	idToken := signIDToken(t, key, "kid-2", googleTestClaims(testAudience, true))

	if _, err := verifier.Verify(context.Background(), idToken); !errors.Is(err, ErrProviderLookup) {
		t.Fatalf("got %v, want ErrProviderLookup", err)
	}
}
