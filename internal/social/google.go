package social

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GoogleVerifier validates Google ID tokens locally: RS256 signature against
// Google's published JWKS, audience bound to our OAuth client id.
type GoogleVerifier struct {
	audience string
	keys     *jwksCache
}

func NewGoogleVerifier(audience string, jwksURL string, client *http.Client) *GoogleVerifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &GoogleVerifier{
		audience: audience,
		keys: &jwksCache{
			keys:    make(map[string]*rsa.PublicKey),
			ttl:     time.Hour,
			jwksURL: jwksURL,
			client:  client,
		},
	}
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	jwt.RegisteredClaims
}

// Verify checks the token's signature and audience and returns the asserted
// profile. An unverified email is rejected outright.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (Profile, error) {
	token, err := jwt.ParseWithClaims(idToken, &googleClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token missing kid header")
		}
		return v.keys.getKey(ctx, kid)
	}, jwt.WithAudience(v.audience), jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return Profile{}, fmt.Errorf("%w: verify id token: %v", ErrProviderLookup, err)
	}

	claims, ok := token.Claims.(*googleClaims)
	if !ok || !token.Valid || claims.Email == "" {
		return Profile{}, fmt.Errorf("%w: invalid id token claims", ErrProviderLookup)
	}
	if !claims.EmailVerified {
		return Profile{}, ErrUnverifiedEmail
	}

	return Profile{Email: claims.Email, Name: claims.Name}, nil
}

// jwksCache caches RSA public keys fetched from a JWKS endpoint, refreshing
// on unknown kid or TTL expiry.
type jwksCache struct {
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	ttl       time.Duration
	jwksURL   string
	client    *http.Client
}

func (c *jwksCache) getKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	if key, ok := c.keys[kid]; ok && time.Since(c.fetchedAt) < c.ttl {
		c.mu.RUnlock()
		return key, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if key, ok := c.keys[kid]; ok && time.Since(c.fetchedAt) < c.ttl {
		return key, nil
	}

	if err := c.fetch(ctx); err != nil {
		return nil, err
	}

	key, ok := c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %q not found in jwks", kid)
	}
	return key, nil
}

type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (c *jwksCache) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("build jwks request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			continue
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(nBytes),
			E: int(new(big.Int).SetBytes(eBytes).Int64()),
		}
	}

	c.keys = keys
	c.fetchedAt = time.Now()
	return nil
}
