// Package jwks validates bearer tokens against the identity provider's
// published key set. Keys are Ed25519 only.
package jwks

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// cacheTTL bounds how long a fetched key set is reused before re-discovery.
const cacheTTL = 5 * time.Minute

// Sentinel errors let callers map validation failures to distinct API codes.
var (
	ErrMalformed = errors.New("malformed token")
	ErrExpired   = errors.New("token expired")
	ErrInvalid   = errors.New("invalid token")
)

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kty string `json:"kty"` // Key type
	Kid string `json:"kid"` // Key ID
	Use string `json:"use"` // Public key use
	Alg string `json:"alg"` // Algorithm
	Crv string `json:"crv"` // Curve
	X   string `json:"x"`   // X coordinate
}

// Client handles JWKS discovery, caching, and token validation.
type Client struct {
	jwksURL    string
	issuer     string
	audience   string
	httpClient *http.Client

	mutex     sync.RWMutex
	cached    *JWKS
	expiresAt time.Time

	testMode bool
	testKey  ed25519.PrivateKey
}

// NewClient creates a JWKS client bound to an expected issuer and audience.
func NewClient(jwksURL, issuer, audience string) *Client {
	return &Client{
		jwksURL:  jwksURL,
		issuer:   issuer,
		audience: audience,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewTestClient creates a client that signs and accepts its own tokens.
// Signature verification still runs; only key discovery is bypassed.
func NewTestClient(issuer, audience string) *Client {
	_, priv, _ := ed25519.GenerateKey(nil)
	return &Client{
		issuer:   issuer,
		audience: audience,
		testMode: true,
		testKey:  priv,
	}
}

// MintTestToken issues a signed token for sub, valid for ttl. Test mode only.
func (c *Client) MintTestToken(sub string, ttl time.Duration) (string, error) {
	if !c.testMode {
		return "", errors.New("not a test client")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"iss": c.issuer,
		"aud": c.audience,
		"sub": sub,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	token.Header["kid"] = "test"
	return token.SignedString(c.testKey)
}

func (c *Client) fetchJWKS(ctx context.Context) (*JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS fetch failed with status %d", resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}
	return &jwks, nil
}

func (c *Client) getJWKS(ctx context.Context) (*JWKS, error) {
	c.mutex.RLock()
	if c.cached != nil && time.Now().Before(c.expiresAt) {
		jwks := c.cached
		c.mutex.RUnlock()
		return jwks, nil
	}
	c.mutex.RUnlock()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Double-check after acquiring write lock
	if c.cached != nil && time.Now().Before(c.expiresAt) {
		return c.cached, nil
	}

	jwks, err := c.fetchJWKS(ctx)
	if err != nil {
		return nil, err
	}
	c.cached = jwks
	c.expiresAt = time.Now().Add(cacheTTL)
	return jwks, nil
}

// publicKeyFor resolves the verification key for a token, either the test
// key or the JWKS entry matching the kid header.
func (c *Client) publicKeyFor(ctx context.Context, token *jwt.Token) (ed25519.PublicKey, error) {
	if c.testMode {
		return c.testKey.Public().(ed25519.PublicKey), nil
	}

	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("%w: missing kid in header", ErrMalformed)
	}

	jwks, err := c.getJWKS(ctx)
	if err != nil {
		return nil, err
	}
	for _, key := range jwks.Keys {
		if key.Kid != kid {
			continue
		}
		if key.Kty != "OKP" || key.Crv != "Ed25519" || key.Alg != "EdDSA" {
			return nil, fmt.Errorf("%w: unsupported key type for kid %s", ErrInvalid, kid)
		}
		xBytes, err := base64.RawURLEncoding.DecodeString(key.X)
		if err != nil {
			return nil, fmt.Errorf("failed to decode public key: %w", err)
		}
		return ed25519.PublicKey(xBytes), nil
	}
	return nil, fmt.Errorf("%w: no key with kid %s", ErrInvalid, kid)
}

// ValidateJWT verifies signature, issuer, audience, and expiry, returning
// the token claims.
func (c *Client) ValidateJWT(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalid, token.Header["alg"])
		}
		return c.publicKeyFor(ctx, token)
	}

	parsed, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, keyFunc,
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	if !parsed.Valid {
		return nil, ErrInvalid
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalid
	}
	return claims, nil
}

// Subject validates the token and returns its sub claim, the user id.
func (c *Client) Subject(ctx context.Context, tokenString string) (string, error) {
	claims, err := c.ValidateJWT(ctx, tokenString)
	if err != nil {
		return "", err
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: missing sub claim", ErrInvalid)
	}
	return sub, nil
}
