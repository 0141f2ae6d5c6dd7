package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is what a verified Supabase access token says about its bearer.
type Identity struct {
	Subject string
	Email   string
	Roles   []string
}

// supabaseClaims mirrors the GoTrue access token payload. Application roles
// may be mirrored into app_metadata by a backend hook.
type supabaseClaims struct {
	jwt.RegisteredClaims
	Email       string      `json:"email"`
	Role        string      `json:"role"`
	AppMetadata appMetadata `json:"app_metadata"`
}

type appMetadata struct {
	Roles []string `json:"roles,omitempty"`
}

// VerifierOptions are the registered-claim expectations.
type VerifierOptions struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Verifier validates Supabase access tokens.
type Verifier struct {
	keyfunc func(context.Context) jwt.Keyfunc
	methods []string
	opts    VerifierOptions
}

// NewHMACVerifier validates tokens signed with the project's shared JWT secret.
func NewHMACVerifier(secret string, opts VerifierOptions) *Verifier {
	key := []byte(secret)
	kf := func(*jwt.Token) (any, error) { return key, nil }
	return &Verifier{
		keyfunc: func(context.Context) jwt.Keyfunc { return kf },
		methods: []string{jwt.SigningMethodHS256.Alg()},
		opts:    opts,
	}
}

// NewJWKSVerifier validates tokens signed with the project's asymmetric keys,
// fetched and refreshed from the JWKS endpoint.
func NewJWKSVerifier(jwksURL string, refresh time.Duration, opts VerifierOptions, logger *slog.Logger) (*Verifier, error) {
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: 10 * time.Second},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refresh,
		RefreshErrorHandler: func(_ context.Context, err error) {
			if logger != nil {
				logger.Error("jwks refresh", slog.String("url", jwksURL), slog.Any("error", err))
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("auth: jwks storage: %w", err)
	}
	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("auth: keyfunc: %w", err)
	}
	return NewKeyfuncVerifier(k, opts), nil
}

// NewKeyfuncVerifier wraps an existing keyfunc, e.g. one built from a static
// JWK set.
func NewKeyfuncVerifier(k keyfunc.Keyfunc, opts VerifierOptions) *Verifier {
	return &Verifier{
		keyfunc: k.KeyfuncCtx,
		methods: []string{
			jwt.SigningMethodRS256.Alg(),
			jwt.SigningMethodES256.Alg(),
		},
		opts: opts,
	}
}

// Verify parses and validates an access token.
func (v *Verifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.opts.Leeway),
	}
	if v.opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.opts.Issuer))
	}
	if v.opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.opts.Audience))
	}

	claims := &supabaseClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyfunc(ctx), parserOpts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		Subject: claims.Subject,
		Email:   claims.Email,
		Roles:   claims.AppMetadata.Roles,
	}, nil
}
