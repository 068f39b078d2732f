package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Suhaibinator/PathRouter/pkg/handler"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

var (
	// ErrNoCredentials is returned when a request carries no credentials for
	// the provider.
	ErrNoCredentials = errors.New("no credentials")
	// ErrInvalidCredentials is returned when credentials are present but wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AuthProvider decides whether a request is authenticated.
type AuthProvider interface {
	Authenticate(r *http.Request) bool
}

// AuthProviderFunc adapts a function to AuthProvider.
type AuthProviderFunc func(r *http.Request) bool

// Authenticate implements AuthProvider.
func (f AuthProviderFunc) Authenticate(r *http.Request) bool { return f(r) }

// BasicAuthProvider checks HTTP Basic credentials against a username to
// password map.
type BasicAuthProvider struct {
	Credentials map[string]string
}

// Authenticate implements AuthProvider.
func (p *BasicAuthProvider) Authenticate(r *http.Request) bool {
	username, password, ok := r.BasicAuth()
	if !ok {
		return false
	}
	expected, exists := p.Credentials[username]
	return exists && subtle.ConstantTimeCompare([]byte(password), []byte(expected)) == 1
}

// BearerTokenProvider accepts bearer tokens listed in ValidTokens, or the ones
// Validator approves when it is set.
type BearerTokenProvider struct {
	ValidTokens map[string]bool
	Validator   func(token string) bool
}

// Authenticate implements AuthProvider.
func (p *BearerTokenProvider) Authenticate(r *http.Request) bool {
	token, err := bearerToken(r)
	if err != nil {
		return false
	}
	if p.Validator != nil {
		return p.Validator(token)
	}
	return p.ValidTokens[token]
}

// APIKeyProvider accepts keys from a header or a query parameter.
type APIKeyProvider struct {
	ValidKeys map[string]bool
	Header    string
	Query     string
}

// Authenticate implements AuthProvider.
func (p *APIKeyProvider) Authenticate(r *http.Request) bool {
	key, err := apiKey(r, p.Header, p.Query)
	return err == nil && p.ValidKeys[key]
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrNoCredentials
	}
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", fmt.Errorf("%w: authorization header is not a bearer token", ErrInvalidCredentials)
	}
	token := strings.TrimSpace(authHeader[len(prefix):])
	if token == "" {
		return "", ErrNoCredentials
	}
	return token, nil
}

func apiKey(r *http.Request, header, query string) (string, error) {
	if header != "" {
		if key := r.Header.Get(header); key != "" {
			return key, nil
		}
	}
	if query != "" {
		if key := r.URL.Query().Get(query); key != "" {
			return key, nil
		}
	}
	return "", ErrNoCredentials
}

func unauthorized(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("client_ip", ClientIP(r)),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.Warn("Authentication failed", fields...)
	_ = handler.ErrorResponse(http.StatusUnauthorized, "Unauthorized").Write(w)
}

// AuthenticationWithProvider rejects requests provider does not authenticate
// with 401.
func AuthenticationWithProvider(provider AuthProvider, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !provider.Authenticate(r) {
				unauthorized(w, r, logger, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authentication is AuthenticationWithProvider for a plain function.
func Authentication(authFunc func(*http.Request) bool, logger *zap.Logger) Middleware {
	return AuthenticationWithProvider(AuthProviderFunc(authFunc), logger)
}

// NewBasicAuthMiddleware authenticates with HTTP Basic credentials.
func NewBasicAuthMiddleware(credentials map[string]string, logger *zap.Logger) Middleware {
	return AuthenticationWithProvider(&BasicAuthProvider{Credentials: credentials}, logger)
}

// NewBearerTokenMiddleware authenticates with a fixed set of bearer tokens.
func NewBearerTokenMiddleware(validTokens map[string]bool, logger *zap.Logger) Middleware {
	return AuthenticationWithProvider(&BearerTokenProvider{ValidTokens: validTokens}, logger)
}

// NewAPIKeyMiddleware authenticates with API keys from header or query.
func NewAPIKeyMiddleware(validKeys map[string]bool, header, query string, logger *zap.Logger) Middleware {
	return AuthenticationWithProvider(&APIKeyProvider{ValidKeys: validKeys, Header: header, Query: query}, logger)
}

// UserAuthProvider authenticates a request and returns the user behind it.
type UserAuthProvider[T any] interface {
	AuthenticateUser(r *http.Request) (*T, error)
}

// UserIdentifier is implemented by user types that expose a stable ID. The
// ID is what the user rate limiting strategy keys on.
type UserIdentifier interface {
	UserID() string
}

// BearerTokenUserAuthProvider resolves a bearer token to a user.
type BearerTokenUserAuthProvider[T any] struct {
	GetUserFunc func(token string) (*T, error)
}

// AuthenticateUser implements UserAuthProvider.
func (p *BearerTokenUserAuthProvider[T]) AuthenticateUser(r *http.Request) (*T, error) {
	token, err := bearerToken(r)
	if err != nil {
		return nil, err
	}
	return p.GetUserFunc(token)
}

// BasicUserAuthProvider resolves Basic credentials to a user.
type BasicUserAuthProvider[T any] struct {
	GetUserFunc func(username, password string) (*T, error)
}

// AuthenticateUser implements UserAuthProvider.
func (p *BasicUserAuthProvider[T]) AuthenticateUser(r *http.Request) (*T, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, ErrNoCredentials
	}
	return p.GetUserFunc(username, password)
}

// APIKeyUserAuthProvider resolves an API key to a user.
type APIKeyUserAuthProvider[T any] struct {
	GetUserFunc func(key string) (*T, error)
	Header      string
	Query       string
}

// AuthenticateUser implements UserAuthProvider.
func (p *APIKeyUserAuthProvider[T]) AuthenticateUser(r *http.Request) (*T, error) {
	key, err := apiKey(r, p.Header, p.Query)
	if err != nil {
		return nil, err
	}
	return p.GetUserFunc(key)
}

// JWTClaims are the claims accepted by JWTUserAuthProvider.
type JWTClaims struct {
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c *JWTClaims) UserID() string { return c.Subject }

// JWTUserAuthProvider validates HMAC signed bearer tokens and returns their
// claims as the user.
type JWTUserAuthProvider struct {
	SigningKey []byte

	// Issuer and Audience are checked when non-empty.
	Issuer   string
	Audience string
}

// AuthenticateUser implements UserAuthProvider.
func (p *JWTUserAuthProvider) AuthenticateUser(r *http.Request) (*JWTClaims, error) {
	raw, err := bearerToken(r)
	if err != nil {
		return nil, err
	}

	claims := &JWTClaims{}
	parser := &jwt.Parser{ValidMethods: []string{"HS256", "HS384", "HS512"}}
	token, err := parser.ParseWithClaims(raw, claims, p.signingKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if !token.Valid {
		return nil, ErrInvalidCredentials
	}
	if p.Issuer != "" && !claims.VerifyIssuer(p.Issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidCredentials, claims.Issuer)
	}
	if p.Audience != "" && !claims.VerifyAudience(p.Audience, true) {
		return nil, fmt.Errorf("%w: token is not meant for %q", ErrInvalidCredentials, p.Audience)
	}
	return claims, nil
}

func (p *JWTUserAuthProvider) signingKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return p.SigningKey, nil
}

type userKey[T any] struct{}

type userIDKey struct{}

// WithUser returns a copy of ctx carrying user.
func WithUser[T any](ctx context.Context, user *T) context.Context {
	ctx = context.WithValue(ctx, userKey[T]{}, user)
	if id, ok := any(user).(UserIdentifier); ok {
		ctx = context.WithValue(ctx, userIDKey{}, id.UserID())
	}
	return ctx
}

// GetUser returns the user stored by AuthenticationWithUserProvider, or nil.
func GetUser[T any](r *http.Request) *T {
	user, _ := r.Context().Value(userKey[T]{}).(*T)
	return user
}

// GetUserID returns the authenticated user's ID when the user type implements
// UserIdentifier, or "".
func GetUserID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey{}).(string)
	return id
}

// AuthenticationWithUserProvider authenticates with provider and stores the
// user in the request context. Failures get 401.
func AuthenticationWithUserProvider[T any](provider UserAuthProvider[T], logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := provider.AuthenticateUser(r)
			if err != nil || user == nil {
				unauthorized(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// NewJWTMiddleware authenticates HMAC signed JWT bearer tokens. The claims are
// available through GetUser[JWTClaims].
func NewJWTMiddleware(signingKey []byte, issuer, audience string, logger *zap.Logger) Middleware {
	return AuthenticationWithUserProvider[JWTClaims](&JWTUserAuthProvider{
		SigningKey: signingKey,
		Issuer:     issuer,
		Audience:   audience,
	}, logger)
}
