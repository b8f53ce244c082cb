// Package auth extracts the caller's user id from a bearer token and carries
// it through the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrIdentityMismatch = errors.New("request user does not match the authenticated user")
)

// DevUserHeader carries the user id when header identity is allowed.
const DevUserHeader = "X-User-ID"

type ctxKey struct{}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user id, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Resolve picks the acting user for a request. The authenticated identity
// wins; a claimed id that disagrees with it is refused. Without an
// authenticated identity the claimed id is trusted.
func Resolve(ctx context.Context, claimed string) (string, error) {
	if id, ok := UserID(ctx); ok {
		if claimed != "" && claimed != id {
			return "", ErrIdentityMismatch
		}
		return id, nil
	}
	if claimed == "" {
		return "", ErrUnauthenticated
	}
	return claimed, nil
}

// Verifier issues and checks HS256 tokens whose subject is the user id.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token for userID valid for ttl.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iss": v.issuer,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Parse validates token and returns its subject.
func (v *Verifier) Parse(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", ErrUnauthenticated
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return "", fmt.Errorf("%w: wrong issuer", ErrUnauthenticated)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}
	return sub, nil
}

// Middleware attaches the caller's identity to the request context. Tokens
// come from the Authorization header or, for websocket upgrades, the "token"
// query parameter. With allowHeader set, DevUserHeader is accepted as well.
// Requests without a valid identity pass through unauthenticated; requests
// with an invalid token are refused.
func Middleware(v *Verifier, allowHeader bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token != "" && v != nil {
				userID, err := v.Parse(token)
				if err != nil {
					log.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected token")
					http.Error(w, "invalid token", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
				return
			}
			if allowHeader {
				if userID := r.Header.Get(DevUserHeader); userID != "" {
					next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}
