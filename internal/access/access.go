// Package access is the token-gated read path for profiles: it validates
// owner identity or a share token, fetches the latest profile, and
// classifies failures into stable categories callers can branch on.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/okian/sonder/internal/adapters/repository"
	"github.com/okian/sonder/internal/domain/model"
	"github.com/okian/sonder/internal/pipeline"
	"github.com/okian/sonder/pkg/metrics"
)

// Stable failure categories. Callers branch on category, not on transport
// status codes, so classification policy can evolve without breaking them.
const (
	CategoryOK           = "ok"
	CategoryInvalidToken = "expired_or_invalid_token"
	CategoryNotAuth      = "not_authorized"
	CategoryTransient    = "transient"
	CategoryUnknown      = "unknown"
)

// Store is the slice of the repository the gateway needs.
type Store interface {
	GetSession(ctx context.Context, id string) (model.Session, error)
	GetProfile(ctx context.Context, sessionID string) (model.Profile, error)
	RotateShareToken(ctx context.Context, sessionID, tokenID string) error
}

// Claims is the share token payload. ID (jti) ties the token to the
// session's currently valid token id; rotation revokes older tokens.
type Claims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Request identifies the caller: an authenticated owner, a share token,
// or both (owner wins).
type Request struct {
	SessionID  string
	OwnerID    string
	ShareToken string
}

// Envelope is the successful read result.
type Envelope struct {
	Profile model.Profile `json:"profile"`
	Session model.Session `json:"session"`
}

// Gateway validates result reads and mints share tokens.
type Gateway struct {
	store  Store
	secret []byte
	ttl    time.Duration
}

// New creates a Gateway signing share tokens with secret (HS256).
func New(store Store, secret string, ttl time.Duration) *Gateway {
	return &Gateway{store: store, secret: []byte(secret), ttl: ttl}
}

// IssueShareToken mints a fresh token for the session and rotates the valid
// token id, revoking every previously issued token.
func (g *Gateway) IssueShareToken(ctx context.Context, sessionID string) (string, error) {
	if _, err := g.store.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", err
		}
		return "", g.wrapStoreErr(err)
	}

	jti := uuid.NewString()
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("signing share token: %w", err)
	}
	if err := g.store.RotateShareToken(ctx, sessionID, jti); err != nil {
		return "", g.wrapStoreErr(err)
	}
	return signed, nil
}

// Results validates the request and returns the latest profile. Failures
// come back as typed errors; Classify maps them to the stable categories.
func (g *Gateway) Results(ctx context.Context, req Request) (Envelope, error) {
	sess, err := g.store.GetSession(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Unknown session and bad authorization are indistinguishable
			// to the caller on purpose.
			return Envelope{}, fmt.Errorf("session %s: %w", req.SessionID, ErrNotAuthorized)
		}
		return Envelope{}, g.wrapStoreErr(err)
	}

	if err := g.authorize(req, sess); err != nil {
		return Envelope{}, err
	}

	profile, err := g.store.GetProfile(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Envelope{}, fmt.Errorf("session %s has no profile yet: %w", req.SessionID, ErrNoProfile)
		}
		return Envelope{}, g.wrapStoreErr(err)
	}

	metrics.RecordResultsRequest(CategoryOK)
	return Envelope{Profile: profile, Session: sess}, nil
}

func (g *Gateway) authorize(req Request, sess model.Session) error {
	if req.OwnerID != "" {
		if sess.OwnerID == req.OwnerID {
			return nil
		}
		return fmt.Errorf("owner mismatch: %w", ErrNotAuthorized)
	}

	if req.ShareToken == "" {
		return fmt.Errorf("no credentials: %w", ErrNotAuthorized)
	}

	claims, err := g.parseToken(req.ShareToken)
	if err != nil {
		return err
	}
	// Freshness: only the most recently rotated token id is valid.
	if sess.ShareTokenID == "" || claims.ID != sess.ShareTokenID {
		return fmt.Errorf("revoked token: %w", ErrInvalidToken)
	}
	// A valid token for a different session is an authorization failure,
	// not a token failure.
	if claims.SessionID != sess.ID {
		return fmt.Errorf("token session mismatch: %w", ErrNotAuthorized)
	}
	return nil
}

func (g *Gateway) parseToken(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("malformed claims: %w", ErrInvalidToken)
	}
	return claims, nil
}

// wrapStoreErr marks non-sentinel store failures transient: the upstream
// may be briefly unavailable (busy database, 429/503-class conditions).
func (g *Gateway) wrapStoreErr(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Classify maps a Results error onto the four stable categories.
func Classify(err error) string {
	category := CategoryUnknown
	switch {
	case errors.Is(err, ErrInvalidToken):
		category = CategoryInvalidToken
	case errors.Is(err, ErrNotAuthorized):
		category = CategoryNotAuth
	case errors.Is(err, ErrTransient), errors.Is(err, pipeline.ErrTransient):
		category = CategoryTransient
	}
	metrics.RecordResultsRequest(category)
	return category
}
