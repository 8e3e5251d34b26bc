package store

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var defaultJWTLeeway = 5 * time.Second

// ErrTokenInvalid marks tokens that fail parsing, signature, claim or
// revocation checks. Revoker I/O failures are returned unwrapped.
var ErrTokenInvalid = errors.New("token invalid")

// JWTOptions configures signing and claim validation.
type JWTOptions struct {
	Algorithm string
	Leeway    time.Duration
}

// JWTSessionStore issues and validates HMAC-signed JWTs carrying sub and exp.
type JWTSessionStore struct {
	secret  []byte
	method  jwt.SigningMethod
	ttl     time.Duration
	leeway  time.Duration
	revoker TokenRevoker
}

// NewJWTSessionStore builds a stateless JWT session store. Revocation is
// optional; pass a nil revoker to disable logout.
func NewJWTSessionStore(secret string, ttl time.Duration, revoker TokenRevoker, opts JWTOptions) (*JWTSessionStore, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret required")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt ttl must be positive")
	}
	method, err := hmacMethod(opts.Algorithm)
	if err != nil {
		return nil, err
	}
	leeway := opts.Leeway
	if leeway <= 0 {
		leeway = defaultJWTLeeway
	}
	return &JWTSessionStore{
		secret:  []byte(secret),
		method:  method,
		ttl:     ttl,
		leeway:  leeway,
		revoker: revoker,
	}, nil
}

func hmacMethod(alg string) (jwt.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported jwt algorithm %q", alg)
	}
}

// TTL reports the lifetime of issued tokens.
func (s *JWTSessionStore) TTL() time.Duration {
	return s.ttl
}

// NewSession creates a signed JWT for the subject.
func (s *JWTSessionStore) NewSession(subject string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token subject required")
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        randomHexID(12),
	}
	return jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
}

// GetSubjectByToken validates a JWT and returns its subject.
func (s *JWTSessionStore) GetSubjectByToken(token string) (string, bool, error) {
	claims, err := s.parseAndVerify(token)
	if err != nil {
		return "", false, err
	}
	if s.revoker != nil && claims.ID != "" {
		revoked, err := s.revoker.IsRevoked(claims.ID)
		if err != nil {
			return "", false, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return "", false, fmt.Errorf("%w: revoked", ErrTokenInvalid)
		}
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", false, fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}
	return claims.Subject, true, nil
}

// DeleteSession revokes the token until it expires.
func (s *JWTSessionStore) DeleteSession(token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.parseAndVerify(token)
	if err != nil {
		return err
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return errors.New("token cannot be revoked")
	}
	return s.revoker.Revoke(claims.ID, time.Until(claims.ExpiresAt.Time))
}

func (s *JWTSessionStore) parseAndVerify(token string) (jwt.RegisteredClaims, error) {
	claims := jwt.RegisteredClaims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, fmt.Errorf("%w: empty", ErrTokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			return claims, ErrTokenInvalid
		}
		return claims, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	return claims, nil
}

func randomHexID(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", buf)
}
