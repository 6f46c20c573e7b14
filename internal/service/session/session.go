package session

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coursecast/server/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CookieName = "session"
	QueryParam = "token"
)

var (
	ErrNoSession    = fmt.Errorf("%w: no session", domain.ErrUnauthenticated)
	ErrInvalidToken = fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
)

type Claims struct {
	UserId string      `json:"user_id"`
	Name   string      `json:"name"`
	Image  *string     `json:"image,omitempty"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret string
	TTL    time.Duration
	Now    func() time.Time
}

type service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(cfg *Config) *service {
	s := service{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		now:    cfg.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	return &s
}

func (s service) Issue(p domain.Participant) (string, error) {
	now := s.now()
	claims := Claims{
		UserId: p.UserId,
		Name:   p.UserName,
		Image:  p.UserImage,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  p.UserId,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(s.secret)
}

func (s service) Parse(tokenString string) (domain.Participant, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !token.Valid {
		return domain.Participant{}, ErrInvalidToken
	}

	if claims.UserId == "" || !claims.Role.Valid() {
		return domain.Participant{}, fmt.Errorf("%w: missing identity claims", ErrInvalidToken)
	}

	return domain.Participant{
		UserId:    claims.UserId,
		UserName:  claims.Name,
		UserImage: claims.Image,
		Role:      claims.Role,
	}, nil
}

// Resolve reads the token from the Authorization header, the token query
// parameter or the session cookie, in that order.
func (s service) Resolve(r *http.Request) (domain.Participant, error) {
	tokenString := tokenFromRequest(r)
	if tokenString == "" {
		return domain.Participant{}, ErrNoSession
	}

	return s.Parse(tokenString)
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}

	if token := r.URL.Query().Get(QueryParam); token != "" {
		return token
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}

	return cookie.Value
}
