package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/thanhvo2104/admitq/config"
	domainErr "github.com/thanhvo2104/admitq/internal/errors"
	"github.com/thanhvo2104/admitq/internal/models"
	repo "github.com/thanhvo2104/admitq/internal/repository/redis"
	"github.com/thanhvo2104/admitq/pkg/logger"
)

// TokenService issues and consumes admission tokens for the burst-throttling
// variant: a signed, time-boxed right to complete one scarce transaction.
type TokenService interface {
	// Issue rejects with ErrTokenActive while the owner already holds a
	// non-expired, unconsumed token for the resource.
	Issue(ctx context.Context, ownerID, resourceID string) (*IssueTokenOutput, error)
	// Consume validates the signed token and spends its stored mirror;
	// a second consume of the same token fails with ErrTokenNotFound.
	Consume(ctx context.Context, signed string) (*models.AdmissionToken, error)
}

type tokenService struct {
	repo repo.TokenRepository
	cfg  config.TokenConfig
	l    logger.Logger
	now  func() time.Time
}

func NewTokenService(repo repo.TokenRepository, cfg config.TokenConfig, l logger.Logger) TokenService {
	return &tokenService{
		repo: repo,
		cfg:  cfg,
		l:    l,
		now:  time.Now,
	}
}

func (s *tokenService) Issue(ctx context.Context, ownerID, resourceID string) (*IssueTokenOutput, error) {
	existing, err := s.repo.Get(ctx, resourceID, ownerID)
	if err != nil {
		return nil, err
	}
	// The TTL cleans the mirror up eventually, but the expiry decision is
	// made here against the stored timestamp.
	if existing != nil && !existing.IsExpired(s.now()) {
		return nil, domainErr.ErrTokenActive
	}

	now := s.now()
	t := &models.AdmissionToken{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		ResourceID: resourceID,
		ExpiresAt:  now.Add(s.cfg.TTL),
		IssuedAt:   now,
	}

	if err := s.repo.Save(ctx, t, s.cfg.TTL); err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{
		"jti":         t.ID,
		"sub":         ownerID,
		"resource_id": resourceID,
		"exp":         t.ExpiresAt.Unix(),
		"iat":         now.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.l.Infof(ctx, "admission token issued: resource=%s owner=%s expires=%s",
		resourceID, ownerID, t.ExpiresAt.Format(time.RFC3339))

	return &IssueTokenOutput{Token: signed, ExpiresAt: t.ExpiresAt}, nil
}

func (s *tokenService) Consume(ctx context.Context, signed string) (*models.AdmissionToken, error) {
	parsed, err := jwt.Parse(signed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domainErr.ErrTokenExpired
		}
		return nil, domainErr.ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, domainErr.ErrTokenInvalid
	}

	id, _ := claims["jti"].(string)
	ownerID, _ := claims["sub"].(string)
	resourceID, _ := claims["resource_id"].(string)
	if id == "" || ownerID == "" || resourceID == "" {
		return nil, domainErr.ErrTokenInvalid
	}

	stored, err := s.repo.Get(ctx, resourceID, ownerID)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.ID != id {
		return nil, domainErr.ErrTokenNotFound
	}
	if stored.IsExpired(s.now()) {
		return nil, domainErr.ErrTokenExpired
	}

	if err := s.repo.Delete(ctx, resourceID, ownerID); err != nil {
		return nil, err
	}

	s.l.Infof(ctx, "admission token consumed: resource=%s owner=%s", resourceID, ownerID)

	return stored, nil
}
