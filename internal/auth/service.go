package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lgulliver/jarhub/internal/common"
	"github.com/lgulliver/jarhub/pkg/config"
	"github.com/lgulliver/jarhub/pkg/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// platformClaims are the claims carried by identity platform access tokens
type platformClaims struct {
	Email            string `json:"email"`
	EmailConfirmedAt string `json:"email_confirmed_at,omitempty"`
	EmailVerified    bool   `json:"email_verified,omitempty"`
	UserMetadata     struct {
		FullName  string `json:"full_name"`
		AvatarURL string `json:"avatar_url"`
	} `json:"user_metadata"`
	jwt.RegisteredClaims
}

// Service resolves callers from identity platform tokens. Login and
// session management stay with the platform; the registry only verifies
// tokens and keeps a profile row per account.
type Service struct {
	db         *common.Database
	cache      common.CacheStore
	config     *config.AuthConfig
	profileTTL time.Duration
}

// NewService creates a new authentication service
func NewService(db *common.Database, cache common.CacheStore, config *config.AuthConfig, profileTTL time.Duration) *Service {
	if cache == nil {
		cache = common.NoopCache{}
	}
	return &Service{
		db:         db,
		cache:      cache,
		config:     config,
		profileTTL: profileTTL,
	}
}

func profileCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("profile:%s", id.String())
}

func (s *Service) parseToken(tokenString string) (*platformClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.config.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.JWTIssuer))
	}
	if s.config.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(s.config.JWTAudience))
	}

	claims := &platformClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// CurrentUser verifies an access token and returns the identity it carries
func (s *Service) CurrentUser(ctx context.Context, tokenString string) (*types.Identity, error) {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return nil, types.ErrUnauthenticated.Wrap(err)
	}
	return identityFromClaims(claims)
}

func identityFromClaims(claims *platformClaims) (*types.Identity, error) {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, types.ErrUnauthenticated.WithMessage("invalid subject claim")
	}

	return &types.Identity{
		ID:             id,
		Email:          strings.ToLower(strings.TrimSpace(claims.Email)),
		EmailConfirmed: claims.EmailConfirmedAt != "" || claims.EmailVerified,
	}, nil
}

// Authenticate verifies a token and resolves the caller's registry role,
// creating the profile on first sight.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*types.Actor, error) {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return nil, types.ErrUnauthenticated.Wrap(err)
	}
	identity, err := identityFromClaims(claims)
	if err != nil {
		return nil, err
	}

	profile, err := s.EnsureProfile(ctx, identity, claims.UserMetadata.FullName, claims.UserMetadata.AvatarURL)
	if err != nil {
		return nil, err
	}

	return &types.Actor{
		ID:             identity.ID,
		Email:          identity.Email,
		EmailConfirmed: identity.EmailConfirmed,
		Role:           profile.Role,
	}, nil
}

// EnsureProfile returns the profile for identity, creating it with role user
// when the account has not been seen before.
func (s *Service) EnsureProfile(ctx context.Context, identity *types.Identity, displayName, avatarURL string) (*types.Profile, error) {
	profile, err := s.GetProfile(ctx, identity.ID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	if displayName == "" {
		displayName = strings.SplitN(identity.Email, "@", 2)[0]
	}
	profile = &types.Profile{
		ID:          identity.ID,
		Email:       identity.Email,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		Role:        types.RoleUser,
	}

	if err := s.db.WithContext(ctx).Create(profile).Error; err != nil {
		if common.IsUniqueViolation(err) {
			// A concurrent request created it first
			return s.GetProfile(ctx, identity.ID)
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	log.Info().Str("profile_id", profile.ID.String()).Str("email", profile.Email).Msg("profile created")
	return profile, nil
}

// GetProfile retrieves a profile by ID
func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*types.Profile, error) {
	var profile types.Profile
	if err := s.cache.Get(ctx, profileCacheKey(id), &profile); err == nil {
		return &profile, nil
	}

	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound.WithMessage("profile not found")
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if err := s.cache.Set(ctx, profileCacheKey(id), &profile, s.profileTTL); err != nil {
		log.Warn().Err(err).Str("profile_id", id.String()).Msg("failed to cache profile")
	}
	return &profile, nil
}

// InvalidateProfile drops a cached profile after its role changed
func (s *Service) InvalidateProfile(ctx context.Context, ids ...uuid.UUID) {
	invalidateProfiles(ctx, s.cache, ids...)
}

func invalidateProfiles(ctx context.Context, cache common.CacheStore, ids ...uuid.UUID) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, profileCacheKey(id))
	}
	if err := cache.Delete(ctx, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("failed to invalidate cached profiles")
	}
}
