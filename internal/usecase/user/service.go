package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medication-adherence-monitor/internal/config"
	domainUser "medication-adherence-monitor/internal/domain/user"
	"medication-adherence-monitor/internal/logger"
	appErrors "medication-adherence-monitor/pkg/errors"
	"medication-adherence-monitor/pkg/utils"
)

// Service implements account and session use cases
type Service struct {
	userRepo         domainUser.Repository
	refreshTokenRepo domainUser.RefreshTokenRepository
	config           *config.Config
}

func NewService(
	userRepo domainUser.Repository,
	refreshTokenRepo domainUser.RefreshTokenRepository,
	cfg *config.Config,
) *Service {
	return &Service{
		userRepo:         userRepo,
		refreshTokenRepo: refreshTokenRepo,
		config:           cfg,
	}
}

// Signup registers a patient, caretaker or doctor. Role defaults to patient.
func (s *Service) Signup(ctx context.Context, req *SignupRequest) (*AuthResponse, error) {
	req.Name = utils.SanitizeString(req.Name)
	req.Email = utils.SanitizeEmail(req.Email)
	if req.Phone != nil {
		phone := utils.SanitizePhone(*req.Phone)
		req.Phone = &phone
		if phone == "" {
			req.Phone = nil
		}
	}

	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewValidationError(err)
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		return nil, appErrors.NewAppError(appErrors.CodeValidation, err.Error(), appErrors.ErrWeakPassword)
	}

	role := domainUser.RolePatient
	if req.Role != "" {
		role = domainUser.Role(req.Role)
	}

	u, err := s.createUser(ctx, req.Name, req.Email, req.Password, req.Phone, role)
	if err != nil {
		return nil, err
	}

	logger.Info("User registered successfully",
		zap.String("user_id", u.ID.String()),
		zap.String("role", string(u.Role)),
		zap.String("event", "user_registered"),
	)

	return s.issueSession(ctx, u)
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	req.Email = utils.SanitizeEmail(req.Email)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewValidationError(err)
	}

	u, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domainUser.ErrUserNotFound) {
			logger.Warn("Login attempt with non-existent email",
				zap.String("event", "user_not_found"),
			)
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if !u.IsActive {
		logger.Warn("Login attempt for inactive user",
			zap.String("user_id", u.ID.String()),
			zap.String("event", "login_failed_inactive_user"),
		)
		return nil, appErrors.ErrUserInactive
	}

	if !utils.CheckPassword(u.PasswordHashed, req.Password) {
		logger.Warn("Login attempt with invalid password",
			zap.String("user_id", u.ID.String()),
			zap.String("event", "login_failed_invalid_password"),
		)
		return nil, appErrors.ErrInvalidCredentials
	}

	logger.Info("User logged in successfully",
		zap.String("user_id", u.ID.String()),
		zap.String("role", string(u.Role)),
		zap.String("event", "login_success"),
	)

	return s.issueSession(ctx, u)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, req *RefreshRequest) (*AuthResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewValidationError(err)
	}

	dbToken, err := s.refreshTokenRepo.GetByToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, domainUser.ErrTokenNotFound) {
			return nil, appErrors.ErrInvalidToken
		}
		return nil, err
	}
	if !dbToken.IsActiveAt(time.Now()) {
		logger.Warn("Token refresh attempt with revoked or expired token",
			zap.String("user_id", dbToken.UserID.String()),
			zap.String("event", "token_refresh_failed_inactive_token"),
		)
		return nil, appErrors.ErrInvalidToken
	}

	u, err := s.userRepo.GetByID(ctx, dbToken.UserID)
	if err != nil {
		if errors.Is(err, domainUser.ErrUserNotFound) {
			return nil, appErrors.ErrInvalidToken
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, appErrors.ErrUserInactive
	}

	// A concurrent refresh may have revoked it first; only one caller wins.
	if err := s.refreshTokenRepo.Revoke(ctx, dbToken.ID); err != nil {
		if errors.Is(err, domainUser.ErrTokenNotFound) {
			return nil, appErrors.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	resp, err := s.issueSession(ctx, u)
	if err != nil {
		return nil, err
	}

	logger.Debug("Token refreshed successfully",
		zap.String("user_id", u.ID.String()),
		zap.String("old_token_id", dbToken.ID.String()),
		zap.String("event", "token_refresh_success"),
	)
	return resp, nil
}

func (s *Service) RevokeToken(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	dbToken, err := s.refreshTokenRepo.GetByToken(ctx, refreshToken)
	if err != nil {
		return appErrors.ErrInvalidToken
	}
	if dbToken.UserID != userID {
		return appErrors.ErrInvalidToken
	}

	if err := s.refreshTokenRepo.Revoke(ctx, dbToken.ID); err != nil {
		if errors.Is(err, domainUser.ErrTokenNotFound) {
			return appErrors.ErrInvalidToken
		}
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	logger.Info("Refresh token revoked successfully",
		zap.String("user_id", userID.String()),
		zap.String("token_id", dbToken.ID.String()),
		zap.String("event", "token_revoked"),
	)
	return nil
}

func (s *Service) RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error {
	if err := s.refreshTokenRepo.RevokeAllUserTokens(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke all tokens for user: %w", err)
	}

	logger.Info("All refresh tokens revoked for user",
		zap.String("user_id", userID.String()),
		zap.String("event", "all_tokens_revoked"),
	)
	return nil
}

func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ToUserResponse(u), nil
}

// CreateAdmin provisions an admin account. Admins cannot sign up over HTTP.
func (s *Service) CreateAdmin(ctx context.Context, req *CreateAdminRequest) (*UserResponse, error) {
	req.Name = utils.SanitizeString(req.Name)
	req.Email = utils.SanitizeEmail(req.Email)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewValidationError(err)
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		return nil, appErrors.NewAppError(appErrors.CodeValidation, err.Error(), appErrors.ErrWeakPassword)
	}

	u, err := s.createUser(ctx, req.Name, req.Email, req.Password, nil, domainUser.RoleAdmin)
	if err != nil {
		return nil, err
	}

	logger.Info("Admin account created",
		zap.String("user_id", u.ID.String()),
		zap.String("event", "admin_created"),
	)
	return ToUserResponse(u), nil
}

func (s *Service) createUser(ctx context.Context, name, email, password string, phone *string, role domainUser.Role) (*domainUser.User, error) {
	if !role.IsValid() {
		return nil, appErrors.NewAppError(appErrors.CodeValidation, "Invalid role", domainUser.ErrInvalidUserRole)
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, domainUser.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		logger.Warn("Registration attempt with existing email",
			zap.String("event", "registration_failed_duplicate_email"),
		)
		return nil, appErrors.ErrUserAlreadyExists
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	u := &domainUser.User{
		Name:           name,
		Email:          strings.ToLower(email),
		Phone:          phone,
		PasswordHashed: hashed,
		Role:           role,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, domainUser.ErrUserAlreadyExists) {
			return nil, appErrors.ErrUserAlreadyExists
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) issueSession(ctx context.Context, u *domainUser.User) (*AuthResponse, error) {
	tokenPair, err := utils.GenerateTokenPair(
		u.ID,
		u.Email,
		string(u.Role),
		s.config.JWT.Secret,
		s.config.JWT.ExpiryHours,
		s.config.JWT.RefreshExpiryHours,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	now := time.Now()
	refreshToken := &domainUser.RefreshToken{
		UserID:    u.ID,
		Token:     tokenPair.RefreshToken,
		ExpiresAt: now.Add(time.Duration(s.config.JWT.RefreshExpiryHours) * time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.refreshTokenRepo.Create(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &AuthResponse{
		User:         ToUserResponse(u),
		Token:        tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    tokenPair.ExpiresAt,
	}, nil
}
