package user

import (
	"context"
	"time"

	"go.uber.org/zap"

	"medication-adherence-monitor/internal/logger"
)

// TokenRetention is how long expired or revoked refresh tokens are kept.
const TokenRetention = 24 * time.Hour

// StartTokenCleanupJob purges stale refresh tokens every interval until ctx ends.
func (s *Service) StartTokenCleanupJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Token cleanup job started",
		zap.Duration("interval", interval),
	)

	_, _ = s.CleanupExpiredTokens(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Token cleanup job stopped")
			return
		case <-ticker.C:
			_, _ = s.CleanupExpiredTokens(ctx)
		}
	}
}

func (s *Service) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.refreshTokenRepo.DeleteExpired(ctx, TokenRetention)
	if err != nil {
		logger.Error("Failed to delete expired tokens", zap.Error(err))
		return 0, err
	}

	logger.Debug("Expired tokens cleaned up successfully",
		zap.Int64("deleted", n),
		zap.Duration("older_than", TokenRetention),
	)
	return n, nil
}
