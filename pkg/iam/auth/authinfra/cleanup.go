package authinfra

import (
	"context"
	"time"

	"github.com/Abraxas-365/aegis/pkg/iam/auth"
	"github.com/Abraxas-365/aegis/pkg/logx"
)

// CleanupService periodically deletes expired token rows. Correctness never
// depends on it — every read path filters on expiry — it only keeps the
// tables small.
type CleanupService struct {
	tokens        auth.TokenRepository
	verifications auth.VerificationRepository
	resets        auth.PasswordResetRepository
	interval      time.Duration
}

// NewCleanupService creates the sweeper.
func NewCleanupService(tokens auth.TokenRepository, verifications auth.VerificationRepository, resets auth.PasswordResetRepository, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupService{
		tokens:        tokens,
		verifications: verifications,
		resets:        resets,
		interval:      interval,
	}
}

// Start runs the sweep loop until ctx is cancelled. Call in a goroutine.
func (s *CleanupService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *CleanupService) sweep(ctx context.Context) {
	var total int64
	if n, err := s.tokens.DeleteExpired(ctx); err != nil {
		logx.WithError(err).Warn("cleanup: refresh-token sweep failed")
	} else {
		total += n
	}
	if n, err := s.verifications.DeleteExpired(ctx); err != nil {
		logx.WithError(err).Warn("cleanup: verification-token sweep failed")
	} else {
		total += n
	}
	if n, err := s.resets.DeleteExpired(ctx); err != nil {
		logx.WithError(err).Warn("cleanup: reset-token sweep failed")
	} else {
		total += n
	}
	if total > 0 {
		logx.Infof("cleanup: removed %d expired token rows", total)
	}
}
