package authinfra

import (
	"context"

	"github.com/Abraxas-365/aegis/pkg/iam/auth"
	"github.com/Abraxas-365/aegis/pkg/kernel"
	"github.com/Abraxas-365/aegis/pkg/logx"
)

// LogxEventLogger implements auth.EventLogger as structured log lines.
type LogxEventLogger struct{}

// NewLogxEventLogger creates the logger.
func NewLogxEventLogger() *LogxEventLogger {
	return &LogxEventLogger{}
}

func (l *LogxEventLogger) LogRegister(_ context.Context, userID kernel.UserID, email string) {
	logx.WithFields(logx.Fields{
		"event":   "register",
		"user_id": userID.String(),
		"email":   email,
	}).Info("auth: account registered")
}

func (l *LogxEventLogger) LogLoginAttempt(_ context.Context, email string, success bool) {
	logx.WithFields(logx.Fields{
		"event":   "login_attempt",
		"email":   email,
		"success": success,
	}).Info("auth: login attempt")
}

func (l *LogxEventLogger) LogTokenRefresh(_ context.Context, userID kernel.UserID) {
	logx.WithFields(logx.Fields{
		"event":   "token_refresh",
		"user_id": userID.String(),
	}).Info("auth: token refreshed")
}

func (l *LogxEventLogger) LogLogout(_ context.Context, userID kernel.UserID) {
	logx.WithFields(logx.Fields{
		"event":   "logout",
		"user_id": userID.String(),
	}).Info("auth: logout")
}

func (l *LogxEventLogger) LogPasswordChange(_ context.Context, userID kernel.UserID, viaReset bool) {
	logx.WithFields(logx.Fields{
		"event":     "password_change",
		"user_id":   userID.String(),
		"via_reset": viaReset,
	}).Info("auth: password changed")
}

var _ auth.EventLogger = (*LogxEventLogger)(nil)
