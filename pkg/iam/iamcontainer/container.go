// Package iamcontainer constructs the IAM dependency graph.
package iamcontainer

import (
	"context"

	"github.com/Abraxas-365/aegis/pkg/config"
	"github.com/Abraxas-365/aegis/pkg/cryptox"
	"github.com/Abraxas-365/aegis/pkg/iam/audit"
	"github.com/Abraxas-365/aegis/pkg/iam/audit/auditinfra"
	"github.com/Abraxas-365/aegis/pkg/iam/auth"
	"github.com/Abraxas-365/aegis/pkg/iam/auth/authapi"
	"github.com/Abraxas-365/aegis/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/aegis/pkg/iam/auth/authsrv"
	"github.com/Abraxas-365/aegis/pkg/iam/org/orginfra"
	"github.com/Abraxas-365/aegis/pkg/iam/rbac"
	"github.com/Abraxas-365/aegis/pkg/iam/rbac/rbacapi"
	"github.com/Abraxas-365/aegis/pkg/iam/rbac/rbacinfra"
	"github.com/Abraxas-365/aegis/pkg/iam/rbac/rbacsrv"
	"github.com/Abraxas-365/aegis/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/aegis/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/aegis/pkg/logx"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Deps are the external dependencies the IAM module requires. Nothing is
// ambient: everything arrives through here.
type Deps struct {
	DB    *sqlx.DB
	Redis *redis.Client
	Cfg   *config.Config

	// Mailer is injected as an interface so IAM has no knowledge of the
	// concrete transport (SES in production, console in development).
	Mailer auth.LifecycleMailer
}

// Container is the public surface of the IAM module: services for
// cross-module consumption, handlers and middleware for cmd/ to mount.
type Container struct {
	UserService       *usersrv.UserService
	AuthService       *authsrv.AuthService
	PermissionService *rbacsrv.PermissionService
	Resolver          *rbac.Resolver
	AuditRepository   audit.Repository

	AuthHandlers       *authapi.AuthHandlers
	PermissionHandlers *rbacapi.PermissionHandlers
	AuthMiddleware     *auth.TokenMiddleware

	CleanupService *authinfra.CleanupService
}

// New wires the module. Order matters: infra, repos, services, handlers.
func New(deps Deps) (*Container, error) {
	logx.Info("initializing IAM container")

	c := &Container{}

	// Repositories.
	userRepo := userinfra.NewPostgresUserRepository(deps.DB)
	orgRepo := orginfra.NewPostgresOrgRepository(deps.DB)
	tokenRepo := authinfra.NewPostgresTokenRepository(deps.DB)
	verificationRepo := authinfra.NewPostgresVerificationRepository(deps.DB)
	resetRepo := authinfra.NewPostgresPasswordResetRepository(deps.DB)
	roleRepo := rbacinfra.NewPostgresRoleRepository(deps.DB)
	assignmentRepo := rbacinfra.NewPostgresAssignmentRepository(deps.DB)
	c.AuditRepository = auditinfra.NewPostgresAuditRepository(deps.DB)

	// Infrastructure services.
	blacklist := authinfra.NewRedisBlacklist(deps.Redis)
	hasher := cryptox.NewPasswordHasher()
	tokenService := auth.NewJWTService(
		deps.Cfg.Auth.JWTSecret,
		deps.Cfg.Auth.AccessTokenTTL,
		deps.Cfg.Auth.Issuer,
		blacklist,
	)

	// Domain services.
	c.UserService = usersrv.NewUserService(userRepo, hasher)
	c.Resolver = rbac.NewResolver(orgRepo, assignmentRepo, roleRepo)
	c.PermissionService = rbacsrv.NewPermissionService(
		roleRepo,
		assignmentRepo,
		c.Resolver,
		userRepo,
		c.AuditRepository,
	)

	authService, err := authsrv.NewAuthService(
		c.UserService,
		userRepo,
		tokenRepo,
		verificationRepo,
		resetRepo,
		tokenService,
		blacklist,
		c.Resolver,
		deps.Mailer,
		authinfra.NewLogxEventLogger(),
		hasher,
		authsrv.Config{
			RefreshTokenTTL:      deps.Cfg.Auth.RefreshTokenTTL,
			VerificationTokenTTL: deps.Cfg.Auth.VerificationTokenTTL,
			ResetTokenTTL:        deps.Cfg.Auth.ResetTokenTTL,
		},
	)
	if err != nil {
		return nil, err
	}
	c.AuthService = authService

	// Handlers and middleware.
	c.AuthMiddleware = auth.NewTokenMiddleware(tokenService)
	c.AuthHandlers = authapi.NewAuthHandlers(c.AuthService, deps.Cfg.Auth.RefreshTokenTTL)
	c.PermissionHandlers = rbacapi.NewPermissionHandlers(c.PermissionService, c.UserService)

	// Background services.
	c.CleanupService = authinfra.NewCleanupService(
		tokenRepo,
		verificationRepo,
		resetRepo,
		deps.Cfg.Auth.CleanupInterval,
	)

	logx.Info("IAM container initialized")
	return c, nil
}

// StartBackgroundServices launches the IAM background workers.
func (c *Container) StartBackgroundServices(ctx context.Context) {
	go c.CleanupService.Start(ctx)
	logx.Info("IAM cleanup service started")
}
