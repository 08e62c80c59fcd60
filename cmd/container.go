// cmd/container.go
//
// Root composition root. Owns infrastructure (Postgres, Redis, mail provider)
// and composes the IAM container. This is the only place that knows about
// every module.
package main

import (
	"context"

	"github.com/Abraxas-365/aegis/pkg/config"
	"github.com/Abraxas-365/aegis/pkg/iam/iamcontainer"
	"github.com/Abraxas-365/aegis/pkg/logx"
	"github.com/Abraxas-365/aegis/pkg/notifx"
	"github.com/Abraxas-365/aegis/pkg/notifx/notifxconsole"
	"github.com/Abraxas-365/aegis/pkg/notifx/notifxses"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// Container holds shared infrastructure and the composed module containers.
type Container struct {
	Config *config.Config

	DB     *sqlx.DB
	Redis  *redis.Client
	Mailer *notifx.AuthMailer

	IAM *iamcontainer.Container
}

// NewContainer builds the whole dependency graph or dies trying; a service
// that cannot reach its stores has nothing useful to serve.
func NewContainer(cfg *config.Config) *Container {
	c := &Container{Config: cfg}

	c.initInfrastructure()
	c.initModules()

	logx.Info("application container initialized")
	return c
}

func (c *Container) initInfrastructure() {
	// Postgres.
	db, err := sqlx.Connect("postgres", c.Config.Database.DSN())
	if err != nil {
		logx.Fatalf("failed to connect to database: %v", err)
	}
	db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
	db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
	db.SetConnMaxLifetime(c.Config.Database.ConnMaxLifetime)
	c.DB = db
	logx.Info("database connected")

	// Redis backs the token blacklist; without it revocation is blind.
	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Address(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if _, err := c.Redis.Ping(context.Background()).Result(); err != nil {
		logx.Fatalf("failed to connect to redis: %v", err)
	}
	logx.Info("redis connected")

	// Mail provider. Development diverts everything to the log.
	var provider notifx.EmailSender
	if c.Config.Email.Provider == "ses" && !c.Config.App.IsDevelopment() {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(c.Config.Email.AWSRegion))
		if err != nil {
			logx.Fatalf("failed to load AWS config: %v", err)
		}
		provider = notifxses.NewSESProvider(ses.NewFromConfig(awsCfg), c.Config.Email.FromAddress)
		logx.Infof("SES mail provider configured (region %s)", c.Config.Email.AWSRegion)
	} else {
		provider = notifxconsole.NewConsoleProvider()
		logx.Warn("console mail provider configured; outbound mail goes to the log")
	}

	mailer, err := notifx.NewAuthMailer(
		notifx.NewClient(provider),
		c.Config.Email.FromName,
		c.Config.Email.FromAddress,
		c.Config.App.BaseURL,
	)
	if err != nil {
		logx.Fatalf("failed to build mailer: %v", err)
	}
	c.Mailer = mailer
}

func (c *Container) initModules() {
	iam, err := iamcontainer.New(iamcontainer.Deps{
		DB:     c.DB,
		Redis:  c.Redis,
		Cfg:    c.Config,
		Mailer: c.Mailer,
	})
	if err != nil {
		logx.Fatalf("failed to initialize IAM: %v", err)
	}
	c.IAM = iam
}

// StartBackgroundServices launches module workers bound to ctx.
func (c *Container) StartBackgroundServices(ctx context.Context) {
	c.IAM.StartBackgroundServices(ctx)
}

// Cleanup releases infrastructure connections.
func (c *Container) Cleanup() {
	if c.DB != nil {
		_ = c.DB.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
