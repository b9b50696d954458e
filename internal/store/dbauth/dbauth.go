// Package dbauth resolves short-lived database credentials for the PostgreSQL store.
package dbauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	rdsauth "github.com/aws/aws-sdk-go-v2/feature/rds/auth"
	"github.com/jackc/pgx/v5"

	"github.com/scmgo/scm-server/internal/config"
)

const regionDetect = "detect"

// ErrNotConfigured is returned when no dynamic credential provider is configured.
var ErrNotConfigured = errors.New("dynamic database authentication is not configured")

// BeforeConnect returns a pgx hook that sets a fresh password on every new connection.
func BeforeConnect(
	ctx context.Context,
	cfg *config.DatabaseConfig,
	user string,
) (func(context.Context, *pgx.ConnConfig) error, error) {
	region, err := resolveRegion(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, connConfig *pgx.ConnConfig) error {
		token, err := rdsToken(ctx, cfg, region, user)
		if err != nil {
			return err
		}
		connConfig.Password = token
		return nil
	}, nil
}

// Token returns a single credential for user, for short-lived connections such as
// migrations that cannot install a BeforeConnect hook.
func Token(ctx context.Context, cfg *config.DatabaseConfig, user string) (string, error) {
	region, err := resolveRegion(ctx, cfg)
	if err != nil {
		return "", err
	}
	return rdsToken(ctx, cfg, region, user)
}

// MigrationConnectionString returns the connection string used for schema migrations.
func MigrationConnectionString(ctx context.Context, cfg *config.DatabaseConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("database configuration is required")
	}

	user := cfg.GetMigrationUser()
	if cfg.DynamicAuth == nil {
		password, err := cfg.GetPassword()
		if err != nil {
			return "", err
		}
		return cfg.BuildConnectionString(user, password), nil
	}

	token, err := Token(ctx, cfg, user)
	if err != nil {
		return "", fmt.Errorf("failed to resolve auth token for migration user: %w", err)
	}
	return cfg.BuildConnectionString(user, token), nil
}

func resolveRegion(ctx context.Context, cfg *config.DatabaseConfig) (string, error) {
	if cfg == nil || cfg.DynamicAuth == nil || cfg.DynamicAuth.AWSRDSIAM == nil {
		return "", ErrNotConfigured
	}

	region := cfg.DynamicAuth.AWSRDSIAM.Region
	switch region {
	case "":
		return "", fmt.Errorf("AWS RDS IAM region is not configured")
	case regionDetect:
		client := imds.New(imds.Options{
			HTTPClient: &http.Client{Timeout: 2 * time.Second},
		})
		out, err := client.GetRegion(ctx, &imds.GetRegionInput{})
		if err != nil {
			return "", fmt.Errorf("failed to get region from IMDS: %w", err)
		}
		return out.Region, nil
	default:
		return region, nil
	}
}

func rdsToken(ctx context.Context, cfg *config.DatabaseConfig, region, user string) (string, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return "", fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	token, err := rdsauth.BuildAuthToken(ctx, endpoint, region, user, awsCfg.Credentials)
	if err != nil {
		return "", fmt.Errorf("failed to build authentication token: %w", err)
	}
	return token, nil
}
