package auth

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/scmgo/scm-server/internal/config"
	"github.com/scmgo/scm-server/internal/event"
)

// NewAuthMiddleware creates authentication middleware based on config.
// A nil config means anonymous mode.
func NewAuthMiddleware(cfg *config.AuthConfig, bus *event.Bus) (func(http.Handler) http.Handler, error) {
	if cfg == nil {
		cfg = &config.AuthConfig{}
	}

	switch cfg.GetMode() {
	case config.AuthModeAnonymous:
		slog.Info("auth: anonymous mode", "actions", cfg.GetAnonymousActions())
		return anonymousMiddleware(cfg.GetAnonymousActions()), nil
	case config.AuthModeJWT:
		return createJWTMiddleware(cfg, bus)
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}

func createJWTMiddleware(cfg *config.AuthConfig, bus *event.Bus) (func(http.Handler) http.Handler, error) {
	if cfg.JWT == nil {
		return nil, fmt.Errorf("jwt configuration is required for jwt mode")
	}

	secret, err := cfg.JWT.GetSecret()
	if err != nil {
		return nil, err
	}
	validator, err := NewHMACValidator(secret, cfg.JWT.Issuer, cfg.JWT.Audience)
	if err != nil {
		return nil, fmt.Errorf("failed to create token validator: %w", err)
	}

	slog.Info("auth: jwt mode", "issuer", cfg.JWT.Issuer, "audience", cfg.JWT.Audience)
	return newBearerMiddleware(validator, cfg, bus).Middleware, nil
}

func newBearerMiddleware(validator TokenValidator, cfg *config.AuthConfig, bus *event.Bus) *bearerMiddleware {
	return &bearerMiddleware{
		validator:        validator,
		realm:            cfg.GetRealm(),
		scopeMapping:     cfg.GetScopeMapping(),
		anonymousActions: cfg.GetAnonymousActions(),
		bus:              bus,
	}
}
