package app

import (
	"log/slog"

	"github.com/onoacademic/campusid/internal/domain"
	"github.com/onoacademic/campusid/internal/entity"
	"github.com/onoacademic/campusid/internal/featureflags"
	"github.com/onoacademic/campusid/internal/security/audit"
	"github.com/onoacademic/campusid/internal/security/auth"
	"github.com/onoacademic/campusid/internal/service"
	"github.com/onoacademic/campusid/internal/validation"
	"github.com/onoacademic/campusid/pkg/config"
)

// Core holds the services every entry point builds over the selected store
type Core struct {
	Entities *entity.Client
	Forms    *validation.FormValidator
	Roster   *service.RosterService
	Authn    *service.FallbackAuthenticator
	Tokens   *auth.TokenManager
	Audit    *audit.Logger
}

// NewCore wires entities, validation and authentication over store
func NewCore(cfg *config.Config, store domain.Store, logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	entities := entity.NewClient(store, entity.WithLogger(logger))

	policy := validation.FailOpen
	if featureflags.Enabled(featureflags.UniquenessFailClosed) {
		policy = validation.FailClosed
	}
	checker := validation.NewUniquenessChecker(entities, policy, logger)
	forms := validation.NewFormValidator(checker, cfg.MaxAcademicTracks)
	auditLog := audit.NewLogger(logger)

	return &Core{
		Entities: entities,
		Forms:    forms,
		Roster:   service.NewRosterService(entities, forms, auditLog, logger),
		Authn: service.NewFallbackAuthenticator(
			service.NewStoreAuthenticator(entities.Users()),
			auth.NewDirectory(cfg.DemoPassword),
			logger,
		),
		Tokens: auth.NewTokenManager(cfg.JWTSecret, "campusid"),
		Audit:  auditLog,
	}
}
