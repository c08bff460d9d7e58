// File: cmd/server/wire.go
//go:build wireinject
// +build wireinject

package main

import (
	"calma_backend/internal/app"
	"calma_backend/internal/assessment"
	"calma_backend/internal/auth"
	"calma_backend/internal/config"
	"calma_backend/internal/jobs"
	"calma_backend/internal/keycloak"
	"calma_backend/internal/middleware"
	"calma_backend/internal/platform/metrics"
	"calma_backend/internal/shared"

	"github.com/google/wire"
)

var platformSet = wire.NewSet(
	provideLogger,
	provideDatabase,
	metrics.NewCollector,
	wire.Bind(new(metrics.IdPRecorder), new(*metrics.Collector)),
)

var identitySet = wire.NewSet(
	keycloak.NewConfig,
	keycloak.NewClient,
	keycloak.NewIdentityProvider,
	wire.Bind(new(shared.IdentityProvider), new(*keycloak.IdentityProvider)),
	wire.Bind(new(assessment.UserIDResolver), new(*keycloak.IdentityProvider)),
)

var assessmentSet = wire.NewSet(
	assessment.NewGORMRepository,
	assessment.NewService,
	jobs.NewAssessmentReconcileJob,
)

// initializeServer is the main Wire injector.
func initializeServer(cfg *config.Config) (*app.Server, func(), error) {
	wire.Build(
		platformSet,
		identitySet,
		assessmentSet,

		auth.NewService,
		provideAssessmentRecorder,
		auth.NewHandler,

		middleware.NewRateLimiterConfig,
		middleware.NewRateLimiter,

		app.NewServer,
	)
	return nil, nil, nil
}

// initializeReconcileJob builds only what a one-off reconcile run needs.
func initializeReconcileJob(cfg *config.Config) (*jobs.AssessmentReconcileJob, func(), error) {
	wire.Build(
		platformSet,
		identitySet,
		assessmentSet,
	)
	return nil, nil, nil
}
