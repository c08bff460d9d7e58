package main

import (
	"log"

	"calma_backend/internal/assessment"
	"calma_backend/internal/auth"
	"calma_backend/internal/config"
	"calma_backend/internal/platform/database"
	"calma_backend/internal/platform/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// provideLogger builds the application logger and flushes it on cleanup.
func provideLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	l, err := logger.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := l.Sync(); err != nil {
			log.Printf("WARN: Failed to sync logger during cleanup: %v", err)
		}
	}
	return l, cleanup, nil
}

// provideDatabase opens the database and migrates the assessment tables.
func provideDatabase(cfg *config.Config, l *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.NewGORM(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := database.AutoMigrate(db, assessment.Models()...); err != nil {
		database.CloseGORMDB(db)
		return nil, nil, err
	}
	l.Info("Database ready", zap.String("driver", cfg.DBDriver))
	cleanup := func() {
		l.Info("Closing database connection...")
		database.CloseGORMDB(db)
	}
	return db, cleanup, nil
}

func provideAssessmentRecorder(s assessment.Service) auth.AssessmentRecorder {
	return s
}
