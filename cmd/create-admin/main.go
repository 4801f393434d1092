// Package main creates the first platform admin. Self-registration only ever
// yields organizers, so a fresh deployment needs one admin seeded out of band.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eventdesk/backend/config"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/database"
	"github.com/eventdesk/backend/pkg/utils"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	email := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	password := os.Getenv("ADMIN_PASSWORD")
	name := strings.TrimSpace(os.Getenv("ADMIN_NAME"))
	if name == "" {
		name = "Administrator"
	}
	if email == "" || len(password) < utils.MinPasswordLength {
		logger.Fatal("ADMIN_EMAIL and ADMIN_PASSWORD are required", zap.Int("min_password_length", utils.MinPasswordLength))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	repo := auth.NewRepository(pool)
	if existing, err := repo.GetByEmail(ctx, email); err == nil && existing != nil {
		logger.Fatal("user already exists", zap.String("email", email), zap.String("role", string(existing.Role)))
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		logger.Fatal("hash password", zap.Error(err))
	}
	admin, err := repo.Create(ctx, email, hash, name, models.RoleAdmin, "")
	if err != nil {
		logger.Fatal("create admin", zap.Error(err))
	}

	fmt.Printf("admin created\n  id:    %s\n  email: %s\n  name:  %s\n", admin.ID, admin.Email, admin.FullName)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
