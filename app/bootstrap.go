// app/bootstrap.go
package app

import (
	"context"
	"log/slog"
	"strings"

	"IT_borrowing_system/apperr"
	"IT_borrowing_system/db"
	"IT_borrowing_system/models"

	"golang.org/x/crypto/bcrypt"
)

// BootstrapFirstAdmin makes sure at least one admin exists. It promotes an
// existing account with the bootstrap email or creates a new one.
func BootstrapFirstAdmin(ctx context.Context, cfg Config, repo *db.Repo) error {
	if cfg.BootstrapEmail == "" {
		return nil
	}
	n, err := repo.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil // 已经有管理员，跳过
	}

	u, err := repo.FindUserByEmail(ctx, cfg.BootstrapEmail)
	switch {
	case err == nil:
		if err := repo.SetUserRole(ctx, u.ID, models.RoleAdmin); err != nil {
			return err
		}
		slog.Info("[BOOTSTRAP] promoted existing user to admin", "email", u.Email)
		return nil
	case !apperr.Is(err, apperr.KindNotFound):
		return err
	}

	if len(cfg.BootstrapPassword) < 8 {
		slog.Warn("[BOOTSTRAP] no admin exists and BOOTSTRAP_ADMIN_PASSWORD is missing or shorter than 8 characters")
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.BootstrapPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := &models.User{
		Username:     strings.SplitN(cfg.BootstrapEmail, "@", 2)[0],
		Email:        cfg.BootstrapEmail,
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		Status:       models.UserActive,
	}
	if err := repo.CreateUser(ctx, admin); err != nil {
		return err
	}
	slog.Info("[BOOTSTRAP] created first admin", "email", admin.Email)
	return nil
}
