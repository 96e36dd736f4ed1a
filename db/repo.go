package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"IT_borrowing_system/apperr"
	"IT_borrowing_system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct{ DB *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db} }

// Tx runs fn inside one transaction. fn must only use the *Repo it is given.
func (r *Repo) Tx(ctx context.Context, fn func(tx *Repo) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repo{DB: tx})
	})
}

// ensureID 调用方未指定 ID 时由应用侧生成
func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// translate 把 gorm 错误归类；其余原样包装为内部错误
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound("%s not found", what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Conflict("%s already exists", what)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

// Users

func (r *Repo) CreateUser(ctx context.Context, u *models.User) error {
	ensureID(&u.ID)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return translate(r.DB.WithContext(ctx).Create(u).Error, "user")
}

func (r *Repo) TouchUserLogin(ctx context.Context, userID, ip, ua string) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_login_at": gorm.Expr("CURRENT_TIMESTAMP"),
			"last_seen_at":  gorm.Expr("CURRENT_TIMESTAMP"),
			"login_count":   gorm.Expr("COALESCE(login_count, 0) + 1"),
			"last_login_ip": ip,
			"last_login_ua": ua,
		}).Error
}

func (r *Repo) TouchUserSeen(ctx context.Context, userID string) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_seen_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
}

// 按 ID 查
func (r *Repo) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &u, nil
}

func (r *Repo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &u, nil
}

// UserExists 用户名或邮箱任一已被占用
func (r *Repo) UserExists(ctx context.Context, email, username string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("email = ? OR username = ?", strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(username)).
		Count(&n).Error
	return n > 0, err
}

// 列表（分页 + 关键词，匹配用户名/邮箱）
type ListUsersResult struct {
	Users []models.User `json:"users"`
	Total int64         `json:"total"`
}

func (r *Repo) ListUsers(ctx context.Context, q string, page, size int) (ListUsersResult, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}

	tx := r.DB.WithContext(ctx).Model(&models.User{})
	if q = strings.TrimSpace(q); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		tx = tx.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return ListUsersResult{}, err
	}

	var users []models.User
	if err := tx.
		Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&users).Error; err != nil {
		return ListUsersResult{}, err
	}
	return ListUsersResult{Users: users, Total: total}, nil
}

// UserPatch 只应用非 nil 字段
type UserPatch struct {
	Username     *string
	Email        *string
	Role         *models.UserRole
	Status       *models.UserStatus
	ProfilePic   *string
	PasswordHash *string
}

func (r *Repo) UpdateUser(ctx context.Context, id string, p UserPatch) (*models.User, error) {
	var u models.User
	err := r.Tx(ctx, func(tx *Repo) error {
		if err := tx.DB.Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, "id = ?", id).Error; err != nil {
			return translate(err, "user")
		}
		if p.Username != nil {
			u.Username = strings.TrimSpace(*p.Username)
		}
		if p.Email != nil {
			u.Email = strings.ToLower(strings.TrimSpace(*p.Email))
		}
		if p.Role != nil {
			u.Role = *p.Role
		}
		if p.Status != nil {
			u.Status = *p.Status
		}
		if p.ProfilePic != nil {
			u.ProfilePic = *p.ProfilePic
		}
		if p.PasswordHash != nil {
			u.PasswordHash = *p.PasswordHash
		}
		return translate(tx.DB.Save(&u).Error, "user")
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) DeleteUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := r.Tx(ctx, func(tx *Repo) error {
		if err := tx.DB.First(&u, "id = ?", id).Error; err != nil {
			return translate(err, "user")
		}
		return tx.DB.Delete(&models.User{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}
