package controllers

import (
	"net/http"
	"strconv"

	"IT_borrowing_system/app"
	"IT_borrowing_system/apperr"
	"IT_borrowing_system/db"
	"IT_borrowing_system/models"

	"github.com/gin-gonic/gin"
)

type UserController struct{ *Srv }

func NewUserController(s *Srv) *UserController { return &UserController{Srv: s} }

// GET /api/users?q=alice&page=1&size=20
func (uc *UserController) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := uc.Repo.ListUsers(c.Request.Context(), c.Query("q"), page, size)
	if err != nil {
		uc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{
		"total": res.Total,
		"users": res.Users,
	})
}

// GET /api/users/:id
func (uc *UserController) GetUser(c *gin.Context) {
	id, ok := uc.validID(c, "id")
	if !ok {
		return
	}
	user, err := uc.Repo.FindUserByID(c.Request.Context(), id)
	if err != nil {
		uc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"user": user})
}

type userUpdate struct {
	Username   *string            `json:"username"`
	Email      *string            `json:"email" binding:"omitempty,email"`
	Role       *models.UserRole   `json:"role"`
	Status     *models.UserStatus `json:"status"`
	ProfilePic *string            `json:"profilepic"`
}

// PUT /api/users/:id
func (uc *UserController) UpdateUser(c *gin.Context) {
	id, ok := uc.validID(c, "id")
	if !ok {
		return
	}
	var in userUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		uc.badRequest(c, "invalid user payload")
		return
	}
	if in.Role != nil && !in.Role.Valid() {
		uc.badRequest(c, "invalid role %q", *in.Role)
		return
	}
	if in.Status != nil && !in.Status.Valid() {
		uc.badRequest(c, "invalid status %q", *in.Status)
		return
	}
	if in.Username != nil && str(in.Username) == "" {
		uc.badRequest(c, "username cannot be empty")
		return
	}
	// 不能把自己降级或停用，避免锁死
	if id == currentUserID(c) &&
		((in.Role != nil && *in.Role != models.RoleAdmin) || (in.Status != nil && *in.Status == models.UserSuspended)) {
		uc.fail(c, apperr.Conflict("cannot demote or suspend yourself"))
		return
	}

	ctx := c.Request.Context()
	u, err := uc.Repo.UpdateUser(ctx, id, db.UserPatch{
		Username:   in.Username,
		Email:      in.Email,
		Role:       in.Role,
		Status:     in.Status,
		ProfilePic: in.ProfilePic,
	})
	if err != nil {
		uc.fail(c, err)
		return
	}
	if u.Status == models.UserSuspended {
		_ = uc.AppSess.RevokeAllForUser(ctx, u.ID)
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "user": u})
}

// DELETE /api/users/:id
func (uc *UserController) DeleteUser(c *gin.Context) {
	id, ok := uc.validID(c, "id")
	if !ok {
		return
	}
	// 不允许删除自己，避免锁死
	if id == currentUserID(c) {
		uc.fail(c, apperr.Conflict("cannot delete yourself"))
		return
	}

	ctx := c.Request.Context()
	target, err := uc.Repo.FindUserByID(ctx, id)
	if err != nil {
		uc.fail(c, err)
		return
	}
	if uc.Cfg.IsAdminEmail(target.Email) {
		forbidden(c, "cannot delete an admin")
		return
	}

	u, err := uc.Repo.DeleteUserByID(ctx, id)
	if err != nil {
		uc.fail(c, err)
		return
	}
	// 撤销该用户的所有登录会话
	_ = uc.AppSess.RevokeAllForUser(ctx, id)
	c.JSON(http.StatusOK, app.H{"ok": true, "user": u})
}
