package controllers

import (
	"net/http"
	"strings"
	"time"

	"IT_borrowing_system/app"
	"IT_borrowing_system/apperr"
	"IT_borrowing_system/models"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type AuthController struct{ *Srv }

func NewAuthController(s *Srv) *AuthController { return &AuthController{Srv: s} }

type registerRequest struct {
	Username string `json:"username" binding:"required,min=2,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// POST /auth/register
func (ac *AuthController) Register(c *gin.Context) {
	var in registerRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		ac.badRequest(c, "username, valid email and a password of at least 8 characters are required")
		return
	}
	ctx := c.Request.Context()

	exists, err := ac.Repo.UserExists(ctx, in.Email, in.Username)
	if err != nil {
		ac.fail(c, err)
		return
	}
	if exists {
		ac.fail(c, apperr.Conflict("user already exists"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		ac.fail(c, err)
		return
	}
	u := &models.User{
		Username:     strings.TrimSpace(in.Username),
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         models.RoleStudent,
		Status:       models.UserActive,
	}
	if err := ac.Repo.CreateUser(ctx, u); err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, app.H{"ok": true, "user": u})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// POST /auth/login
func (ac *AuthController) Login(c *gin.Context) {
	var in loginRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		ac.badRequest(c, "email and password are required")
		return
	}
	ctx := c.Request.Context()

	u, err := ac.Repo.FindUserByEmail(ctx, in.Email)
	if apperr.Is(err, apperr.KindNotFound) {
		app.Abort(c, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		return
	}
	if err != nil {
		ac.fail(c, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		app.Abort(c, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		return
	}
	if u.Status == models.UserSuspended {
		forbidden(c, "account suspended")
		return
	}

	if err := ac.issueSession(ctx, c.Writer, u.ID, c.ClientIP(), c.Request.UserAgent()); err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{
		"ok":      true,
		"user":    u,
		"isAdmin": u.Role == models.RoleAdmin || ac.Cfg.IsAdminEmail(u.Email),
	})
}

// POST /auth/logout
func (ac *AuthController) Logout(c *gin.Context) {
	if ck, err := c.Request.Cookie(app.AppSessionCookie); err == nil && ck.Value != "" {
		_ = ac.AppSess.Delete(c.Request.Context(), ck.Value)
	}
	ac.setAppCookie(c.Writer, "", -time.Second)
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// GET /auth/whoami
func (ac *AuthController) WhoAmI(c *gin.Context) {
	u, err := ac.Repo.FindUserByID(c.Request.Context(), currentUserID(c))
	if err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"user": u, "isAdmin": isAdmin(c)})
}
