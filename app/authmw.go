package app

import (
	"errors"
	"net/http"

	"IT_borrowing_system/apperr"
	"IT_borrowing_system/db"
	"IT_borrowing_system/models"
	"IT_borrowing_system/session"

	"github.com/gin-gonic/gin"
)

const AppSessionCookie = "app_session"

// Abort writes the same error envelope the controllers use.
func Abort(c *gin.Context, status int, kind, msg string) {
	c.AbortWithStatusJSON(status, H{"error": H{"kind": kind, "message": msg}})
}

func AuthRequired(appSess *session.AppSessionStore, repo *db.Repo, cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ck, err := c.Request.Cookie(AppSessionCookie)
		if err != nil || ck.Value == "" {
			Abort(c, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		as, err := appSess.Get(c.Request.Context(), ck.Value)
		if errors.Is(err, session.ErrNoSession) {
			Abort(c, http.StatusUnauthorized, "Unauthorized", "invalid session")
			return
		}
		if err != nil {
			Abort(c, http.StatusInternalServerError, string(apperr.KindInternal), "session store unavailable")
			return
		}

		// 确认用户仍存在且未停用
		u, err := repo.FindUserByID(c.Request.Context(), as.UserID)
		if err != nil {
			_ = appSess.Delete(c.Request.Context(), ck.Value)
			Abort(c, http.StatusUnauthorized, "Unauthorized", "unauthorized")
			return
		}
		if u.Status == models.UserSuspended {
			Abort(c, http.StatusForbidden, "Forbidden", "account suspended")
			return
		}

		c.Set("userID", u.ID)
		c.Set("username", u.Username)
		c.Set("isAdmin", u.Role == models.RoleAdmin || cfg.IsAdminEmail(u.Email))
		c.Next()
	}
}

// AdminOnly 依赖 AuthRequired 先行
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get("userID"); !ok {
			Abort(c, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		if !c.GetBool("isAdmin") {
			Abort(c, http.StatusForbidden, "Forbidden", "admin only")
			return
		}
		c.Next()
	}
}
