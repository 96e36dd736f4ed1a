// controllers/srv.go
package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"IT_borrowing_system/app"
	"IT_borrowing_system/apperr"
	"IT_borrowing_system/borrowing"
	"IT_borrowing_system/db"
	"IT_borrowing_system/notify"
	"IT_borrowing_system/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Srv struct {
	Repo    *db.Repo
	Engine  *borrowing.Engine
	AppSess *session.AppSessionStore
	Notify  *notify.Projector
	Cfg     app.Config
	Log     *slog.Logger
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		Repo:    a.Repo,
		Engine:  a.Engine,
		AppSess: a.AppSessions(),
		Notify:  a.Notify,
		Cfg:     a.Config,
		Log:     a.Log,
	}
}

// --- helpers ---

// fail 统一错误响应：{"error":{"kind","message"}}
func (s *Srv) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		s.Log.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "err", err)
		_ = c.Error(err)
	}
	app.Abort(c, apperr.HTTPStatus(err), string(kind), apperr.Message(err))
}

func (s *Srv) badRequest(c *gin.Context, format string, args ...any) {
	s.fail(c, apperr.Validation(format, args...))
}

func forbidden(c *gin.Context, msg string) {
	app.Abort(c, http.StatusForbidden, "Forbidden", msg)
}

func currentUserID(c *gin.Context) string { return c.GetString("userID") }

func isAdmin(c *gin.Context) bool { return c.GetBool("isAdmin") }

// selfOrAdmin 非管理员只能访问自己的数据
func selfOrAdmin(c *gin.Context, ownerID string) bool {
	return isAdmin(c) || currentUserID(c) == ownerID
}

// validID 路径参数必须是 UUID
func (s *Srv) validID(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		s.badRequest(c, "invalid %s", name)
		return "", false
	}
	return id, true
}

// 统一设置业务会话 Cookie
func (s *Srv) setAppCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.Cfg.SecureCookies(),
		MaxAge:   int(maxAge / time.Second),
	})
}

// 登录成功：创建会话 + 记录登录快照
func (s *Srv) issueSession(ctx context.Context, w http.ResponseWriter, userID string, ip, ua string) error {
	if err := s.Repo.TouchUserLogin(ctx, userID, ip, ua); err != nil {
		s.Log.WarnContext(ctx, "login bookkeeping failed", "userId", userID, "err", err)
	}
	id := uuid.NewString()
	if err := s.AppSess.Create(ctx, id, userID); err != nil {
		return err
	}
	s.setAppCookie(w, id, s.AppSess.TTL())
	return nil
}
