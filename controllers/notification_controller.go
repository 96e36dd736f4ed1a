package controllers

import (
	"net/http"

	"IT_borrowing_system/app"

	"github.com/gin-gonic/gin"
)

type NotificationController struct{ *Srv }

func NewNotificationController(s *Srv) *NotificationController {
	return &NotificationController{Srv: s}
}

// GET /api/notifications
func (nc *NotificationController) Notifications(c *gin.Context) {
	feed, err := nc.Notify.Feed(c.Request.Context(), currentUserID(c), isAdmin(c))
	if err != nil {
		nc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"notifications": feed})
}

// GET /api/stats
func (nc *NotificationController) Stats(c *gin.Context) {
	st, err := nc.Repo.Stats(c.Request.Context())
	if err != nil {
		nc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
