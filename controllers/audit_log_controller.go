package controllers

import (
	"net/http"
	"strconv"

	"IT_borrowing_system/app"
	"IT_borrowing_system/db"

	"github.com/gin-gonic/gin"
)

type AuditController struct{ *Srv }

func NewAuditController(s *Srv) *AuditController { return &AuditController{Srv: s} }

// GET /api/audit?borrowingId=&deviceId=&userId=&limit=
func (ac *AuditController) ListAudit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	logs, err := ac.Repo.ListAuditLogs(c.Request.Context(), db.AuditFilter{
		BorrowingID: c.Query("borrowingId"),
		DeviceID:    c.Query("deviceId"),
		UserID:      c.Query("userId"),
		Limit:       limit,
	})
	if err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"logs": logs})
}
