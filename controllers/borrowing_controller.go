package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"IT_borrowing_system/app"
	"IT_borrowing_system/borrowing"
	"IT_borrowing_system/db"
	"IT_borrowing_system/models"

	"github.com/gin-gonic/gin"
)

type BorrowingController struct{ *Srv }

func NewBorrowingController(s *Srv) *BorrowingController { return &BorrowingController{Srv: s} }

// POST /api/borrowings
func (bc *BorrowingController) CreateBorrowing(c *gin.Context) {
	var in borrowing.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		bc.badRequest(c, "invalid borrowing payload")
		return
	}
	// 普通用户只能替自己借
	if in.UserID == "" {
		in.UserID = currentUserID(c)
	}
	if !selfOrAdmin(c, in.UserID) {
		forbidden(c, "cannot borrow on behalf of another user")
		return
	}

	b, err := bc.Engine.CreateBorrowing(c.Request.Context(), in)
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, app.H{"ok": true, "id": b.ID})
}

// GET /api/borrowings?status=&userId=&deviceId=&paymentStatus=&sort=&order=&limit=
func (bc *BorrowingController) ListBorrowings(c *gin.Context) {
	f, ok := bc.filterFromQuery(c)
	if !ok {
		return
	}
	if !isAdmin(c) {
		f.UserID = currentUserID(c)
	}
	bc.list(c, f)
}

// GET /api/borrowings/mine
func (bc *BorrowingController) ListMine(c *gin.Context) {
	f, ok := bc.filterFromQuery(c)
	if !ok {
		return
	}
	f.UserID = currentUserID(c)
	bc.list(c, f)
}

// GET /api/borrowings/user/:userId
func (bc *BorrowingController) ListByUser(c *gin.Context) {
	uid, ok := bc.validID(c, "userId")
	if !ok {
		return
	}
	if !selfOrAdmin(c, uid) {
		forbidden(c, "cannot view another user's borrowings")
		return
	}
	f, ok := bc.filterFromQuery(c)
	if !ok {
		return
	}
	f.UserID = uid
	bc.list(c, f)
}

func (bc *BorrowingController) list(c *gin.Context, f db.BorrowingFilter) {
	bs, err := bc.Repo.ListBorrowings(c.Request.Context(), f)
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"borrowings": bs})
}

func (bc *BorrowingController) filterFromQuery(c *gin.Context) (db.BorrowingFilter, bool) {
	f := db.BorrowingFilter{
		UserID:    c.Query("userId"),
		DeviceID:  c.Query("deviceId"),
		SortBy:    c.Query("sort"),
		Ascending: strings.EqualFold(c.Query("order"), "asc"),
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st := models.BorrowingStatus(strings.TrimSpace(s))
			if !st.Valid() {
				bc.badRequest(c, "invalid borrowing status %q", st)
				return f, false
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if raw := c.Query("paymentStatus"); raw != "" {
		ps := models.PaymentStatus(raw)
		if !ps.Valid() {
			bc.badRequest(c, "invalid payment status %q", raw)
			return f, false
		}
		f.PaymentStatus = ps
	}
	f.WithFine = c.Query("withFine") == "true"
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			bc.badRequest(c, "invalid limit")
			return f, false
		}
		f.Limit = n
	}
	return f, true
}

// GET /api/borrowings/:id
func (bc *BorrowingController) GetBorrowing(c *gin.Context) {
	id, ok := bc.validID(c, "id")
	if !ok {
		return
	}
	b, err := bc.Repo.FindBorrowing(c.Request.Context(), id)
	if err != nil {
		bc.fail(c, err)
		return
	}
	if !selfOrAdmin(c, b.UserID) {
		forbidden(c, "cannot view another user's borrowing")
		return
	}
	c.JSON(http.StatusOK, app.H{"borrowing": b})
}

// PUT /api/borrowings/:id
func (bc *BorrowingController) UpdateBorrowing(c *gin.Context) {
	id, ok := bc.validID(c, "id")
	if !ok {
		return
	}
	var p borrowing.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		bc.badRequest(c, "invalid borrowing patch")
		return
	}
	b, err := bc.Engine.TransitionBorrowing(c.Request.Context(), id, p)
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "borrowing": b})
}

// DELETE /api/borrowings/:id
func (bc *BorrowingController) DeleteBorrowing(c *gin.Context) {
	id, ok := bc.validID(c, "id")
	if !ok {
		return
	}
	b, err := bc.Engine.DeleteBorrowing(c.Request.Context(), id)
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "borrowing": b})
}

// POST /api/borrowings/:id/pay
func (bc *BorrowingController) PayFine(c *gin.Context) {
	id, ok := bc.validID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	cur, err := bc.Repo.FindBorrowing(ctx, id)
	if err != nil {
		bc.fail(c, err)
		return
	}
	if !selfOrAdmin(c, cur.UserID) {
		forbidden(c, "cannot pay another user's fine")
		return
	}
	b, err := bc.Engine.PayFine(ctx, id)
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "borrowing": b})
}
