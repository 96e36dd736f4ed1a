package controllers

import (
	"errors"
	"net/http"
	"strings"

	"IT_borrowing_system/app"
	"IT_borrowing_system/apperr"
	"IT_borrowing_system/models"

	"github.com/gin-gonic/gin"
)

type ReviewController struct{ *Srv }

var errNotOwner = errors.New("not the review owner")

func NewReviewController(s *Srv) *ReviewController { return &ReviewController{Srv: s} }

type reviewInput struct {
	DeviceID string   `json:"deviceId"`
	Text     *string  `json:"text"`
	Image    *string  `json:"image"`
	Rating   *int     `json:"rating"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
}

func validRating(r *int) error {
	if r != nil && (*r < 1 || *r > 5) {
		return apperr.Validation("rating must be between 1 and 5")
	}
	return nil
}

// POST /api/reviews
func (rc *ReviewController) CreateReview(c *gin.Context) {
	var in reviewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		rc.badRequest(c, "invalid review payload")
		return
	}
	if in.DeviceID == "" || str(in.Text) == "" {
		rc.badRequest(c, "deviceId and text are required")
		return
	}
	if err := validRating(in.Rating); err != nil {
		rc.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	dev, err := rc.Repo.FindDeviceByID(ctx, in.DeviceID)
	if err != nil {
		rc.fail(c, err)
		return
	}

	rv := &models.Review{
		DeviceID: dev.ID,
		UserID:   currentUserID(c),
		Text:     str(in.Text),
		Image:    str(in.Image),
		Rating:   1,
		Lat:      in.Lat,
		Lng:      in.Lng,
		Likes:    []string{},
		Dislikes: []string{},
	}
	if in.Rating != nil {
		rv.Rating = *in.Rating
	}
	if err := rc.Repo.CreateReview(ctx, rv); err != nil {
		rc.fail(c, err)
		return
	}
	rc.Log.InfoContext(ctx, "[NOTIFICATION] New review",
		"user", c.GetString("username"), "rating", rv.Rating, "device", dev.Name)
	c.JSON(http.StatusCreated, app.H{"ok": true, "review": rv})
}

// GET /api/reviews
func (rc *ReviewController) ListReviews(c *gin.Context) {
	rs, err := rc.Repo.ListReviews(c.Request.Context(), "", nil, 0)
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"reviews": rs})
}

// GET /api/devices/:id/reviews
func (rc *ReviewController) ListDeviceReviews(c *gin.Context) {
	id, ok := rc.validID(c, "id")
	if !ok {
		return
	}
	rs, err := rc.Repo.ListReviews(c.Request.Context(), id, nil, 0)
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"reviews": rs})
}

// PUT /api/reviews/:id
func (rc *ReviewController) UpdateReview(c *gin.Context) {
	id, ok := rc.validID(c, "id")
	if !ok {
		return
	}
	var in reviewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		rc.badRequest(c, "invalid review payload")
		return
	}
	if err := validRating(in.Rating); err != nil {
		rc.fail(c, err)
		return
	}
	rv, err := rc.Repo.UpdateReview(c.Request.Context(), id, func(rv *models.Review) error {
		if !selfOrAdmin(c, rv.UserID) {
			return errNotOwner
		}
		if in.Text != nil {
			if strings.TrimSpace(*in.Text) == "" {
				return apperr.Validation("text cannot be empty")
			}
			rv.Text = strings.TrimSpace(*in.Text)
		}
		if in.Image != nil {
			rv.Image = *in.Image
		}
		if in.Rating != nil {
			rv.Rating = *in.Rating
		}
		if in.Lat != nil {
			rv.Lat = in.Lat
		}
		if in.Lng != nil {
			rv.Lng = in.Lng
		}
		return nil
	})
	if errors.Is(err, errNotOwner) {
		forbidden(c, "cannot edit another user's review")
		return
	}
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "review": rv})
}

// DELETE /api/reviews/:id
func (rc *ReviewController) DeleteReview(c *gin.Context) {
	id, ok := rc.validID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	cur, err := rc.Repo.FindReview(ctx, id)
	if err != nil {
		rc.fail(c, err)
		return
	}
	if !selfOrAdmin(c, cur.UserID) {
		forbidden(c, "cannot delete another user's review")
		return
	}
	rv, err := rc.Repo.DeleteReview(ctx, id)
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "review": rv})
}

// POST /api/reviews/:id/like
func (rc *ReviewController) Like(c *gin.Context) { rc.react(c, (*models.Review).ToggleLike) }

// POST /api/reviews/:id/dislike
func (rc *ReviewController) Dislike(c *gin.Context) { rc.react(c, (*models.Review).ToggleDislike) }

func (rc *ReviewController) react(c *gin.Context, toggle func(*models.Review, string)) {
	id, ok := rc.validID(c, "id")
	if !ok {
		return
	}
	uid := currentUserID(c)
	rv, err := rc.Repo.UpdateReview(c.Request.Context(), id, func(rv *models.Review) error {
		toggle(rv, uid)
		return nil
	})
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "review": rv})
}
