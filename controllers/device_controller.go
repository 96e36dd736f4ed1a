package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"IT_borrowing_system/app"
	"IT_borrowing_system/db"
	"IT_borrowing_system/models"

	"github.com/gin-gonic/gin"
)

type DeviceController struct{ *Srv }

func NewDeviceController(s *Srv) *DeviceController { return &DeviceController{Srv: s} }

type deviceInput struct {
	Name         *string                 `json:"name"`
	SerialNumber *string                 `json:"serialNumber"`
	Category     *string                 `json:"category"`
	Status       *models.DeviceStatus    `json:"status"`
	Condition    *models.DeviceCondition `json:"condition"`
	PurchaseDate *time.Time              `json:"purchaseDate"`
	Location     *string                 `json:"location"`
	Description  *string                 `json:"description"`
	Image        *string                 `json:"image"`
	Lat          *float64                `json:"lat"`
	Lng          *float64                `json:"lng"`
}

func (in deviceInput) patch() db.DevicePatch {
	return db.DevicePatch{
		Name:         in.Name,
		SerialNumber: in.SerialNumber,
		Category:     in.Category,
		Status:       in.Status,
		Condition:    in.Condition,
		PurchaseDate: in.PurchaseDate,
		Location:     in.Location,
		Description:  in.Description,
		Image:        in.Image,
		Lat:          in.Lat,
		Lng:          in.Lng,
	}
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// POST /api/devices
func (dc *DeviceController) CreateDevice(c *gin.Context) {
	var in deviceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		dc.badRequest(c, "invalid device payload")
		return
	}
	d := &models.Device{
		Name:         str(in.Name),
		SerialNumber: str(in.SerialNumber),
		Category:     str(in.Category),
		Status:       models.DeviceAvailable,
		Condition:    models.ConditionBefore,
		PurchaseDate: time.Now().UTC(),
		Location:     str(in.Location),
		Description:  str(in.Description),
		Image:        str(in.Image),
		Lat:          in.Lat,
		Lng:          in.Lng,
	}
	if d.Name == "" || d.SerialNumber == "" || d.Category == "" {
		dc.badRequest(c, "name, serial number and category are required")
		return
	}
	if in.Status != nil {
		if !in.Status.Valid() || *in.Status == models.DeviceBorrowed {
			dc.badRequest(c, "new devices must be Available or Damaged")
			return
		}
		d.Status = *in.Status
	}
	if in.Condition != nil {
		if !in.Condition.Valid() {
			dc.badRequest(c, "invalid device condition %q", *in.Condition)
			return
		}
		d.Condition = *in.Condition
	}
	if in.PurchaseDate != nil {
		d.PurchaseDate = in.PurchaseDate.UTC()
	}

	ctx := c.Request.Context()
	if taken, err := dc.Repo.DeviceSerialExists(ctx, d.SerialNumber); err != nil {
		dc.fail(c, err)
		return
	} else if taken {
		app.Abort(c, http.StatusConflict, "Conflict", "device already exists")
		return
	}
	if err := dc.Repo.CreateDevice(ctx, d); err != nil {
		dc.fail(c, err)
		return
	}
	dc.Log.InfoContext(ctx, "[NOTIFICATION] New device added", "name", d.Name, "category", d.Category)
	c.JSON(http.StatusCreated, app.H{"ok": true, "device": d})
}

// GET /api/devices?q=&category=
func (dc *DeviceController) ListDevices(c *gin.Context) {
	ds, err := dc.Repo.ListDevices(c.Request.Context(), c.Query("q"), c.Query("category"))
	if err != nil {
		dc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"devices": ds})
}

// GET /api/devices/search?q=
func (dc *DeviceController) SearchDevices(c *gin.Context) {
	if strings.TrimSpace(c.Query("q")) == "" {
		dc.badRequest(c, "search query is required")
		return
	}
	dc.ListDevices(c)
}

// GET /api/devices/:id
func (dc *DeviceController) GetDevice(c *gin.Context) {
	id, ok := dc.validID(c, "id")
	if !ok {
		return
	}
	d, err := dc.Repo.FindDeviceByID(c.Request.Context(), id)
	if err != nil {
		dc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"device": d})
}

// PUT /api/devices/:id
func (dc *DeviceController) UpdateDevice(c *gin.Context) {
	id, ok := dc.validID(c, "id")
	if !ok {
		return
	}
	var in deviceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		dc.badRequest(c, "invalid device payload")
		return
	}
	ctx := c.Request.Context()
	d, old, err := dc.Repo.UpdateDevice(ctx, id, in.patch())
	if err != nil {
		dc.fail(c, err)
		return
	}
	if old != d.Status {
		dc.Log.InfoContext(ctx, "[NOTIFICATION] Device status changed", "name", d.Name, "from", old, "to", d.Status)
	} else {
		dc.Log.InfoContext(ctx, "[NOTIFICATION] Device updated", "name", d.Name)
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "device": d})
}

// DELETE /api/devices/:id
func (dc *DeviceController) DeleteDevice(c *gin.Context) {
	id, ok := dc.validID(c, "id")
	if !ok {
		return
	}
	d, err := dc.Engine.DeleteDevice(c.Request.Context(), id)
	if err != nil {
		dc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "device": d})
}

// GET /api/admin/devices?q=&status=open|available|overdue|damaged&page=&size=
func (dc *DeviceController) AdminListDevices(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	status := c.Query("status")
	switch status {
	case "", "open", "available", "overdue", "damaged":
	default:
		dc.badRequest(c, "unknown status filter %q", status)
		return
	}

	res, err := dc.Repo.ListDevicesWithCurrentBorrowing(c.Request.Context(), db.AdminDevicesQuery{
		Q:      c.Query("q"),
		Status: status,
		Page:   page,
		Size:   size,
	})
	if err != nil {
		dc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
