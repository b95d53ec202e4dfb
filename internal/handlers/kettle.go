package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"stagg_bridge/internal/kettle"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK       = "ok"
	statusAccepted = "accepted"

	errGetState        = "failed to load state"
	errSendCommand     = "failed to send command"
	errRefresh         = "failed to refresh state"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// commandError maps transport failures onto HTTP status codes: caller
// mistakes are 400, an unreachable device is 502.
func (h *Handler) commandError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	if errors.Is(err, kettle.ErrInvalidParameter) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logAndJSONError(c, http.StatusBadGateway, errSendCommand, logKey, err, kv...)
}

// Respond with a status and include current state if available (best-effort).
func (h *Handler) respondWithStatusAndState(c *gin.Context, status string, extra gin.H) {
	ctx := c.Request.Context()
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	st, err := h.services.Monitoring.GetState(ctx)
	if err == nil {
		resp["state"] = st
	}
	c.JSON(http.StatusOK, resp)
}

// PowerRequest is the payload for the power endpoint.
type PowerRequest struct {
	// On turns heating on or off
	On bool `json:"on" example:"true"`
}

// TemperatureRequest is the payload for the target temperature endpoint.
type TemperatureRequest struct {
	// Target temperature in Celsius, clamped to the device range 40-100
	TempC float64 `json:"temp_c" binding:"required" example:"85"`
}

// HoldRequest is the payload for the hold duration endpoint.
type HoldRequest struct {
	// Hold duration in minutes. Allowed: 0, 15, 30, 45, 60
	Minutes int `json:"minutes" example:"30"`
}

// ScheduleTimeRequest is the payload for the schedule time endpoint.
type ScheduleTimeRequest struct {
	Hour   int `json:"hour" example:"6"`
	Minute int `json:"minute" example:"30"`
}

// ScheduleEnabledRequest is the payload for the schedule toggle endpoint.
type ScheduleEnabledRequest struct {
	Enabled bool `json:"enabled" example:"true"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Get kettle state
// @Tags         kettle
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/kettle/state [get]
// @Security     BearerAuth
func (h *Handler) getState(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := h.services.Monitoring.GetState(ctx)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "kettle_get_state_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Set power
// @Description  Toggles heating. Rapid repeat calls are debounced; only the final toggle reaches the device.
// @Tags         kettle
// @Accept       json
// @Produce      json
// @Param        body  body   PowerRequest  true  "Power payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/kettle/power [post]
// @Security     BearerAuth
func (h *Handler) setPower(c *gin.Context) {
	var req PowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if err := h.services.Kettle.SetPower(c.Request.Context(), req.On); err != nil {
		h.commandError(c, "kettle_set_power_failed", err, "on", req.On)
		return
	}
	h.respondWithStatusAndState(c, statusAccepted, gin.H{"on": req.On})
}

// @Summary      Set target temperature
// @Tags         kettle
// @Accept       json
// @Produce      json
// @Param        body  body   TemperatureRequest  true  "Temperature payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/kettle/temperature [post]
// @Security     BearerAuth
func (h *Handler) setTemperature(c *gin.Context) {
	var req TemperatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if err := h.services.Kettle.SetTemperature(c.Request.Context(), req.TempC); err != nil {
		h.commandError(c, "kettle_set_temperature_failed", err, "temp_c", req.TempC)
		return
	}
	h.respondWithStatusAndState(c, statusAccepted, gin.H{"temp_c": req.TempC})
}

// @Summary      Set hold duration
// @Description  Allowed values: 0, 15, 30, 45, 60 minutes. 0 disables hold.
// @Tags         kettle
// @Accept       json
// @Produce      json
// @Param        body  body   HoldRequest  true  "Hold payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/kettle/hold [post]
// @Security     BearerAuth
func (h *Handler) setHold(c *gin.Context) {
	var req HoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if err := h.services.Kettle.SetHold(c.Request.Context(), req.Minutes); err != nil {
		h.commandError(c, "kettle_set_hold_failed", err, "minutes", req.Minutes)
		return
	}
	h.respondWithStatusAndState(c, statusAccepted, gin.H{"minutes": req.Minutes})
}

// @Summary      Refresh state now
// @Description  Triggers one poll outside the regular cadence.
// @Tags         kettle
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/kettle/refresh [post]
// @Security     BearerAuth
func (h *Handler) refresh(c *gin.Context) {
	if err := h.services.Kettle.Refresh(c.Request.Context()); err != nil {
		h.logAndJSONError(c, http.StatusBadGateway, errRefresh, "kettle_refresh_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

// @Summary      Set schedule time
// @Tags         kettle
// @Accept       json
// @Produce      json
// @Param        body  body   ScheduleTimeRequest  true  "Schedule time payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/kettle/schedule/time [post]
// @Security     BearerAuth
func (h *Handler) setScheduleTime(c *gin.Context) {
	var req ScheduleTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if err := h.services.Kettle.SetScheduleTime(c.Request.Context(), req.Hour, req.Minute); err != nil {
		h.commandError(c, "kettle_set_schedule_time_failed", err, "hour", req.Hour, "minute", req.Minute)
		return
	}
	h.respondWithStatusAndState(c, statusAccepted, gin.H{"hour": req.Hour, "minute": req.Minute})
}

// @Summary      Enable or disable schedule
// @Tags         kettle
// @Accept       json
// @Produce      json
// @Param        body  body   ScheduleEnabledRequest  true  "Schedule toggle payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/kettle/schedule/enabled [post]
// @Security     BearerAuth
func (h *Handler) setScheduleEnabled(c *gin.Context) {
	var req ScheduleEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if err := h.services.Kettle.SetScheduleEnabled(c.Request.Context(), req.Enabled); err != nil {
		h.commandError(c, "kettle_set_schedule_enabled_failed", err, "enabled", req.Enabled)
		return
	}
	h.respondWithStatusAndState(c, statusAccepted, gin.H{"enabled": req.Enabled})
}

// @Summary      Set schedule temperature
// @Tags         kettle
// @Accept       json
// @Produce      json
// @Param        body  body   TemperatureRequest  true  "Temperature payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/kettle/schedule/temperature [post]
// @Security     BearerAuth
func (h *Handler) setScheduleTemperature(c *gin.Context) {
	var req TemperatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if err := h.services.Kettle.SetScheduleTemperature(c.Request.Context(), req.TempC); err != nil {
		h.commandError(c, "kettle_set_schedule_temperature_failed", err, "temp_c", req.TempC)
		return
	}
	h.respondWithStatusAndState(c, statusAccepted, gin.H{"temp_c": req.TempC})
}
