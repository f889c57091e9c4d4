package handler

import (
	"net/http"

	"tillpoint/internal/middleware"
	"tillpoint/internal/service"

	"github.com/gin-gonic/gin"
)

type DevicesHandler struct{ svc service.DeviceService }

func NewDevicesHandler(svc service.DeviceService) *DevicesHandler {
	return &DevicesHandler{svc: svc}
}

// Lookup godoc
// @Summary      Resolve a device to its register
// @Description  Returns the open register bound to the terminal, or the register number it last used, plus whether the caller may manage other registers.
// @Tags         devices
// @Produce      json
// @Security     BearerAuth
// @Param        device_id path string true "Device identifier"
// @Success      200 {object} dto.DeviceLookupResponse
// @Failure      422 {object} apierror.APIError
// @Router       /v1/devices/{device_id}/register [get]
func (h *DevicesHandler) Lookup(c *gin.Context) {
	claims := middleware.GetClaims(c)

	resp, err := h.svc.Lookup(c.Request.Context(), c.Param("device_id"), claims.Role)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
