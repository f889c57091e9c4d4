package handler

import (
	"net/http"

	"tillpoint/internal/apierror"
	"tillpoint/internal/dto"
	"tillpoint/internal/middleware"
	"tillpoint/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RegistersHandler struct{ svc service.RegisterService }

func NewRegistersHandler(svc service.RegisterService) *RegistersHandler {
	return &RegistersHandler{svc: svc}
}

// Open godoc
// @Summary      Open a register session
// @Description  One open register per user and per device. The counted opening float seeds the expected-cash formula.
// @Tags         registers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.OpenRegisterRequest true "Opening detail"
// @Success      201  {object} dto.RegisterResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/registers/open [post]
func (h *RegistersHandler) Open(c *gin.Context) {
	var req dto.OpenRegisterRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	actorID, _ := uuid.Parse(claims.UserID)

	resp, err := h.svc.Open(c.Request.Context(), actorID, req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ExpectedCash godoc
// @Summary      Expected cash for a register
// @Description  Live derived figures while open (opening float + cash sales - withdrawals); the frozen snapshot once closed.
// @Tags         registers
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Register UUID"
// @Success      200 {object} dto.ExpectedCashResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/registers/{id}/expected-cash [get]
func (h *RegistersHandler) ExpectedCash(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid register id"))
		return
	}
	resp, err := h.svc.ExpectedCash(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Withdraw godoc
// @Summary      Record a cash withdrawal
// @Description  Appends an audited withdrawal (safe drop, supplier payment) to an open register.
// @Tags         registers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string               true "Register UUID"
// @Param        body body dto.WithdrawalRequest true "Withdrawal detail"
// @Success      201  {object} dto.WithdrawalResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/registers/{id}/withdrawals [post]
func (h *RegistersHandler) Withdraw(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid register id"))
		return
	}
	var req dto.WithdrawalRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	actorID, _ := uuid.Parse(claims.UserID)

	resp, err := h.svc.Withdraw(c.Request.Context(), id, actorID, req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Close godoc
// @Summary      Close a register session
// @Description  Snapshots the derived figures and records the difference between the counted drawer and the expected cash.
// @Tags         registers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                  true "Register UUID"
// @Param        body body dto.CloseRegisterRequest true "Counted closing cash"
// @Success      200  {object} dto.RegisterResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/registers/{id}/close [post]
func (h *RegistersHandler) Close(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid register id"))
		return
	}
	var req dto.CloseRegisterRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	actorID, _ := uuid.Parse(claims.UserID)

	resp, err := h.svc.Close(c.Request.Context(), id, actorID, req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// BindDevice godoc
// @Summary      Bind a device to a register number
// @Description  Admin convenience so a terminal resumes its usual register. Does not affect open-register uniqueness.
// @Tags         registers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.BindDeviceRequest true "Binding detail"
// @Success      204
// @Failure      422  {object} apierror.ValidationError
// @Router       /v1/registers/bind-device [post]
func (h *RegistersHandler) BindDevice(c *gin.Context) {
	var req dto.BindDeviceRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.svc.BindDevice(c.Request.Context(), req); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Active godoc
// @Summary      Current open register for the caller
// @Tags         registers
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} dto.RegisterResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/registers/active [get]
func (h *RegistersHandler) Active(c *gin.Context) {
	claims := middleware.GetClaims(c)
	userID, _ := uuid.Parse(claims.UserID)

	resp, err := h.svc.ActiveForUser(c.Request.Context(), userID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// History godoc
// @Summary      Register session history
// @Tags         registers
// @Produce      json
// @Security     BearerAuth
// @Param        date_from query string false "YYYY-MM-DD"
// @Param        date_to   query string false "YYYY-MM-DD"
// @Param        page      query int    false "Page (default 1)"
// @Param        limit     query int    false "Rows per page (default 20)"
// @Success      200 {object} dto.RegisterListResponse
// @Router       /v1/registers [get]
func (h *RegistersHandler) History(c *gin.Context) {
	var filter dto.RegisterHistoryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	resp, err := h.svc.History(c.Request.Context(), filter)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
