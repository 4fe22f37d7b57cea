package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	compensationapp "github.com/mallstock/backend/internal/application/compensation"
	"github.com/mallstock/backend/internal/domain/compensation"
	"github.com/mallstock/backend/internal/interfaces/http/dto"
	"github.com/mallstock/backend/internal/interfaces/http/middleware"
)

// CompensationHandler handles compensation ledger API endpoints
type CompensationHandler struct {
	BaseHandler
	compensations *compensationapp.Service
}

// NewCompensationHandler creates a new CompensationHandler
func NewCompensationHandler(compensations *compensationapp.Service) *CompensationHandler {
	return &CompensationHandler{
		compensations: compensations,
	}
}

// RegisterRoutes wires the compensation endpoints into the API group
func (h *CompensationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	comps := rg.Group("/compensations")
	{
		comps.POST("", h.Create)
		comps.POST("/batch-execute", h.ExecuteBatch)
		comps.GET("/pending", h.ListPending)
		comps.GET("/:id", h.GetByID)
		comps.POST("/:id/execute", h.Execute)
		comps.POST("/:id/cancel", h.Cancel)
	}
}

// CreateCompensationRequest parks a stock operation for later re-execution
// @Description Request body for creating a compensation record
type CreateCompensationRequest struct {
	ProductID     int64  `json:"product_id" binding:"required,gt=0" example:"1001"`
	SkuID         int64  `json:"sku_id" binding:"gte=0" example:"2001"`
	Quantity      int64  `json:"quantity" binding:"required,gt=0" example:"3"`
	OrderNo       string `json:"order_no" binding:"required,max=64,orderno" example:"ORD-2026-0001"`
	OperationType string `json:"operation_type" binding:"required,oneof=DEDUCT ROLLBACK" example:"ROLLBACK"`
}

// CancelCompensationRequest optionally explains why a record is abandoned
// @Description Request body for cancelling a compensation record
type CancelCompensationRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500" example:"order refunded through support"`
}

// BatchExecuteCompensationRequest names the records to drive in one call
// @Description Request body for executing several compensation records
type BatchExecuteCompensationRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,dive,uuid"`
}

// Create godoc
// @ID           createCompensation
// @Summary      Create a compensation record
// @Description  Parks a failed stock operation in the ledger so it can be re-driven later
// @Tags         compensations
// @Accept       json
// @Produce      json
// @Param        request body CreateCompensationRequest true "Compensation request"
// @Success      201 {object} APIResponse[compensationapp.CompensationDTO]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /compensations [post]
func (h *CompensationHandler) Create(c *gin.Context) {
	var req CreateCompensationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	record, err := h.compensations.CreateCompensation(c.Request.Context(), compensationapp.CreateCompensationRequest{
		ProductID:     req.ProductID,
		SkuID:         req.SkuID,
		Quantity:      req.Quantity,
		OrderNo:       req.OrderNo,
		OperationType: req.OperationType,
		OperatorID:    getOperatorID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, record)
}

// Execute godoc
// @ID           executeCompensation
// @Summary      Execute a compensation record
// @Description  Drives one pending compensation record through its stock operation. Succeeded records are idempotent no-ops.
// @Tags         compensations
// @Produce      json
// @Param        id path string true "Compensation ID" format(uuid)
// @Success      200 {object} APIResponse[compensationapp.ExecutionResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /compensations/{id}/execute [post]
func (h *CompensationHandler) Execute(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	result, err := h.compensations.Execute(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// Cancel godoc
// @ID           cancelCompensation
// @Summary      Cancel a compensation record
// @Description  Marks a pending compensation record as cancelled so it is never re-driven, recording the supplied reason. Cancelling twice is a no-op.
// @Tags         compensations
// @Accept       json
// @Produce      json
// @Param        id path string true "Compensation ID" format(uuid)
// @Param        request body CancelCompensationRequest false "Cancellation reason"
// @Success      200 {object} APIResponse[compensationapp.CompensationDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /compensations/{id}/cancel [post]
func (h *CompensationHandler) Cancel(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	// the body is optional; an absent reason falls back to the default
	var req CancelCompensationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleValidationError(c, err)
			return
		}
	}

	record, err := h.compensations.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, record)
}

// ExecuteBatch godoc
// @ID           batchExecuteCompensations
// @Summary      Execute several compensation records
// @Description  Drives each named compensation record through its stock operation. Records are isolated: one failure never stops the rest.
// @Tags         compensations
// @Accept       json
// @Produce      json
// @Param        request body BatchExecuteCompensationRequest true "Record IDs"
// @Success      200 {object} APIResponse[compensationapp.BatchExecutionResult]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /compensations/batch-execute [post]
func (h *CompensationHandler) ExecuteBatch(c *gin.Context) {
	var req BatchExecuteCompensationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	ids := make([]uuid.UUID, len(req.IDs))
	for i, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid compensation ID format: "+raw)
			return
		}
		ids[i] = id
	}

	result, err := h.compensations.ExecuteBatch(c.Request.Context(), ids)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// GetByID godoc
// @ID           getCompensationById
// @Summary      Get a compensation record
// @Description  Retrieves a compensation record by its ID
// @Tags         compensations
// @Produce      json
// @Param        id path string true "Compensation ID" format(uuid)
// @Success      200 {object} APIResponse[compensationapp.CompensationDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /compensations/{id} [get]
func (h *CompensationHandler) GetByID(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	record, err := h.compensations.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, record)
}

// ListPending godoc
// @ID           listPendingCompensations
// @Summary      List compensation records
// @Description  Retrieves a paginated list of compensation records, optionally restricted to one status and a creation window. Without a status filter, PENDING records are listed.
// @Tags         compensations
// @Produce      json
// @Param        status query string false "Status filter (PENDING, SUCCESS, FAILED, CANCELLED, or ALL for every status)"
// @Param        created_after query string false "Lower bound on creation time (RFC3339)"
// @Param        created_before query string false "Upper bound on creation time (RFC3339)"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]compensationapp.CompensationDTO]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /compensations/pending [get]
func (h *CompensationHandler) ListPending(c *gin.Context) {
	listReq := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.BadRequest(c, "Invalid pagination parameters: "+err.Error())
		return
	}

	status, ok := h.parseStatusQuery(c)
	if !ok {
		return
	}
	createdAfter, ok := h.parseTimeQuery(c, "created_after")
	if !ok {
		return
	}
	createdBefore, ok := h.parseTimeQuery(c, "created_before")
	if !ok {
		return
	}

	records, total, err := h.compensations.List(c.Request.Context(), status, createdAfter, createdBefore, listReq.ToFilter())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, records, total, listReq.Page, listReq.PageSize)
}

func (h *CompensationHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid compensation ID format")
		return uuid.Nil, false
	}
	return id, true
}

// parseStatusQuery resolves the optional status filter. No status keeps the
// endpoint's historical meaning and lists PENDING records; ALL lists every
// status, which is how FAILED records waiting on an operator show up next
// to the rest of the ledger.
func (h *CompensationHandler) parseStatusQuery(c *gin.Context) (*compensation.Status, bool) {
	value := c.Query("status")
	if value == "" {
		status := compensation.StatusPending
		return &status, true
	}
	if strings.EqualFold(value, "ALL") {
		return nil, true
	}

	status := compensation.Status(strings.ToUpper(value))
	switch status {
	case compensation.StatusPending, compensation.StatusSuccess,
		compensation.StatusFailed, compensation.StatusCancelled:
		return &status, true
	}
	h.BadRequest(c, "Invalid status: expected PENDING, SUCCESS, FAILED, CANCELLED or ALL")
	return nil, false
}

func (h *CompensationHandler) parseTimeQuery(c *gin.Context, name string) (*time.Time, bool) {
	value := c.Query(name)
	if value == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		h.BadRequest(c, "Invalid "+name+": expected RFC3339 timestamp")
		return nil, false
	}
	return &parsed, true
}
