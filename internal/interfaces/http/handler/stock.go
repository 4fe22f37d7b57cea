package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	stockapp "github.com/mallstock/backend/internal/application/stock"
	"github.com/mallstock/backend/internal/domain/shared"
	"github.com/mallstock/backend/internal/interfaces/http/dto"
	"github.com/mallstock/backend/internal/interfaces/http/middleware"
)

// StockHandler handles stock-related API endpoints
type StockHandler struct {
	BaseHandler
	stockService *stockapp.StockService
	batches      *stockapp.BatchCoordinator
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(stockService *stockapp.StockService, batches *stockapp.BatchCoordinator) *StockHandler {
	return &StockHandler{
		stockService: stockService,
		batches:      batches,
	}
}

// RegisterRoutes wires the stock endpoints into the API group
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	stock := rg.Group("/stock")
	{
		stock.GET("", h.Get)
		stock.GET("/low", h.ListLowStock)
		stock.GET("/changes", h.ListChanges)
		stock.GET("/changes/order/:order_no", h.ListChangesByOrder)
		stock.PUT("/threshold", h.SetThreshold)
		stock.POST("/deduct", h.Deduct)
		stock.POST("/rollback", h.Rollback)
		stock.POST("/recount", h.Recount)
		stock.POST("/batch-deduct", h.BatchDeduct)
		stock.POST("/batch-rollback", h.BatchRollback)
	}
}

// ===================== Request Types =====================

// MutationRequest is the shared request body for deduct and rollback
// @Description Request body for a single stock mutation tied to an order
type MutationRequest struct {
	ProductID int64  `json:"product_id" binding:"required,gt=0" example:"1001"`
	SkuID     int64  `json:"sku_id" binding:"gte=0" example:"2001"`
	Quantity  int64  `json:"quantity" binding:"required,gt=0" example:"3"`
	OrderNo   string `json:"order_no" binding:"required,max=64,orderno" example:"ORD-2026-0001"`
}

// RecountRequest represents a physical count correction
// @Description Request body for overwriting the recorded quantity with a counted one
type RecountRequest struct {
	ProductID      int64 `json:"product_id" binding:"required,gt=0" example:"1001"`
	SkuID          int64 `json:"sku_id" binding:"gte=0" example:"2001"`
	ActualQuantity int64 `json:"actual_quantity" binding:"gte=0" example:"95"`
}

// BatchHTTPItem is one product line inside a batch request
type BatchHTTPItem struct {
	ProductID int64 `json:"product_id" binding:"required,gt=0" example:"1001"`
	SkuID     int64 `json:"sku_id" binding:"gte=0" example:"2001"`
	Quantity  int64 `json:"quantity" binding:"required,gt=0" example:"2"`
}

// BatchDeductRequest represents an all-or-nothing multi-line deduction
// @Description Request body for deducting several product lines under one order
type BatchDeductRequest struct {
	Items   []BatchHTTPItem `json:"items" binding:"required,min=1,dive"`
	OrderNo string                `json:"order_no" binding:"required,max=64,orderno" example:"ORD-2026-0001"`
}

// BatchRollbackRequest represents a multi-line rollback under one order
// @Description Request body for restoring several product lines under one order
type BatchRollbackRequest struct {
	Items   []BatchHTTPItem `json:"items" binding:"required,min=1,dive"`
	OrderNo string      `json:"order_no" binding:"required,max=64,orderno" example:"ORD-2026-0001"`
}

// SetThresholdRequest represents a low-stock threshold update
// @Description Request body for setting the low-stock warning threshold
type SetThresholdRequest struct {
	ProductID int64 `json:"product_id" binding:"required,gt=0" example:"1001"`
	SkuID     int64 `json:"sku_id" binding:"gte=0" example:"2001"`
	Threshold int64 `json:"threshold" binding:"gte=0" example:"10"`
}

// ===================== Mutation Handlers =====================

// Deduct godoc
// @ID           deductStock
// @Summary      Deduct stock
// @Description  Deducts a quantity from a product/SKU stock record for an order
// @Tags         stock
// @Accept       json
// @Produce      json
// @Param        request body MutationRequest true "Deduction request"
// @Success      200 {object} APIResponse[stockapp.StockOperationResult]
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /stock/deduct [post]
func (h *StockHandler) Deduct(c *gin.Context) {
	var req MutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.stockService.DeductStock(c.Request.Context(), stockapp.DeductStockRequest{
		ProductID:  req.ProductID,
		SkuID:      req.SkuID,
		Quantity:   req.Quantity,
		OrderNo:    req.OrderNo,
		OperatorID: getOperatorID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// Rollback godoc
// @ID           rollbackStock
// @Summary      Roll back a deduction
// @Description  Restores previously deducted stock for a cancelled or refunded order
// @Tags         stock
// @Accept       json
// @Produce      json
// @Param        request body MutationRequest true "Rollback request"
// @Success      200 {object} APIResponse[stockapp.StockOperationResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /stock/rollback [post]
func (h *StockHandler) Rollback(c *gin.Context) {
	var req MutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.stockService.RollbackStock(c.Request.Context(), stockapp.RollbackStockRequest{
		ProductID:  req.ProductID,
		SkuID:      req.SkuID,
		Quantity:   req.Quantity,
		OrderNo:    req.OrderNo,
		OperatorID: getOperatorID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// Recount godoc
// @ID           recountStock
// @Summary      Recount stock
// @Description  Overwrites the recorded quantity with the result of a physical count
// @Tags         stock
// @Accept       json
// @Produce      json
// @Param        request body RecountRequest true "Recount request"
// @Success      200 {object} APIResponse[stockapp.StockOperationResult]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /stock/recount [post]
func (h *StockHandler) Recount(c *gin.Context) {
	var req RecountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.stockService.RecountStock(c.Request.Context(), stockapp.RecountStockRequest{
		ProductID:      req.ProductID,
		SkuID:          req.SkuID,
		ActualQuantity: req.ActualQuantity,
		OperatorID:     getOperatorID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// BatchDeduct godoc
// @ID           batchDeductStock
// @Summary      Batch deduct stock
// @Description  Deducts several product lines under one order. The batch is all-or-nothing: a failing line rolls back every line already deducted.
// @Tags         stock
// @Accept       json
// @Produce      json
// @Param        request body BatchDeductRequest true "Batch deduction request"
// @Success      200 {object} APIResponse[stockapp.BatchDeductResult]
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} APIResponse[stockapp.BatchDeductResult]
// @Security     BearerAuth
// @Router       /stock/batch-deduct [post]
func (h *StockHandler) BatchDeduct(c *gin.Context) {
	var req BatchDeductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	items := make([]stockapp.BatchItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = stockapp.BatchItem{
			ProductID: item.ProductID,
			SkuID:     item.SkuID,
			Quantity:  item.Quantity,
		}
	}

	result, err := h.batches.BatchDeduct(c.Request.Context(), stockapp.BatchDeductRequest{
		Items:      items,
		OrderNo:    req.OrderNo,
		OperatorID: getOperatorID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// BatchRollback godoc
// @ID           batchRollbackStock
// @Summary      Batch roll back stock
// @Description  Restores several product lines under one order. Lines are independent: a failing line is reported in place while the rest proceed.
// @Tags         stock
// @Accept       json
// @Produce      json
// @Param        request body BatchRollbackRequest true "Batch rollback request"
// @Success      200 {object} APIResponse[stockapp.BatchRollbackResult]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /stock/batch-rollback [post]
func (h *StockHandler) BatchRollback(c *gin.Context) {
	var req BatchRollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	items := make([]stockapp.BatchItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = stockapp.BatchItem{
			ProductID: item.ProductID,
			SkuID:     item.SkuID,
			Quantity:  item.Quantity,
		}
	}

	result, err := h.batches.BatchRollback(c.Request.Context(), stockapp.BatchRollbackRequest{
		Items:      items,
		OrderNo:    req.OrderNo,
		OperatorID: getOperatorID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// SetThreshold godoc
// @ID           setStockThreshold
// @Summary      Set low-stock threshold
// @Description  Sets the warning threshold below which a stock record is reported as low
// @Tags         stock
// @Accept       json
// @Produce      json
// @Param        request body SetThresholdRequest true "Threshold request"
// @Success      200 {object} SuccessResponse
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /stock/threshold [put]
func (h *StockHandler) SetThreshold(c *gin.Context) {
	var req SetThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	if err := h.stockService.SetWarnThreshold(c.Request.Context(), req.ProductID, req.SkuID, req.Threshold); err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, nil)
}

// ===================== Query Handlers =====================

// Get godoc
// @ID           getStock
// @Summary      Get a stock record
// @Description  Retrieves the stock record for a product/SKU pair. sku_id 0 addresses product-level stock.
// @Tags         stock
// @Produce      json
// @Param        product_id query int true "Product ID"
// @Param        sku_id query int false "SKU ID (0 for product level)"
// @Success      200 {object} APIResponse[stockapp.StockRecordDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /stock [get]
func (h *StockHandler) Get(c *gin.Context) {
	productID, skuID, ok := h.parseProductSKU(c)
	if !ok {
		return
	}

	record, err := h.stockService.GetStock(c.Request.Context(), productID, skuID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, record)
}

// ListLowStock godoc
// @ID           listLowStock
// @Summary      List low-stock records
// @Description  Retrieves a paginated list of stock records at or below their warning threshold
// @Tags         stock
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]stockapp.StockRecordDTO]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /stock/low [get]
func (h *StockHandler) ListLowStock(c *gin.Context) {
	filter, ok := h.parseFilter(c)
	if !ok {
		return
	}

	records, total, err := h.stockService.ListLowStock(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, records, total, filter.Page, filter.PageSize)
}

// ListChanges godoc
// @ID           listStockChanges
// @Summary      List stock changes
// @Description  Retrieves the audit trail of stock changes for a product/SKU pair
// @Tags         stock
// @Produce      json
// @Param        product_id query int true "Product ID"
// @Param        sku_id query int false "SKU ID (0 for product level)"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]stockapp.StockChangeLogDTO]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /stock/changes [get]
func (h *StockHandler) ListChanges(c *gin.Context) {
	productID, skuID, ok := h.parseProductSKU(c)
	if !ok {
		return
	}
	filter, ok := h.parseFilter(c)
	if !ok {
		return
	}

	entries, total, err := h.stockService.ListChanges(c.Request.Context(), productID, skuID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, entries, total, filter.Page, filter.PageSize)
}

// ListChangesByOrder godoc
// @ID           listStockChangesByOrder
// @Summary      List stock changes for an order
// @Description  Retrieves every stock change recorded under an order number, oldest first
// @Tags         stock
// @Produce      json
// @Param        order_no path string true "Order number"
// @Success      200 {object} APIResponse[[]stockapp.StockChangeLogDTO]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /stock/changes/order/{order_no} [get]
func (h *StockHandler) ListChangesByOrder(c *gin.Context) {
	orderNo := c.Param("order_no")
	if orderNo == "" {
		h.BadRequest(c, "order_no is required")
		return
	}

	entries, err := h.stockService.ListChangesByOrder(c.Request.Context(), orderNo)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, entries)
}

// ===================== Helpers =====================

func (h *StockHandler) parseProductSKU(c *gin.Context) (int64, int64, bool) {
	productIDStr := c.Query("product_id")
	if productIDStr == "" {
		h.BadRequest(c, "product_id is required")
		return 0, 0, false
	}

	productID, err := strconv.ParseInt(productIDStr, 10, 64)
	if err != nil || productID <= 0 {
		h.BadRequest(c, "Invalid product_id")
		return 0, 0, false
	}

	skuID := int64(0)
	if skuIDStr := c.Query("sku_id"); skuIDStr != "" {
		skuID, err = strconv.ParseInt(skuIDStr, 10, 64)
		if err != nil || skuID < 0 {
			h.BadRequest(c, "Invalid sku_id")
			return 0, 0, false
		}
	}

	return productID, skuID, true
}

func (h *StockHandler) parseFilter(c *gin.Context) (shared.Filter, bool) {
	listReq := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.BadRequest(c, "Invalid pagination parameters: "+err.Error())
		return shared.Filter{}, false
	}
	return listReq.ToFilter(), true
}
