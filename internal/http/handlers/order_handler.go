package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-repair-backend/internal/domain"
	"github.com/tbourn/go-repair-backend/internal/utils"
)

//
// DTOs
//

// CreateOrderRequest is the vendor's repair quote. Totals are computed by
// the server; ScheduledAt is epoch milliseconds, 0 for none.
type CreateOrderRequest struct {
	BusinessID      string        `json:"businessId" binding:"required" example:"b_42"`
	ClientID        string        `json:"clientUid" binding:"required" example:"user123"`
	ClientName      string        `json:"clientName" example:"Ana"`
	ClientEmail     string        `json:"clientEmail" example:"ana@example.com"`
	DeviceType      string        `json:"deviceType" example:"laptop"`
	ProblemReported string        `json:"problemReported" example:"does not boot"`
	Diagnosis       string        `json:"diagnosis" example:"failed SSD"`
	LaborCost       int64         `json:"laborCost" example:"40"`
	Parts           []domain.Part `json:"parts"`
	ScheduledAt     int64         `json:"scheduledAt" example:"1767225600000"`
}

// UpdateOrderRequest is a partial order edit. Omitted fields stay as they
// are; totals are recomputed.
type UpdateOrderRequest = domain.OrderUpdate

// UpdateStatusRequest moves an order or a service request to a new status.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required" example:"pending_payment"`
}

// OrdersResponse is a page of repair orders.
type OrdersResponse struct {
	Orders     []domain.RepairOrder `json:"orders"`
	Pagination Pagination           `json:"pagination"`
}

// ifMatchVersion parses an If-Match header carrying an order version,
// quoted or not. Absent means 0, which disables the check.
func ifMatchVersion(c *gin.Context) (int64, bool) {
	raw := strings.TrimSpace(c.GetHeader("If-Match"))
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	if raw == "" || raw == "*" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "If-Match must be an order version")
		return 0, false
	}
	return v, true
}

func setVersionETag(c *gin.Context, o *domain.RepairOrder) {
	c.Header("ETag", `"`+strconv.FormatInt(o.Version, 10)+`"`)
}

// ownedOrder loads the order and checks that uid owns it. Clients may read
// when allowClient is set.
func (h *Handlers) ownedOrder(c *gin.Context, uid string, allowClient bool) (*domain.RepairOrder, bool) {
	o, found := h.Orders.GetOrder(c.Request.Context(), c.Param("id"))
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "order not found")
		return nil, false
	}
	if o.OwnerID != uid && !(allowClient && o.ClientID == uid) {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "not allowed to access this order")
		return nil, false
	}
	return o, true
}

//
// Handlers
//

// CreateOrder godoc
// @ID          createOrder
// @Summary     Create a repair order and its invoice
// @Description Stores a pending order with computed totals, derives its invoice and notifies the client in chat. Supports Idempotency-Key.
// @Tags        Orders
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header    string                       false  "Idempotency key"
// @Param       body             body      handlers.CreateOrderRequest  true   "Order draft"
// @Success     201              {object}  domain.OrderReceipt
// @Failure     400              {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403              {object}  handlers.ErrorResponse  "Caller does not own the business"
// @Failure     404              {object}  handlers.ErrorResponse  "Business not found"
// @Failure     500              {object}  handlers.ErrorResponse  "Order or invoice not stored"
// @Router      /orders [post]
func (h *Handlers) CreateOrder(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid body")
		return
	}
	if err := domain.ValidateAmounts(req.Parts, req.LaborCost); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()

	b, found := h.Businesses.Get(ctx, req.BusinessID)
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "business not found")
		return
	}
	if b.OwnerID != uid {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "only the business owner may create orders")
		return
	}

	draft := domain.OrderDraft{
		BusinessID:      b.ID,
		OwnerID:         uid,
		ClientID:        req.ClientID,
		ClientName:      req.ClientName,
		ClientEmail:     req.ClientEmail,
		DeviceType:      req.DeviceType,
		ProblemReported: req.ProblemReported,
		Diagnosis:       req.Diagnosis,
		LaborCost:       req.LaborCost,
		Parts:           req.Parts,
	}
	receipt, created := h.Orders.CreateOrderAndInvoice(ctx, draft, req.ScheduledAt)
	if !created {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "order could not be created")
		return
	}
	ok(c, http.StatusCreated, receipt)
}

// GetOrder godoc
// @ID          getOrder
// @Summary     Get a repair order
// @Description Readable by the owning vendor and the client. The ETag carries the order version for If-Match.
// @Tags        Orders
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Order ID"
// @Success     200  {object}  domain.RepairOrder
// @Header      200  {string}  ETag    "Order version"
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /orders/{id} [get]
func (h *Handlers) GetOrder(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	o, found := h.ownedOrder(c, uid, true)
	if !found {
		return
	}
	setVersionETag(c, o)
	ok(c, http.StatusOK, o)
}

// ListOrders godoc
// @ID          listOrders
// @Summary     List the caller's repair orders
// @Tags        Me
// @Produce     json
// @Security    BearerAuth
// @Param       page       query     int  false  "Page number (1-based)"  minimum(1)
// @Param       page_size  query     int  false  "Items per page"         minimum(1) maximum(100)
// @Success     200        {object}  handlers.OrdersResponse
// @Router      /me/orders [get]
func (h *Handlers) ListOrders(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	page := utils.Clamp(utils.AtoiDefault(c.Query("page"), 1), 1, 1<<20)
	size := utils.Clamp(utils.AtoiDefault(c.Query("page_size"), 20), 1, 100)

	items, p := utils.Paginate(h.Orders.ListOrdersForOwner(c.Request.Context(), uid), page, size)
	ok(c, http.StatusOK, OrdersResponse{Orders: items, Pagination: toPagination(p)})
}

// UpdateOrder godoc
// @ID          updateOrder
// @Summary     Edit a repair order
// @Description Applies the given fields and recomputes partsTotal and totalCost. Send If-Match with the version from GET to reject concurrent edits.
// @Tags        Orders
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id        path      string                       true   "Order ID"
// @Param       If-Match  header    string                       false  "Expected order version"
// @Param       body      body      handlers.UpdateOrderRequest  true   "Fields to change"
// @Success     200       {object}  domain.RepairOrder
// @Failure     400       {object}  handlers.ErrorResponse
// @Failure     403       {object}  handlers.ErrorResponse
// @Failure     404       {object}  handlers.ErrorResponse
// @Failure     409       {object}  handlers.ErrorResponse  "version_conflict"
// @Router      /orders/{id} [patch]
func (h *Handlers) UpdateOrder(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid body")
		return
	}
	version, valid := ifMatchVersion(c)
	if !valid {
		return
	}
	o, found := h.ownedOrder(c, uid, false)
	if !found {
		return
	}
	updated, err := h.Orders.UpdateOrderWithErr(c.Request.Context(), o.OrderID, req, version)
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed)
		return
	}
	setVersionETag(c, updated)
	ok(c, http.StatusOK, updated)
}

// UpdateOrderStatus godoc
// @ID          updateOrderStatus
// @Summary     Move a repair order to a new status
// @Description pending_approval → pending_payment|cancelled, pending_payment → paid|cancelled, paid → completed.
// @Tags        Orders
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id        path      string                        true   "Order ID"
// @Param       If-Match  header    string                        false  "Expected order version"
// @Param       body      body      handlers.UpdateStatusRequest  true   "New status"
// @Success     200       {object}  domain.RepairOrder
// @Failure     409       {object}  handlers.ErrorResponse  "invalid_status or version_conflict"
// @Router      /orders/{id}/status [patch]
func (h *Handlers) UpdateOrderStatus(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	version, valid := ifMatchVersion(c)
	if !valid {
		return
	}
	o, found := h.ownedOrder(c, uid, false)
	if !found {
		return
	}
	updated, err := h.Orders.SetOrderStatus(c.Request.Context(), o.OrderID, strings.TrimSpace(req.Status), version)
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed)
		return
	}
	setVersionETag(c, updated)
	ok(c, http.StatusOK, updated)
}

// DeleteOrder godoc
// @ID          deleteOrder
// @Summary     Delete a repair order
// @Description The invoice derived from the order is kept.
// @Tags        Orders
// @Security    BearerAuth
// @Param       id   path  string  true  "Order ID"
// @Success     204  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /orders/{id} [delete]
func (h *Handlers) DeleteOrder(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	o, found := h.ownedOrder(c, uid, false)
	if !found {
		return
	}
	if !h.Orders.DeleteOrder(c.Request.Context(), o.OrderID) {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "order could not be deleted")
		return
	}
	noContent(c)
}

func toPagination(p utils.Page) Pagination {
	return Pagination{
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      p.Total,
		TotalPages: p.TotalPages,
		HasNext:    p.HasNext(),
	}
}
