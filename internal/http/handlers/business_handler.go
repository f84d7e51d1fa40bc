package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-repair-backend/internal/domain"
	"github.com/tbourn/go-repair-backend/internal/utils"
)

//
// DTOs
//

// CreateBusinessRequest lists a new repair shop owned by the caller.
type CreateBusinessRequest struct {
	Name          string   `json:"name" binding:"required" example:"FixIt Lab"`
	Description   string   `json:"description" example:"Laptop and phone repair"`
	Address       string   `json:"address" example:"Calle Mayor 1"`
	Phone         string   `json:"phone" example:"+34 600 000 000"`
	Services      []string `json:"services" example:"screen,battery"`
	PriceStarting int64    `json:"priceStarting" example:"25"`
}

// BusinessesResponse is a page of businesses.
type BusinessesResponse struct {
	Businesses []domain.Business `json:"businesses"`
	Pagination Pagination        `json:"pagination"`
}

// CreateServiceRequest asks a business for a repair. Name and email default
// to the caller's profile.
type CreateServiceRequest struct {
	Description   string `json:"description" binding:"required" example:"Cracked screen"`
	PreferredDate string `json:"preferredDate" example:"2026-03-01"`
	ClientName    string `json:"clientName" example:"Ana"`
	ClientEmail   string `json:"clientEmail" example:"ana@example.com"`
}

// RequestsResponse lists service requests newest first.
type RequestsResponse struct {
	Requests []domain.ServiceRequest `json:"requests"`
}

// NameResponse is a resolved display name.
type NameResponse struct {
	ID   string `json:"id" example:"user123"`
	Name string `json:"name" example:"Ana"`
}

// ProfileRequest sets the caller's display name and email.
type ProfileRequest struct {
	Name  string `json:"name" binding:"required" example:"Ana"`
	Email string `json:"email" example:"ana@example.com"`
}

//
// Businesses
//

// CreateBusiness godoc
// @ID          createBusiness
// @Summary     List a business
// @Tags        Businesses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateBusinessRequest  true  "Business"
// @Success     201   {object}  domain.Business
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /businesses [post]
func (h *Handlers) CreateBusiness(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	var req CreateBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}
	if req.PriceStarting < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "priceStarting must not be negative")
		return
	}
	b, err := h.Businesses.Create(c.Request.Context(), uid, domain.Business{
		Name:          req.Name,
		Description:   req.Description,
		Address:       req.Address,
		Phone:         req.Phone,
		Services:      req.Services,
		PriceStarting: req.PriceStarting,
	})
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, b)
}

// SearchBusinesses godoc
// @ID          searchBusinesses
// @Summary     Search businesses
// @Description Ranks businesses by name, description and services. Without q, lists all by name.
// @Tags        Businesses
// @Produce     json
// @Param       q          query     string  false  "Search text"  example(screen repair)
// @Param       page       query     int     false  "Page number (1-based)"  minimum(1)
// @Param       page_size  query     int     false  "Items per page"         minimum(1) maximum(100)
// @Success     200        {object}  handlers.BusinessesResponse
// @Router      /businesses [get]
func (h *Handlers) SearchBusinesses(c *gin.Context) {
	page := utils.Clamp(utils.AtoiDefault(c.Query("page"), 1), 1, 1<<20)
	size := utils.Clamp(utils.AtoiDefault(c.Query("page_size"), 20), 1, 100)
	items, p := utils.Paginate(h.Businesses.Search(c.Request.Context(), c.Query("q")), page, size)
	ok(c, http.StatusOK, BusinessesResponse{Businesses: items, Pagination: toPagination(p)})
}

// GetBusiness godoc
// @ID          getBusiness
// @Summary     Get a business
// @Tags        Businesses
// @Produce     json
// @Param       id   path      string  true  "Business ID"
// @Success     200  {object}  domain.Business
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /businesses/{id} [get]
func (h *Handlers) GetBusiness(c *gin.Context) {
	b, found := h.Businesses.Get(c.Request.Context(), c.Param("id"))
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "business not found")
		return
	}
	ok(c, http.StatusOK, b)
}

// BusinessName godoc
// @ID          businessName
// @Summary     Resolve a business display name
// @Description Falls back to the owner's name when the business has none.
// @Tags        Businesses
// @Produce     json
// @Param       id   path      string  true  "Business ID"
// @Success     200  {object}  handlers.NameResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /businesses/{id}/name [get]
func (h *Handlers) BusinessName(c *gin.Context) {
	id := c.Param("id")
	name, found := h.Names.ResolveBusinessName(c.Request.Context(), id)
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no name for business")
		return
	}
	ok(c, http.StatusOK, NameResponse{ID: id, Name: name})
}

//
// Service requests
//

// CreateRequest godoc
// @ID          createRequest
// @Summary     Request a repair from a business
// @Description Supports Idempotency-Key.
// @Tags        Requests
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id               path      string                         true   "Business ID"
// @Param       Idempotency-Key  header    string                         false  "Idempotency key"
// @Param       body             body      handlers.CreateServiceRequest  true   "Request"
// @Success     201              {object}  domain.ServiceRequest
// @Failure     400              {object}  handlers.ErrorResponse
// @Failure     404              {object}  handlers.ErrorResponse
// @Router      /businesses/{id}/requests [post]
func (h *Handlers) CreateRequest(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	var req CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Description) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "description required")
		return
	}
	r, err := h.Requests.Create(c.Request.Context(), domain.ServiceRequest{
		BusinessID:    c.Param("id"),
		ClientID:      uid,
		ClientName:    strings.TrimSpace(req.ClientName),
		ClientEmail:   strings.TrimSpace(req.ClientEmail),
		Description:   strings.TrimSpace(req.Description),
		PreferredDate: req.PreferredDate,
	})
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, r)
}

// BusinessRequests godoc
// @ID          businessRequests
// @Summary     List a business's service requests
// @Description Only the business owner may list them.
// @Tags        Requests
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Business ID"
// @Success     200  {object}  handlers.RequestsResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /businesses/{id}/requests [get]
func (h *Handlers) BusinessRequests(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	ctx := c.Request.Context()
	b, found := h.Businesses.Get(ctx, c.Param("id"))
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "business not found")
		return
	}
	if b.OwnerID != uid {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "only the business owner may list requests")
		return
	}
	ok(c, http.StatusOK, RequestsResponse{Requests: h.Requests.ListForBusiness(ctx, b.ID)})
}

// OwnerRequests godoc
// @ID          ownerRequests
// @Summary     List requests addressed to the caller's businesses
// @Tags        Me
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.RequestsResponse
// @Router      /me/requests [get]
func (h *Handlers) OwnerRequests(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	ok(c, http.StatusOK, RequestsResponse{Requests: h.Requests.ListForOwner(c.Request.Context(), uid)})
}

// UpdateRequestStatus godoc
// @ID          updateRequestStatus
// @Summary     Accept, reject or complete a service request
// @Description pending → accepted|rejected, accepted → completed. Only the business owner may change it.
// @Tags        Requests
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                        true  "Request ID"
// @Param       body  body      handlers.UpdateStatusRequest  true  "New status"
// @Success     200   {object}  domain.ServiceRequest
// @Failure     403   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse
// @Failure     409   {object}  handlers.ErrorResponse  "invalid_status"
// @Router      /requests/{id}/status [patch]
func (h *Handlers) UpdateRequestStatus(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	ctx := c.Request.Context()
	sr, found := h.Requests.Get(ctx, c.Param("id"))
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "service request not found")
		return
	}
	if b, found := h.Businesses.Get(ctx, sr.BusinessID); !found || b.OwnerID != uid {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "only the business owner may change this request")
		return
	}
	updated, err := h.Requests.UpdateStatus(ctx, sr.ID, strings.TrimSpace(req.Status))
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, updated)
}

//
// Users
//

// UserName godoc
// @ID          userName
// @Summary     Resolve a user's display name
// @Tags        Users
// @Produce     json
// @Param       id   path      string  true  "User ID"
// @Success     200  {object}  handlers.NameResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /users/{id}/name [get]
func (h *Handlers) UserName(c *gin.Context) {
	id := c.Param("id")
	name, found := h.Names.ResolveDisplayName(c.Request.Context(), id)
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no name for user")
		return
	}
	ok(c, http.StatusOK, NameResponse{ID: id, Name: name})
}

// UserInfo godoc
// @ID          userInfo
// @Summary     Resolve a user's name and email
// @Description Used to prefill the client fields of the order form.
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "User ID"
// @Success     200  {object}  domain.UserInfo
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /users/{id}/info [get]
func (h *Handlers) UserInfo(c *gin.Context) {
	if _, authed := callerID(c); !authed {
		return
	}
	info, found := h.Names.ResolveUserInfo(c.Request.Context(), c.Param("id"))
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	}
	ok(c, http.StatusOK, info)
}

// PutProfile godoc
// @ID          putProfile
// @Summary     Set the caller's name and email
// @Tags        Me
// @Accept      json
// @Security    BearerAuth
// @Param       body  body  handlers.ProfileRequest  true  "Profile"
// @Success     204   "No Content"
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /me/profile [put]
func (h *Handlers) PutProfile(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}
	if err := h.Users.UpsertProfile(c.Request.Context(), uid, req.Name, req.Email); err != nil {
		failService(c, err, ErrCodeUpdateFailed)
		return
	}
	noContent(c)
}
