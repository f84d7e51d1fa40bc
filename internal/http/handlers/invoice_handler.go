package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-repair-backend/internal/domain"
	"github.com/tbourn/go-repair-backend/internal/utils"
)

// InvoicesResponse is a page of the caller's invoices, newest first.
type InvoicesResponse struct {
	Invoices   []domain.Invoice `json:"invoices"`
	Pagination Pagination       `json:"pagination"`
}

// CheckoutResponse carries the payment session URL of an invoice.
type CheckoutResponse struct {
	InvoiceID   string `json:"invoiceId" example:"inv_1"`
	CheckoutURL string `json:"checkoutUrl" example:"https://pay.example.com/session"`
}

// clientInvoice loads the invoice and checks that uid is its client.
func (h *Handlers) clientInvoice(c *gin.Context, uid string) (*domain.Invoice, bool) {
	inv, found := h.Invoices.GetInvoice(c.Request.Context(), c.Param("id"))
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "invoice not found")
		return nil, false
	}
	if inv.ClientID != uid {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "not the client of this invoice")
		return nil, false
	}
	return inv, true
}

// ListInvoices godoc
// @ID          listInvoices
// @Summary     List the caller's invoices
// @Description Newest first. Supports a weak ETag via If-None-Match and may return 304.
// @Tags        Me
// @Produce     json
// @Security    BearerAuth
// @Param       page           query   int     false  "Page number (1-based)"  minimum(1)
// @Param       page_size      query   int     false  "Items per page"         minimum(1) maximum(100)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.InvoicesResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  "Not Modified"
// @Router      /me/invoices [get]
func (h *Handlers) ListInvoices(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	if h.InvoiceStats != nil {
		count, maxTS, err := h.InvoiceStats(ctx, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"invoices:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page := utils.Clamp(utils.AtoiDefault(c.Query("page"), 1), 1, 1<<20)
	size := utils.Clamp(utils.AtoiDefault(c.Query("page_size"), 20), 1, 100)
	items, p := utils.Paginate(h.Invoices.FetchInvoicesOnce(ctx, uid), page, size)
	ok(c, http.StatusOK, InvoicesResponse{Invoices: items, Pagination: toPagination(p)})
}

// GetInvoice godoc
// @ID          getInvoice
// @Summary     Get an invoice
// @Tags        Invoices
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Invoice ID"
// @Success     200  {object}  domain.Invoice
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /invoices/{id} [get]
func (h *Handlers) GetInvoice(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	if inv, found := h.clientInvoice(c, uid); found {
		ok(c, http.StatusOK, inv)
	}
}

// CheckoutInvoice godoc
// @ID          checkoutInvoice
// @Summary     Open a checkout session
// @Description Returns the invoice's payment URL, creating the session on first use.
// @Tags        Invoices
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Invoice ID"
// @Success     200  {object}  handlers.CheckoutResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse  "payment_failed"
// @Router      /invoices/{id}/checkout [post]
func (h *Handlers) CheckoutInvoice(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	inv, found := h.clientInvoice(c, uid)
	if !found {
		return
	}
	url, err := h.Payments.Checkout(c.Request.Context(), inv.InvoiceID)
	if err != nil {
		failService(c, err, ErrCodePaymentFailed)
		return
	}
	ok(c, http.StatusOK, CheckoutResponse{InvoiceID: inv.InvoiceID, CheckoutURL: url})
}

// PayInvoice godoc
// @ID          payInvoice
// @Summary     Pay an invoice
// @Description Completes the simulated payment and marks the invoice paid. Paying a paid invoice returns it unchanged. Supports Idempotency-Key.
// @Tags        Invoices
// @Produce     json
// @Security    BearerAuth
// @Param       id               path      string  true   "Invoice ID"
// @Param       Idempotency-Key  header    string  false  "Idempotency key"
// @Success     200              {object}  domain.Invoice
// @Failure     403              {object}  handlers.ErrorResponse
// @Failure     404              {object}  handlers.ErrorResponse
// @Failure     500              {object}  handlers.ErrorResponse  "payment_failed"
// @Router      /invoices/{id}/pay [post]
func (h *Handlers) PayInvoice(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	inv, found := h.clientInvoice(c, uid)
	if !found {
		return
	}
	paid, err := h.Payments.Pay(c.Request.Context(), inv.InvoiceID)
	if err != nil {
		failService(c, err, ErrCodePaymentFailed)
		return
	}
	ok(c, http.StatusOK, paid)
}
