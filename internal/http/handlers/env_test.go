package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-repair-backend/internal/docstore"
	"github.com/tbourn/go-repair-backend/internal/docstore/docstoretest"
	"github.com/tbourn/go-repair-backend/internal/domain"
	"github.com/tbourn/go-repair-backend/internal/http/middleware"
	"github.com/tbourn/go-repair-backend/internal/repo"
	"github.com/tbourn/go-repair-backend/internal/services"
)

// env is a router over the real services and a temp SQLite store.
// Callers are identified with X-User-ID.
type env struct {
	t  *testing.T
	st *docstore.GormStore
	h  *Handlers
	r  *gin.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := docstoretest.OpenDB(t)
	st := docstore.NewGormStore(db, docstore.Options{Indexes: docstore.DefaultIndexes})

	names := services.NewNameResolver(st)
	chats := services.NewChatService(st, names)
	orders := services.NewOrderService(st, chats, names)
	invoices := services.NewInvoiceService(st)

	h := New(Deps{
		Chats:      chats,
		Names:      names,
		Orders:     orders,
		Invoices:   invoices,
		Payments:   services.NewPaymentService(invoices, orders, services.MockCheckout{BaseURL: "https://pay.test/session"}),
		Businesses: services.NewBusinessService(st),
		Requests:   services.NewRequestService(st, names),
		Users:      services.NewUserService(st),
		InvoiceStats: func(ctx context.Context, id string) (int64, *time.Time, error) {
			return repo.InvoicesStats(ctx, db, id)
		},
		SSEHeartbeat:   50 * time.Millisecond,
		WSWriteTimeout: time.Second,
	})

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Auth(""))
	mount(r.Group(""), h)
	return &env{t: t, st: st, h: h, r: r}
}

func mount(g *gin.RouterGroup, h *Handlers) {
	g.POST("/chats", h.CreateChat)
	g.GET("/chats/:id", h.GetChat)
	g.GET("/chats/:id/messages", h.ListMessages)
	g.POST("/chats/:id/messages", h.PostMessage)
	g.GET("/chats/:id/ws", h.ChatSocket)

	g.POST("/orders", h.CreateOrder)
	g.GET("/orders/:id", h.GetOrder)
	g.PATCH("/orders/:id", h.UpdateOrder)
	g.PATCH("/orders/:id/status", h.UpdateOrderStatus)
	g.DELETE("/orders/:id", h.DeleteOrder)

	g.GET("/invoices/:id", h.GetInvoice)
	g.POST("/invoices/:id/checkout", h.CheckoutInvoice)
	g.POST("/invoices/:id/pay", h.PayInvoice)

	g.POST("/businesses", h.CreateBusiness)
	g.GET("/businesses", h.SearchBusinesses)
	g.GET("/businesses/:id", h.GetBusiness)
	g.GET("/businesses/:id/name", h.BusinessName)
	g.POST("/businesses/:id/requests", h.CreateRequest)
	g.GET("/businesses/:id/requests", h.BusinessRequests)
	g.PATCH("/requests/:id/status", h.UpdateRequestStatus)

	g.GET("/users/:id/name", h.UserName)
	g.GET("/users/:id/info", h.UserInfo)

	g.GET("/me/chats", h.OwnerChats)
	g.GET("/me/chats/stream", h.StreamOwnerChats)
	g.GET("/me/inbox", h.Inbox)
	g.GET("/me/client-chats", h.ClientChats)
	g.GET("/me/orders", h.ListOrders)
	g.GET("/me/invoices", h.ListInvoices)
	g.GET("/me/invoices/stream", h.StreamInvoices)
	g.GET("/me/requests", h.OwnerRequests)
	g.PUT("/me/profile", h.PutProfile)
}

// do sends a request as uid (anonymous when empty). Extra headers come in
// name, value pairs.
func (e *env) do(method, path, uid string, body any, headers ...string) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, isRaw := body.(string); isRaw {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set(middleware.HeaderUserID, uid)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v body=%s", err, w.Body.String())
	}
	return v
}

func expectCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status=%d want %d body=%s", w.Code, status, w.Body.String())
	}
	if code == "" {
		return
	}
	if er := decodeBody[ErrorResponse](t, w); er.Code != code {
		t.Fatalf("code=%q want %q", er.Code, code)
	}
}

// seedBusiness stores a business owned by owner and returns it.
func (e *env) seedBusiness(owner, name string) *domain.Business {
	e.t.Helper()
	b, err := repo.CreateBusiness(context.Background(), e.st, domain.Business{
		Name:     name,
		OwnerID:  owner,
		Services: []string{"screen repair", "battery"},
	})
	if err != nil {
		e.t.Fatalf("seed business: %v", err)
	}
	return b
}

// seedOrder creates an order with a 200+300 parts and 100 labor quote.
func (e *env) seedOrder(b *domain.Business, client string) domain.OrderReceipt {
	e.t.Helper()
	w := e.do(http.MethodPost, "/orders", b.OwnerID, CreateOrderRequest{
		BusinessID: b.ID,
		ClientID:   client,
		ClientName: "Ana",
		DeviceType: "Laptop",
		LaborCost:  100,
		Parts:      []domain.Part{{Name: "RAM", Price: 200}, {Name: "SSD", Price: 300}},
	})
	if w.Code != http.StatusCreated {
		e.t.Fatalf("create order: %d %s", w.Code, w.Body.String())
	}
	return decodeBody[domain.OrderReceipt](e.t, w)
}
