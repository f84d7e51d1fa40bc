// Package httpapi wires the HTTP transport (Gin) to the marketplace
// services, middleware and route handlers. It owns the cross-cutting
// concerns: tracing, correlation ids, redacted logging, panic recovery,
// metrics, identity, idempotency, rate limiting, CORS and security headers.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-repair-backend/internal/config"
	"github.com/tbourn/go-repair-backend/internal/docstore"
	"github.com/tbourn/go-repair-backend/internal/http/handlers"
	"github.com/tbourn/go-repair-backend/internal/http/middleware"
	"github.com/tbourn/go-repair-backend/internal/repo"
	"github.com/tbourn/go-repair-backend/internal/services"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// NewHandlers builds the services over st and the handlers over them.
// db backs the list statistics used for ETags.
func NewHandlers(db *gorm.DB, st docstore.Store, cfg config.Config) *handlers.Handlers {
	names := services.NewNameResolver(st)
	chats := services.NewChatService(st, names)
	orders := services.NewOrderService(st, chats, names)
	invoices := services.NewInvoiceService(st)
	payments := services.NewPaymentService(invoices, orders, services.MockCheckout{
		Delay:   cfg.Payment.CheckoutDelay,
		BaseURL: cfg.Payment.CheckoutBaseURL,
	})

	var stats handlers.StatsFunc
	if db != nil {
		stats = func(ctx context.Context, clientID string) (int64, *time.Time, error) {
			return repo.InvoicesStats(ctx, db, clientID)
		}
	}

	return handlers.New(handlers.Deps{
		Chats:          chats,
		Names:          names,
		Orders:         orders,
		Invoices:       invoices,
		Payments:       payments,
		Businesses:     services.NewBusinessService(st),
		Requests:       services.NewRequestService(st, names),
		Users:          services.NewUserService(st),
		InvoiceStats:   stats,
		SSEHeartbeat:   cfg.Realtime.SSEHeartbeat,
		WSWriteTimeout: cfg.Realtime.WSWriteTimeout,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
}

// RegisterRoutes attaches all middleware and endpoints to r and mounts the
// API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Auth: resolve the caller for everything below
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, st docstore.Store, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.Auth(cfg.JWTSecret))

	idem := newIdempotencyStore(db)
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idem))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	useCORS(r, cfg.CORS.AllowedOrigins)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	h := NewHandlers(db, st, cfg)
	replaySafe := middleware.Idempotent(idem, cfg.IdempotencyTTL)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Chats
		api.POST("/chats", h.CreateChat)
		api.GET("/chats/:id", h.GetChat)
		api.GET("/chats/:id/messages", h.ListMessages)
		api.POST("/chats/:id/messages", h.PostMessage)
		api.GET("/chats/:id/ws", h.ChatSocket)

		// Orders
		api.POST("/orders", replaySafe, h.CreateOrder)
		api.GET("/orders/:id", h.GetOrder)
		api.PATCH("/orders/:id", h.UpdateOrder)
		api.PATCH("/orders/:id/status", h.UpdateOrderStatus)
		api.DELETE("/orders/:id", h.DeleteOrder)

		// Invoices
		api.GET("/invoices/:id", h.GetInvoice)
		api.POST("/invoices/:id/checkout", h.CheckoutInvoice)
		api.POST("/invoices/:id/pay", replaySafe, h.PayInvoice)

		// Businesses and service requests
		api.POST("/businesses", h.CreateBusiness)
		api.GET("/businesses", h.SearchBusinesses)
		api.GET("/businesses/:id", h.GetBusiness)
		api.GET("/businesses/:id/name", h.BusinessName)
		api.POST("/businesses/:id/requests", replaySafe, h.CreateRequest)
		api.GET("/businesses/:id/requests", h.BusinessRequests)
		api.PATCH("/requests/:id/status", h.UpdateRequestStatus)

		// Users
		api.GET("/users/:id/name", h.UserName)
		api.GET("/users/:id/info", h.UserInfo)

		// Caller-scoped views
		me := api.Group("/me", middleware.RequireUser())
		me.GET("/chats", h.OwnerChats)
		me.GET("/chats/stream", h.StreamOwnerChats)
		me.GET("/inbox", h.Inbox)
		me.GET("/client-chats", h.ClientChats)
		me.GET("/orders", h.ListOrders)
		me.GET("/invoices", h.ListInvoices)
		me.GET("/invoices/stream", h.StreamInvoices)
		me.GET("/requests", h.OwnerRequests)
		me.PUT("/profile", h.PutProfile)
	}
}

func useCORS(r *gin.Engine, origins []string) {
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderUserID, middleware.HeaderIdempotencyKey,
		"If-Match", "If-None-Match",
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed}
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	if len(origins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
		return
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	})
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     methods,
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    exposeHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
}

// limitBody caps the request body at maxBytes; larger bodies fail to bind.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
