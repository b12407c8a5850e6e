package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"shop-service/internal/gateway"
	"shop-service/internal/service"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	checkout      *service.CheckoutService
	cart          *service.CartService
	reconciler    *service.Reconciler
	catalog       *store.Store
	webhookSecret string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	checkout *service.CheckoutService,
	cart *service.CartService,
	reconciler *service.Reconciler,
	catalog *store.Store,
	webhookSecret string,
) *Handler {
	return &Handler{
		checkout:      checkout,
		cart:          cart,
		reconciler:    reconciler,
		catalog:       catalog,
		webhookSecret: webhookSecret,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)

		v1.GET("/carts/:id", h.getCart)
		v1.DELETE("/carts/:id", h.clearCart)
		v1.POST("/carts/:id/items", h.addCartItem)
		v1.PUT("/carts/:id/items/:variantId", h.setCartItemQuantity)
		v1.DELETE("/carts/:id/items/:variantId", h.removeCartItem)

		v1.POST("/checkout", h.createCheckout)
		v1.POST("/webhook", h.handleWebhook)

		v1.GET("/orders/:id", h.getOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listProducts returns all active catalog products
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.GetProducts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list products"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// getProduct returns a product with its variants
func (h *Handler) getProduct(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	product, err := h.catalog.GetProductByID(ctx, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	variants, err := h.catalog.GetVariantsByProductID(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load variants"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product":  product,
		"variants": variants,
	})
}

// getCart returns the cart's lines and total
func (h *Handler) getCart(c *gin.Context) {
	ctx := c.Request.Context()
	cartID := c.Param("id")

	lines, err := h.cart.Lines(ctx, cartID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cart"})
		return
	}

	total, err := h.cart.Total(ctx, cartID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to total cart"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": lines,
		"total": total,
	})
}

type addCartItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	VariantID string `json:"variant_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// addCartItem adds a variant to the cart, merging with an existing line.
// Stock is validated here, at selection time, and not re-checked later.
func (h *Handler) addCartItem(c *gin.Context) {
	ctx := c.Request.Context()
	cartID := c.Param("id")

	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	product, err := h.catalog.GetProductByID(ctx, req.ProductID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	variant, err := h.catalog.GetVariantByID(ctx, req.VariantID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Variant not found"})
		return
	}

	if req.Quantity > variant.Stock {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient stock"})
		return
	}

	if err := h.cart.AddItem(ctx, cartID, *product, *variant, req.Quantity); err != nil {
		h.respondCartError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"added": true})
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// setCartItemQuantity replaces a line's quantity; zero removes the line
func (h *Handler) setCartItemQuantity(c *gin.Context) {
	var req setQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	err := h.cart.SetQuantity(c.Request.Context(), c.Param("id"), c.Param("variantId"), req.Quantity)
	if err != nil {
		h.respondCartError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// removeCartItem removes a line from the cart
func (h *Handler) removeCartItem(c *gin.Context) {
	if err := h.cart.RemoveItem(c.Request.Context(), c.Param("id"), c.Param("variantId")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove item"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

// clearCart empties the cart after a confirmed order
func (h *Handler) clearCart(c *gin.Context) {
	if err := h.cart.Clear(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear cart"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// createCheckout converts cart contents into a payment intent and a
// pending order.
func (h *Handler) createCheckout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	resp, err := h.checkout.Checkout(c.Request.Context(), &req)
	if err != nil {
		var validationErr *service.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Reason})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleWebhook verifies and applies a gateway notification. The body
// is read raw because the signature is computed over the exact bytes.
// Reconciliation failures still acknowledge the delivery; only a bad
// signature is rejected.
func (h *Handler) handleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	event, err := gateway.ConstructEvent(payload, c.GetHeader(gateway.SignatureHeader), h.webhookSecret)
	if err != nil {
		util.WebhookSignatureFailures.Inc()
		util.GetLogger().Warn("Webhook signature verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	}

	h.reconciler.HandleEvent(c.Request.Context(), event)

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// getOrder returns an order with its items for the confirmation page
func (h *Handler) getOrder(c *gin.Context) {
	order, items, err := h.checkout.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

func (h *Handler) respondCartError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Reason})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
