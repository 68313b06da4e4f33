package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"storefront/internal/domain"

	"github.com/gin-gonic/gin"
)

type addItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  *int   `json:"quantity"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func cartResponse(snap domain.CartSnapshot) gin.H {
	return gin.H{
		"lines":      nonNil(snap.Lines),
		"totalItems": snap.TotalItems,
		"totalPrice": snap.TotalPrice,
		"isOpen":     snap.IsOpen,
	}
}

func getCartHandler(carts cartRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(ctxCartSessionNew) {
			c.JSON(http.StatusOK, cartResponse(domain.CartSnapshot{}))
			return
		}
		engine, release := carts.Open(c.Request.Context(), c.GetString(ctxCartOwner))
		defer release()
		c.JSON(http.StatusOK, cartResponse(engine.Snapshot()))
	}
}

// addCartItemHandler resolves the product from the catalog so clients cannot
// dictate prices.
func addCartItemHandler(carts cartRegistry, products productService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortJSON(c, http.StatusBadRequest, "invalid request body")
			return
		}
		quantity := 1
		if req.Quantity != nil {
			quantity = *req.Quantity
		}
		product, err := products.Get(c.Request.Context(), strings.TrimSpace(req.ProductID))
		if err != nil {
			writeError(c, err)
			return
		}
		engine, release := carts.Open(c.Request.Context(), c.GetString(ctxCartOwner))
		defer release()
		c.JSON(http.StatusOK, cartResponse(engine.AddItem(c.Request.Context(), *product, quantity)))
	}
}

func updateCartItemHandler(carts cartRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortJSON(c, http.StatusBadRequest, "quantity required")
			return
		}
		engine, release := carts.Open(c.Request.Context(), c.GetString(ctxCartOwner))
		defer release()
		c.JSON(http.StatusOK, cartResponse(engine.UpdateQuantity(c.Request.Context(), c.Param("productId"), *req.Quantity)))
	}
}

func removeCartItemHandler(carts cartRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		engine, release := carts.Open(c.Request.Context(), c.GetString(ctxCartOwner))
		defer release()
		c.JSON(http.StatusOK, cartResponse(engine.RemoveItem(c.Request.Context(), c.Param("productId"))))
	}
}

func cartItemQuantityHandler(carts cartRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		productID := c.Param("productId")
		if c.GetBool(ctxCartSessionNew) {
			c.JSON(http.StatusOK, gin.H{"productId": productID, "quantity": 0})
			return
		}
		engine, release := carts.Open(c.Request.Context(), c.GetString(ctxCartOwner))
		defer release()
		c.JSON(http.StatusOK, gin.H{"productId": productID, "quantity": engine.GetItemQuantity(productID)})
	}
}

func clearCartHandler(carts cartRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		engine, release := carts.Open(c.Request.Context(), c.GetString(ctxCartOwner))
		defer release()
		c.JSON(http.StatusOK, cartResponse(engine.ClearCart(c.Request.Context())))
	}
}

func toggleCartHandler(carts cartRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		engine, release := carts.Open(c.Request.Context(), c.GetString(ctxCartOwner))
		defer release()
		c.JSON(http.StatusOK, cartResponse(engine.ToggleCart()))
	}
}

func closeCartHandler(carts cartRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		engine, release := carts.Open(c.Request.Context(), c.GetString(ctxCartOwner))
		defer release()
		c.JSON(http.StatusOK, cartResponse(engine.CloseCart()))
	}
}

func checkoutHandler(carts cartRegistry, svc checkoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ctxUserID)
		engine, release := carts.Open(c.Request.Context(), c.GetString(ctxCartOwner))
		defer release()
		order, err := svc.Checkout(c.Request.Context(), userID, engine)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header("Location", fmt.Sprintf("/orders/%s", order.ID))
		c.JSON(http.StatusCreated, order)
	}
}
