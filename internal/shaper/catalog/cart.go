package catalog

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Carts holds one shopping cart per conversation subject. All methods are
// safe for concurrent use. Concurrent writes to the same line are
// last-write-wins.
type Carts struct {
	shopDomain string

	mu    sync.Mutex
	lines map[string]map[string]int // subject -> product ID -> quantity
}

// NewCarts creates the cart store. shopDomain is used to build checkout URLs,
// e.g. "shop.example.com".
func NewCarts(shopDomain string) *Carts {
	return &Carts{
		shopDomain: shopDomain,
		lines:      make(map[string]map[string]int),
	}
}

// Add increases the quantity of productID in subject's cart by qty.
func (c *Carts) Add(subject, productID string, qty int) {
	if qty <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cart := c.lines[subject]
	if cart == nil {
		cart = make(map[string]int)
		c.lines[subject] = cart
	}
	cart[productID] += qty
}

// Remove decreases the quantity of productID in subject's cart by qty,
// deleting the line when it reaches zero.
func (c *Carts) Remove(subject, productID string, qty int) {
	if qty <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cart := c.lines[subject]
	if cart == nil {
		return
	}
	cart[productID] -= qty
	if cart[productID] <= 0 {
		delete(cart, productID)
	}
}

// Clear empties subject's cart.
func (c *Carts) Clear(subject string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lines, subject)
}

// Line is one cart entry.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// View returns subject's cart lines ordered by product ID.
func (c *Carts) View(subject string) []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	cart := c.lines[subject]
	out := make([]Line, 0, len(cart))
	for id, qty := range cart {
		out = append(out, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// CheckoutURL builds the storefront checkout permalink for subject's current
// cart: https://{shop}/cart/{id}:{qty},{id}:{qty}.
func (c *Carts) CheckoutURL(subject string) string {
	lines := c.View(subject)
	if len(lines) == 0 {
		return ""
	}
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = fmt.Sprintf("%s:%d", url.PathEscape(l.ProductID), l.Quantity)
	}
	return "https://" + c.shopDomain + "/cart/" + strings.Join(parts, ",")
}
