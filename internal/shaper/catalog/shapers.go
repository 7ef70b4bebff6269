package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/natfields/skybridge/internal/shaper"
)

// maxCarouselProducts caps how many products one carousel shows.
const maxCarouselProducts = 12

// Shaper bundles the catalog tool shapers over a product source, the cart
// store, and optional AI helpers. A nil Comparer falls back to a tabular
// comparison; a nil Index falls back to substring search.
type Shaper struct {
	Source   Source
	Carts    *Carts
	Comparer Comparer
	Index    *SemanticIndex
}

// CarouselArgs are the show-products-carousel tool arguments.
type CarouselArgs struct {
	// Query optionally narrows the catalog, semantically when an index is
	// configured.
	Query string `json:"query,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// Carousel shapes the product list for the carousel widget.
func (s *Shaper) Carousel(ctx context.Context, raw json.RawMessage) shaper.Result {
	var args CarouselArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return shaper.Fail("invalid carousel arguments: "+err.Error(), nil)
	}
	limit := args.Limit
	if limit <= 0 || limit > maxCarouselProducts {
		limit = maxCarouselProducts
	}

	products, err := s.Source.List(ctx)
	if err != nil {
		return fail("failed to load products: %v", err)
	}

	if q := strings.TrimSpace(args.Query); q != "" {
		products, err = s.searchProducts(ctx, q, products, limit)
		if err != nil {
			return fail("product search failed: %v", err)
		}
	}
	if len(products) > limit {
		products = products[:limit]
	}

	return shaper.Ok(map[string]any{
		"products": productCards(products),
		"count":    len(products),
	})
}

// searchProducts orders the catalog by relevance to q, semantically when the
// index is configured, by title/tag substring otherwise.
func (s *Shaper) searchProducts(ctx context.Context, q string, all []Product, limit int) ([]Product, error) {
	if s.Index != nil {
		hits, err := s.Index.Search(ctx, q, limit)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]Product, len(all))
		for _, p := range all {
			byID[p.ID] = p
		}
		out := make([]Product, 0, len(hits))
		for _, h := range hits {
			if p, ok := byID[h.ProductID]; ok {
				out = append(out, p)
			}
		}
		return out, nil
	}

	lower := strings.ToLower(q)
	var out []Product
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Title), lower) ||
			strings.Contains(strings.ToLower(p.Description), lower) ||
			matchesTag(p.Tags, lower) {
			out = append(out, p)
		}
	}
	return out, nil
}

func matchesTag(tags []string, lower string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), lower) {
			return true
		}
	}
	return false
}

// DetailArgs are the show-product-detail tool arguments. Exactly one of ID
// and Product should be set; Product is matched fuzzily against titles.
type DetailArgs struct {
	ID      string `json:"id,omitempty"`
	Product string `json:"product,omitempty"`
}

// Detail shapes one product for the detail widget.
func (s *Shaper) Detail(ctx context.Context, raw json.RawMessage) shaper.Result {
	var args DetailArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return shaper.Fail("invalid detail arguments: "+err.Error(), nil)
	}

	p, res := s.resolve(ctx, args.ID, args.Product)
	if res != nil {
		return *res
	}
	return shaper.Ok(productRecord(p))
}

// resolve finds a product by ID, or by fuzzy title when id is empty. A
// non-nil Result is the domain failure to return.
func (s *Shaper) resolve(ctx context.Context, id, title string) (Product, *shaper.Result) {
	if id != "" {
		p, err := s.Source.Get(ctx, id)
		if err != nil {
			r := fail("product %s not found: %v", id, err)
			return Product{}, &r
		}
		return p, nil
	}
	if strings.TrimSpace(title) == "" {
		r := shaper.Fail("either id or product must be provided", nil)
		return Product{}, &r
	}
	all, err := s.Source.List(ctx)
	if err != nil {
		r := fail("failed to load products: %v", err)
		return Product{}, &r
	}
	p, ok := ResolveTitle(title, all)
	if !ok {
		r := fail("no product found matching %q", title)
		return Product{}, &r
	}
	return p, nil
}

// CompareArgs are the compare-products tool arguments.
type CompareArgs struct {
	// Products names the products to compare, by ID or title. At least two.
	Products []string `json:"products"`
	// Focus optionally steers the analysis, e.g. "battery life".
	Focus string `json:"focus,omitempty"`
}

// Compare shapes a side-by-side comparison for the compare widget.
func (s *Shaper) Compare(ctx context.Context, raw json.RawMessage) shaper.Result {
	var args CompareArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return shaper.Fail("invalid compare arguments: "+err.Error(), nil)
	}
	if len(args.Products) < 2 {
		return shaper.Fail("at least two products are required to compare", nil)
	}

	all, err := s.Source.List(ctx)
	if err != nil {
		return fail("failed to load products: %v", err)
	}
	byID := make(map[string]Product, len(all))
	for _, p := range all {
		byID[p.ID] = p
	}

	resolved := make([]Product, 0, len(args.Products))
	for _, name := range args.Products {
		if p, ok := byID[name]; ok {
			resolved = append(resolved, p)
			continue
		}
		p, ok := ResolveTitle(name, all)
		if !ok {
			return fail("no product found matching %q", name)
		}
		resolved = append(resolved, p)
	}

	analysis := tabularAnalysis(resolved)
	if s.Comparer != nil {
		text, err := s.Comparer.Compare(ctx, resolved, args.Focus)
		if err == nil {
			analysis = text
		}
		// An AI failure degrades to the tabular comparison rather than
		// failing the tool call.
	}

	return shaper.Ok(map[string]any{
		"products": productCards(resolved),
		"analysis": analysis,
	})
}

func tabularAnalysis(products []Product) string {
	var sb strings.Builder
	for _, p := range products {
		fmt.Fprintf(&sb, "%s: %.2f %s", p.Title, p.Price, p.Currency)
		if !p.InStock {
			sb.WriteString(" (out of stock)")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// CartArgs are the shopping-cart tool arguments.
type CartArgs struct {
	// Action is one of "add", "remove", "clear", "view".
	Action string `json:"action"`
	// Product names the product for add/remove, by ID or title.
	Product  string `json:"product,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
}

// Cart shapes a cart mutation or view. The acting cart is selected by the
// subject on ctx; every action returns the resulting cart so the widget can
// re-render from one record.
func (s *Shaper) Cart(ctx context.Context, raw json.RawMessage) shaper.Result {
	var args CartArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return shaper.Fail("invalid cart arguments: "+err.Error(), nil)
	}
	subject := shaper.SubjectFrom(ctx)

	switch args.Action {
	case "add", "remove":
		p, res := s.resolve(ctx, "", args.Product)
		if res != nil {
			return *res
		}
		qty := args.Quantity
		if qty <= 0 {
			qty = 1
		}
		if args.Action == "add" {
			s.Carts.Add(subject, p.ID, qty)
		} else {
			s.Carts.Remove(subject, p.ID, qty)
		}
	case "clear":
		s.Carts.Clear(subject)
	case "view":
		// Read-only.
	default:
		return shaper.Fail(fmt.Sprintf("unknown cart action %q", args.Action), nil)
	}

	return s.cartView(ctx, subject)
}

func (s *Shaper) cartView(ctx context.Context, subject string) shaper.Result {
	lines := s.Carts.View(subject)

	items := make([]map[string]any, 0, len(lines))
	var total float64
	count := 0
	for _, l := range lines {
		p, err := s.Source.Get(ctx, l.ProductID)
		if err != nil {
			return fail("failed to load cart product %s: %v", l.ProductID, err)
		}
		lineTotal := p.Price * float64(l.Quantity)
		total += lineTotal
		count += l.Quantity
		items = append(items, map[string]any{
			"product":    productCard(p),
			"quantity":   l.Quantity,
			"line_total": lineTotal,
		})
	}

	return shaper.Ok(map[string]any{
		"items":        items,
		"count":        count,
		"total":        total,
		"checkout_url": s.Carts.CheckoutURL(subject),
	})
}

// productCard is the compact form used in lists.
func productCard(p Product) map[string]any {
	return map[string]any{
		"id":        p.ID,
		"title":     p.Title,
		"price":     p.Price,
		"currency":  p.Currency,
		"image_url": p.ImageURL,
		"in_stock":  p.InStock,
	}
}

func productCards(products []Product) []map[string]any {
	out := make([]map[string]any, len(products))
	for i, p := range products {
		out[i] = productCard(p)
	}
	return out
}

// productRecord is the full form used by the detail widget.
func productRecord(p Product) map[string]any {
	m := productCard(p)
	m["description"] = p.Description
	m["tags"] = p.Tags
	return m
}
