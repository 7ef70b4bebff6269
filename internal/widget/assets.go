package widget

import (
	"embed"
	"fmt"

	"github.com/natfields/skybridge/pkg/appsync"
)

// assets holds the bundled widget documents. They are resolved into
// descriptor markup once, at process start.
//
//go:embed web
var assets embed.FS

// markup reads a bundled document by file name.
func markup(name string) (string, error) {
	data, err := assets.ReadFile("web/" + name)
	if err != nil {
		return "", fmt.Errorf("widget: bundled asset %q: %w", name, err)
	}
	return string(data), nil
}

// DefaultCatalog builds the registry of all bundled widgets in their
// canonical registration order. It fails only if a bundled asset is missing,
// which indicates a broken build.
func DefaultCatalog() (*Registry, error) {
	type entry struct {
		asset string
		desc  Descriptor
	}
	entries := []entry{
		{
			asset: "product-carousel.html",
			desc: Descriptor{
				ToolID:       "show-products-carousel",
				URI:          "ui://widget/product-carousel.html",
				Title:        "Product Carousel",
				Description:  "Browsable carousel of storefront products",
				Invoking:     "Loading products…",
				Invoked:      "Showing product carousel",
				ResponseText: "Displayed product carousel.",
				Accessible:   true,
			},
		},
		{
			asset: "product-detail.html",
			desc: Descriptor{
				ToolID:        "show-product-detail",
				URI:           "ui://widget/product-detail.html",
				Title:         "Product Detail",
				Description:   "Detailed view of a single product",
				Invoking:      "Loading product details…",
				Invoked:       "Showing product details",
				ResponseText:  "Displayed product details.",
				PreferredMode: appsync.ModeFullscreen,
			},
		},
		{
			asset: "product-compare.html",
			desc: Descriptor{
				ToolID:       "compare-products",
				URI:          "ui://widget/product-compare.html",
				Title:        "Product Comparison",
				Description:  "Side-by-side comparison of products",
				Invoking:     "Loading comparison…",
				Invoked:      "Showing product comparison",
				ResponseText: "Displayed product comparison.",
				Accessible:   true,
			},
		},
		{
			asset: "shopping-cart.html",
			desc: Descriptor{
				ToolID:        "shopping-cart",
				URI:           "ui://widget/shopping-cart.html",
				Title:         "Shopping Cart",
				Description:   "The current shopping cart with checkout",
				Invoking:      "Loading cart…",
				Invoked:       "Showing shopping cart",
				ResponseText:  "Updated shopping cart.",
				PreferredMode: appsync.ModeFullscreen,
			},
		},
		{
			asset: "stock-summary.html",
			desc: Descriptor{
				ToolID:       "get-stock-summary",
				URI:          "ui://widget/stock-summary.html",
				Title:        "Stock Summary",
				Description:  "Price and key metrics for one ticker",
				Invoking:     "Fetching quote…",
				Invoked:      "Showing stock summary",
				ResponseText: "Displayed stock summary.",
				Accessible:   true,
			},
		},
		{
			asset: "player-stats.html",
			desc: Descriptor{
				ToolID:       "get-player-stats",
				URI:          "ui://widget/player-stats.html",
				Title:        "Player Statistics",
				Description:  "League player statistics table",
				Invoking:     "Fetching player stats…",
				Invoked:      "Showing player statistics",
				ResponseText: "Displayed player statistics.",
				Accessible:   true,
			},
		},
	}

	descriptors := make([]Descriptor, 0, len(entries))
	for _, e := range entries {
		m, err := markup(e.asset)
		if err != nil {
			return nil, err
		}
		d := e.desc
		d.Markup = m
		descriptors = append(descriptors, d)
	}
	return NewRegistry(descriptors...)
}
