// Package catalog shapes storefront product data for the carousel, detail,
// comparison and cart widgets, and keeps the per-conversation shopping cart.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/natfields/skybridge/internal/resilience"
	"github.com/natfields/skybridge/internal/shaper"
)

const defaultTimeout = 15 * time.Second

// minTitleSimilarity is the Jaro-Winkler score below which a product title is
// not considered a match for the requested name.
const minTitleSimilarity = 0.85

// Product is one storefront product.
type Product struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	Description string   `json:"description"`
	ImageURL    string   `json:"image_url"`
	Tags        []string `json:"tags"`
	InStock     bool     `json:"in_stock"`
}

// Source provides product data. Implemented by [HTTPSource] in production and
// by fixtures in tests.
type Source interface {
	// List returns the full product catalog.
	List(ctx context.Context) ([]Product, error)
	// Get returns one product by ID.
	Get(ctx context.Context, id string) (Product, error)
}

// HTTPSource fetches products from a storefront HTTP API.
type HTTPSource struct {
	baseURL     string
	accessToken string
	http        *http.Client
}

// NewHTTPSource creates a source for the storefront API at baseURL. The
// access token, if non-empty, is sent on every request.
func NewHTTPSource(baseURL, accessToken string) (*HTTPSource, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("catalog: baseURL must not be empty")
	}
	return &HTTPSource{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		http:        resilience.GuardedClient("catalog", defaultTimeout),
	}, nil
}

// List implements [Source].
func (s *HTTPSource) List(ctx context.Context) ([]Product, error) {
	var body struct {
		Products []Product `json:"products"`
	}
	if err := s.get(ctx, "/products", &body); err != nil {
		return nil, err
	}
	return body.Products, nil
}

// Get implements [Source].
func (s *HTTPSource) Get(ctx context.Context, id string) (Product, error) {
	var p Product
	if err := s.get(ctx, "/products/"+id, &p); err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *HTTPSource) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("catalog: build request: %w", err)
	}
	if s.accessToken != "" {
		req.Header.Set("X-Access-Token", s.accessToken)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("catalog: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog: upstream returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("catalog: decode response: %w", err)
	}
	return nil
}

// ResolveTitle finds the catalog product whose title best matches name,
// case-insensitively by Jaro-Winkler similarity. The boolean reports whether
// the best hit cleared the similarity floor.
func ResolveTitle(name string, products []Product) (Product, bool) {
	q := strings.ToLower(strings.TrimSpace(name))
	var best Product
	var bestScore float64
	found := false
	for _, p := range products {
		score := matchr.JaroWinkler(q, strings.ToLower(p.Title), false)
		if !found || score > bestScore {
			best = p
			bestScore = score
			found = true
		}
	}
	return best, found && bestScore >= minTitleSimilarity
}

// fail wraps a storefront failure in a domain result.
func fail(format string, args ...any) shaper.Result {
	return shaper.Fail(fmt.Sprintf(format, args...), nil)
}
