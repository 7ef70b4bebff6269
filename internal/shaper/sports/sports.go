// Package sports shapes football player statistics from an upstream stats
// service into the record rendered by the player-stats widget.
package sports

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/natfields/skybridge/internal/resilience"
	"github.com/natfields/skybridge/internal/shaper"
)

const defaultTimeout = 10 * time.Second

// minNameSimilarity is the Jaro-Winkler score below which a search hit is
// not considered the requested player.
const minNameSimilarity = 0.82

// Client fetches player statistics from an upstream stats HTTP service.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("sports: baseURL must not be empty")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    resilience.GuardedClient("sports", defaultTimeout),
	}, nil
}

// Args are the get-player-stats tool arguments.
type Args struct {
	// Player is the player's name, matched fuzzily against the upstream roster.
	Player string `json:"player"`
	// Season selects a season like "2025/26". Empty means current season.
	Season string `json:"season,omitempty"`
}

// player is one upstream search hit.
type player struct {
	Name        string  `json:"name"`
	Team        string  `json:"team"`
	Position    string  `json:"position"`
	Season      string  `json:"season"`
	Goals       int     `json:"goals"`
	Assists     int     `json:"assists"`
	Minutes     int     `json:"minutes"`
	Appearances int     `json:"appearances"`
	YellowCards int     `json:"yellow_cards"`
	RedCards    int     `json:"red_cards"`
	Form        float64 `json:"form"`
}

// Shape fetches and shapes one player's statistics. Search hits are ranked by
// Jaro-Winkler similarity to the requested name so partial names and common
// misspellings still resolve.
func (c *Client) Shape(ctx context.Context, raw json.RawMessage) shaper.Result {
	var args Args
	if err := json.Unmarshal(raw, &args); err != nil {
		return shaper.Fail("invalid player arguments: "+err.Error(), nil)
	}
	name := strings.TrimSpace(args.Player)
	if name == "" {
		return shaper.Fail("player must not be empty", nil)
	}

	hits, err := c.search(ctx, name, args.Season)
	if err != nil {
		return shaper.Fail(
			fmt.Sprintf("failed to fetch stats for %s: %v", name, err),
			map[string]any{"player": name},
		)
	}

	best, score := bestMatch(name, hits)
	if best == nil || score < minNameSimilarity {
		return shaper.Fail(
			fmt.Sprintf("no player found matching %q", name),
			map[string]any{"player": name},
		)
	}

	return shaper.Ok(map[string]any{
		"player":   best.Name,
		"team":     best.Team,
		"position": best.Position,
		"season":   best.Season,
		"stats": map[string]any{
			"goals":        best.Goals,
			"assists":      best.Assists,
			"minutes":      best.Minutes,
			"appearances":  best.Appearances,
			"yellow_cards": best.YellowCards,
			"red_cards":    best.RedCards,
			"form":         best.Form,
		},
		"per_90": map[string]any{
			"goals":   per90(best.Goals, best.Minutes),
			"assists": per90(best.Assists, best.Minutes),
		},
	})
}

// bestMatch returns the hit with the highest case-insensitive Jaro-Winkler
// similarity to the query, and that score.
func bestMatch(query string, hits []player) (*player, float64) {
	q := strings.ToLower(query)
	var best *player
	var bestScore float64
	for i := range hits {
		score := matchr.JaroWinkler(q, strings.ToLower(hits[i].Name), false)
		if best == nil || score > bestScore {
			best = &hits[i]
			bestScore = score
		}
	}
	return best, bestScore
}

func per90(n, minutes int) float64 {
	if minutes == 0 {
		return 0
	}
	v := float64(n) / float64(minutes) * 90
	// Two decimals is plenty for a widget stat line.
	return float64(int(v*100+0.5)) / 100
}

func (c *Client) search(ctx context.Context, name, season string) ([]player, error) {
	q := url.Values{"q": {name}}
	if season != "" {
		q.Set("season", season)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/players/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("sports: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sports: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sports: upstream returned %s", resp.Status)
	}
	var body struct {
		Players []player `json:"players"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("sports: decode response: %w", err)
	}
	return body.Players, nil
}
