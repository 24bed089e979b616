// Package backend seeds dosing orders from the production-management REST API.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devadigapratham/microdose/dosing"
)

// DefaultRecipeName is used when the backend does not name the recipe.
const DefaultRecipeName = "Formula A"

const maxParallelLookups = 8

// Client talks to the REST backend.
type Client struct {
	baseURL   string
	http      *http.Client
	materials *lru.Cache
	log       *zap.SugaredLogger
}

// NewClient creates a client for baseURL. Material records are cached in an
// LRU of cacheSize entries since recipes share materials.
func NewClient(baseURL string, timeout time.Duration, cacheSize int, log *zap.SugaredLogger) (*Client, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: timeout},
		materials: cache,
		log:       log,
	}, nil
}

// FetchOrder builds an order from the active material, or from all recipe
// materials when no material is active.
func (c *Client) FetchOrder(ctx context.Context, orderID string) (dosing.Order, error) {
	var active activeMaterial
	found, err := c.getJSON(ctx, "/api/active-material", &active)
	if err != nil {
		return dosing.Order{}, fmt.Errorf("failed to fetch active material: %w", err)
	}
	if found && active.MaterialID != 0 {
		return dosing.NewOrder(orderID, DefaultRecipeName, []dosing.MaterialLine{active.line()}), nil
	}

	var recipeMaterials []recipeMaterial
	if _, err := c.getJSON(ctx, "/api/recipe_materials", &recipeMaterials); err != nil {
		return dosing.Order{}, fmt.Errorf("failed to fetch recipe materials: %w", err)
	}

	lines, recipeName, err := c.enrich(ctx, recipeMaterials)
	if err != nil {
		return dosing.Order{}, err
	}
	return dosing.NewOrder(orderID, recipeName, lines), nil
}

type enriched struct {
	line   dosing.MaterialLine
	recipe string
	ok     bool
}

// enrich joins each recipe material with its recipe and material records.
// Lines whose lookups fail are skipped.
func (c *Client) enrich(ctx context.Context, rms []recipeMaterial) ([]dosing.MaterialLine, string, error) {
	results := make([]enriched, len(rms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLookups)
	for i, rm := range rms {
		i, rm := i, rm
		g.Go(func() error {
			var rec recipe
			var mat material
			inner, ictx := errgroup.WithContext(gctx)
			inner.Go(func() error { return c.recipe(ictx, rm.RecipeID, &rec) })
			inner.Go(func() error { return c.material(ictx, rm.MaterialID, &mat) })
			if err := inner.Wait(); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.log.Warnf("Error fetching names for recipe_id %d or material_id %d: %v", rm.RecipeID, rm.MaterialID, err)
				return nil
			}
			results[i] = enriched{line: rm.line(i, mat), recipe: rec.name(rm.RecipeID), ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", err
	}

	lines := make([]dosing.MaterialLine, 0, len(results))
	recipeName := ""
	for _, r := range results {
		if !r.ok {
			continue
		}
		if recipeName == "" {
			recipeName = r.recipe
		}
		lines = append(lines, r.line)
	}
	if recipeName == "" {
		recipeName = DefaultRecipeName
	}
	return lines, recipeName, nil
}

func (c *Client) recipe(ctx context.Context, id int64, out *recipe) error {
	found, err := c.getJSON(ctx, "/api/recipes/"+strconv.FormatInt(id, 10), out)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("recipe %d not found", id)
	}
	return nil
}

func (c *Client) material(ctx context.Context, id int64, out *material) error {
	if v, ok := c.materials.Get(id); ok {
		*out = v.(material)
		return nil
	}
	found, err := c.getJSON(ctx, "/api/materials/"+strconv.FormatInt(id, 10), out)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("material %d not found", id)
	}
	c.materials.Add(id, *out)
	return nil
}

// getJSON decodes the body of GET path into out. A 404 or an empty/null body
// reports found=false without an error.
func (c *Client) getJSON(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("GET %s: %w", path, err)
	}
	return true, nil
}
