package loadgen

import (
	"context"
	"fmt"
	"time"

	"github.com/movementlabsxyz/suzuka/internal/api"
	"github.com/movementlabsxyz/suzuka/internal/utils"
)

// HeadHeight asks the node for its executor head.
func (g *Generator) HeadHeight(ctx context.Context) (uint64, error) {
	return utils.WithRetry(ctx, g.cfg.MaxRetries, "get head height", func(ctx context.Context) (uint64, error) {
		var out api.HealthResponse
		resp, err := g.rest.R().SetContext(ctx).SetResult(&out).Get("/v1/health")
		if err != nil {
			return 0, err
		}
		if resp.IsError() {
			return 0, fmt.Errorf("unexpected response %s: %s", resp.Status(), resp.String())
		}
		return out.HeadHeight, nil
	})
}

// Follow reports every increase of the node's head height until ctx is done.
func (g *Generator) Follow(ctx context.Context, interval time.Duration, report func(height uint64)) error {
	var current uint64
	first := true
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		height, err := g.HeadHeight(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to get head height: %w", err)
		}
		if first || height > current {
			report(height)
			current = height
			first = false
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
