// Package harness drives a live service through complete assessment
// walks: session creation, answers, finalization and the token-gated
// results read. It is the end-to-end smoke tool behind cmd/simulate.
package harness

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/sonder/pkg/logger"
)

const walkConcurrency = 4

// Run executes the simulation and reports aggregate stats.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("harness")

	log.Info(ctx, "starting simulation",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("sessions", cfg.Sessions),
		logger.Int("fc_blocks", cfg.FCBlocks))

	c := newClient(cfg.BaseURL, cfg.Timeout)

	var health struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "/healthz", nil, &health); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(walkConcurrency)
	results := make(chan error, cfg.Sessions)

	for i := 0; i < cfg.Sessions; i++ {
		seed := int64(i)
		g.Go(func() error {
			err := walk(gctx, c, cfg, rand.New(rand.NewSource(seed)), log)
			results <- err
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	for err := range results {
		stats.SessionsCreated++
		if err != nil {
			stats.Failed++
			log.Warn(ctx, "session walk failed", logger.Error(err))
			continue
		}
		stats.Finalized++
		stats.TokenReads++
		stats.DeniedReads++
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	log.Info(ctx, "simulation finished",
		logger.Int("finalized", stats.Finalized),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration))

	if stats.Failed > 0 {
		return stats, fmt.Errorf("%d of %d session walks failed", stats.Failed, cfg.Sessions)
	}
	return stats, nil
}

// walk drives one session end to end and checks the read-path gates.
func walk(ctx context.Context, c *client, cfg *Config, rng *rand.Rand, log logger.Logger) error {
	var created struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	if err := c.postJSON(ctx, "/sessions", map[string]string{"owner_id": ""}, &created); err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	id := created.Session.ID

	items := generateResponses(rng, cfg.FCBlocks)
	if err := c.postJSON(ctx, "/sessions/"+id+"/responses",
		map[string]any{"responses": items}, nil); err != nil {
		return fmt.Errorf("submitting responses: %w", err)
	}

	if err := c.postJSON(ctx, "/sessions/"+id+"/complete", nil, nil); err != nil {
		return fmt.Errorf("completing session: %w", err)
	}

	var finalized struct {
		Profile struct {
			TypeCode       string `json:"type_code"`
			ResultsVersion string `json:"results_version"`
		} `json:"profile"`
		ShareToken string `json:"share_token"`
	}
	if err := c.postJSON(ctx, "/finalize", map[string]string{"session_id": id}, &finalized); err != nil {
		return fmt.Errorf("finalizing: %w", err)
	}
	if finalized.Profile.TypeCode == "" {
		return fmt.Errorf("session %s: empty type_code in finalized profile", id)
	}

	// Replay must be a no-op with the identical profile.
	var replay struct {
		Profile struct {
			TypeCode string `json:"type_code"`
		} `json:"profile"`
		Noop bool `json:"noop"`
	}
	if err := c.postJSON(ctx, "/finalize", map[string]string{"session_id": id}, &replay); err != nil {
		return fmt.Errorf("replaying finalize: %w", err)
	}
	if !replay.Noop || replay.Profile.TypeCode != finalized.Profile.TypeCode {
		return fmt.Errorf("session %s: finalize replay was not a no-op", id)
	}

	// Share token read must succeed; a credential-less read must be denied.
	if err := c.getJSON(ctx, "/results?session_id="+id, map[string]string{
		"Authorization": "Bearer " + finalized.ShareToken,
	}, nil); err != nil {
		return fmt.Errorf("token read: %w", err)
	}
	err := c.getJSON(ctx, "/results?session_id="+id, nil, nil)
	var se *statusError
	if err == nil {
		return fmt.Errorf("session %s: unauthenticated read was allowed", id)
	} else if !asStatus(err, &se) || se.Code != 403 {
		return fmt.Errorf("session %s: expected 403 on unauthenticated read, got %v", id, err)
	}

	if cfg.Verbose {
		log.Info(ctx, "session walk finished",
			logger.String("session", id),
			logger.String("type_code", finalized.Profile.TypeCode),
			logger.String("results_version", finalized.Profile.ResultsVersion))
	}
	return nil
}

func asStatus(err error, target **statusError) bool {
	se, ok := err.(*statusError)
	if ok {
		*target = se
	}
	return ok
}
