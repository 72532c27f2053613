package ensemble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/runvault/runvault/internal/storage"
)

// roundCompleteTag marks a persisted round as fully aggregated.
const roundCompleteTag = "round-complete"

// Coordinator persists round states in a vault store so training survives a
// restart. Rounds live as objects under a base URI, one per round, tagged
// once complete.
type Coordinator struct {
	store *storage.Store
	agg   *Aggregator
	base  string
}

// NewCoordinator returns a coordinator storing rounds under baseURI.
func NewCoordinator(store *storage.Store, agg *Aggregator, baseURI string) (*Coordinator, error) {
	if store == nil || agg == nil {
		return nil, fmt.Errorf("store and aggregator are required")
	}
	if !strings.HasPrefix(baseURI, "/") {
		return nil, fmt.Errorf("base uri %q must be absolute", baseURI)
	}
	return &Coordinator{store: store, agg: agg, base: path.Clean(baseURI)}, nil
}

// RoundURI names the object a round persists to. Zero-padded round numbers
// keep lexical listing order equal to round order.
func (c *Coordinator) RoundURI(round int) string {
	return path.Join(c.base, fmt.Sprintf("round-%06d", round))
}

// AdvanceRound folds a batch of collaborator updates into state, assigns
// the next round number and persists the result. The returned state
// supersedes the input.
func (c *Coordinator) AdvanceRound(ctx context.Context, state RoundState, updates [][]byte) (RoundState, error) {
	if len(updates) == 0 {
		return state, fmt.Errorf("round has no updates")
	}

	var err error
	for _, update := range updates {
		state, err = c.agg.ApplyUpdate(state, update)
		if err != nil {
			return state, err
		}
	}

	state.Round++
	if err := c.SaveRound(ctx, state); err != nil {
		return state, err
	}
	log.Debug().
		Int("round", state.Round).
		Str("uri", c.RoundURI(state.Round)).
		Int("updates", len(updates)).
		Msg("ensemble round persisted")
	return state, nil
}

// SaveRound persists state as its round object and marks it complete. A
// re-run of the same round overwrites the previous attempt.
func (c *Coordinator) SaveRound(ctx context.Context, state RoundState) error {
	data, err := state.ModelBytes()
	if err != nil {
		return err
	}
	meta := map[string]any{
		"round":        state.Round,
		"mode":         string(c.agg.Mode()),
		"completed_at": time.Now().UTC().Format(time.RFC3339),
	}

	uri := c.RoundURI(state.Round)
	if _, err := c.store.CreateObject(ctx, uri, data, meta, true); err != nil {
		return fmt.Errorf("persist round %d: %w", state.Round, err)
	}
	if err := c.store.TagObject(ctx, uri, roundCompleteTag, nil); err != nil {
		return fmt.Errorf("mark round %d complete: %w", state.Round, err)
	}
	return nil
}

// LoadState returns the latest persisted round state, or a zero state when
// no round has completed yet.
func (c *Coordinator) LoadState(ctx context.Context) (RoundState, error) {
	uris, err := c.History(ctx)
	if err != nil {
		return RoundState{}, err
	}
	if len(uris) == 0 {
		return RoundState{}, nil
	}
	latest := uris[len(uris)-1]

	meta, data, err := c.store.GetDetail(ctx, latest)
	if err != nil {
		return RoundState{}, fmt.Errorf("load round %s: %w", latest, err)
	}

	mode, _ := meta["mode"].(string)
	if Mode(mode) != c.agg.Mode() {
		return RoundState{}, fmt.Errorf("round %s was aggregated in %q mode, coordinator runs %q", latest, mode, c.agg.Mode())
	}

	state := RoundState{Round: metaRound(meta)}
	switch c.agg.Mode() {
	case ModeCyclic:
		state.Raw = data
	default:
		if len(data) > 0 {
			var model map[string]any
			if err := json.Unmarshal(data, &model); err != nil {
				return RoundState{}, fmt.Errorf("decode round %s model: %w", latest, err)
			}
			state.Model = model
		}
	}
	return state, nil
}

// History returns the persisted round URIs in round order.
func (c *Coordinator) History(ctx context.Context) ([]string, error) {
	uris, err := c.store.ListObjects(ctx, c.base, "")
	if err != nil {
		// The base directory appears with the first persisted round.
		if errors.Is(err, storage.ErrInvalidPath) {
			return nil, nil
		}
		return nil, err
	}
	return uris, nil
}

// metaRound reads the round number out of a decoded metadata document.
func metaRound(meta map[string]any) int {
	switch v := meta["round"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
