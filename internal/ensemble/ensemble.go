// Package ensemble merges boosted-tree model updates into a global model
// across training rounds. Bagging rounds splice each update's tree into the
// shared forest; cyclic rounds hand the whole serialized model from one
// collaborator to the next.
package ensemble

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Mode selects how collaborator updates fold into the global model.
type Mode string

const (
	ModeBagging Mode = "bagging"
	ModeCyclic  Mode = "cyclic"
)

// RoundState is the explicit global-model value that flows through a round.
// Aggregation returns a successor state instead of mutating shared fields,
// so resuming training is a matter of reloading the last persisted state.
type RoundState struct {
	Round int
	Model map[string]any // bagging: parsed tree model, nil before the first update
	Raw   []byte         // cyclic: serialized model
}

// ModelBytes returns the serialized global model carried by the state.
func (s RoundState) ModelBytes() ([]byte, error) {
	if s.Raw != nil {
		return s.Raw, nil
	}
	if s.Model == nil {
		return nil, nil
	}
	data, err := json.Marshal(s.Model)
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	return data, nil
}

// Aggregator folds collaborator updates into round states.
type Aggregator struct {
	mode Mode
}

// NewAggregator returns an aggregator for the given mode.
func NewAggregator(mode Mode) (*Aggregator, error) {
	switch mode {
	case ModeBagging, ModeCyclic:
		return &Aggregator{mode: mode}, nil
	default:
		return nil, fmt.Errorf("unknown ensemble mode %q", mode)
	}
}

// Mode returns the aggregation mode.
func (a *Aggregator) Mode() Mode { return a.mode }

// ApplyUpdate folds one collaborator update into state and returns the
// successor state. The input state must not be used afterwards: bagging
// splices the update's tree into the state's model in place.
func (a *Aggregator) ApplyUpdate(state RoundState, update []byte) (RoundState, error) {
	if len(update) == 0 {
		return state, fmt.Errorf("empty model update")
	}

	switch a.mode {
	case ModeCyclic:
		// The update is the whole model; nothing to merge.
		state.Raw = append([]byte(nil), update...)
		state.Model = nil
		return state, nil
	default:
		var parsed map[string]any
		if err := json.Unmarshal(update, &parsed); err != nil {
			return state, fmt.Errorf("decode model update: %w", err)
		}
		merged, err := mergeTreeUpdate(state.Model, parsed)
		if err != nil {
			return state, err
		}
		state.Model = merged
		state.Raw = nil
		return state, nil
	}
}

// mergeTreeUpdate splices a single-tree update into the global model. The
// very first update becomes the model, normalized to one parallel tree.
// The XGBoost JSON schema keeps its counters as strings.
func mergeTreeUpdate(prev, update map[string]any) (map[string]any, error) {
	if prev == nil {
		param, err := modelParam(update)
		if err != nil {
			return nil, fmt.Errorf("model update: %w", err)
		}
		param["num_parallel_tree"] = "1"
		return update, nil
	}

	attrs, err := child(prev, "learner", "attributes")
	if err != nil {
		return nil, fmt.Errorf("global model: %w", err)
	}
	param, err := modelParam(prev)
	if err != nil {
		return nil, fmt.Errorf("global model: %w", err)
	}
	booster, err := child(prev, "learner", "gradient_booster", "model")
	if err != nil {
		return nil, fmt.Errorf("global model: %w", err)
	}
	trees, ok := booster["trees"].([]any)
	if !ok {
		return nil, fmt.Errorf("global model: trees is not a list")
	}
	treeInfo, ok := booster["tree_info"].([]any)
	if !ok {
		return nil, fmt.Errorf("global model: tree_info is not a list")
	}

	bestIteration, err := counter(attrs, "best_iteration")
	if err != nil {
		return nil, fmt.Errorf("global model: %w", err)
	}
	bestNTreeLimit, err := counter(attrs, "best_ntree_limit")
	if err != nil {
		return nil, fmt.Errorf("global model: %w", err)
	}
	numTrees, err := counter(param, "num_trees")
	if err != nil {
		return nil, fmt.Errorf("global model: %w", err)
	}

	tree, err := firstTree(update)
	if err != nil {
		return nil, fmt.Errorf("model update: %w", err)
	}

	attrs["best_iteration"] = strconv.Itoa(bestIteration + 1)
	attrs["best_ntree_limit"] = strconv.Itoa(bestNTreeLimit + 1)
	param["num_trees"] = strconv.Itoa(numTrees + 1)

	// Updates carry exactly one tree; it joins the forest under the next id.
	tree["id"] = numTrees
	booster["trees"] = append(trees, tree)
	booster["tree_info"] = append(treeInfo, 0)

	return prev, nil
}

// child walks nested JSON objects.
func child(m map[string]any, keys ...string) (map[string]any, error) {
	cur := m
	for _, k := range keys {
		next, ok := cur[k].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("missing %q section", k)
		}
		cur = next
	}
	return cur, nil
}

func modelParam(m map[string]any) (map[string]any, error) {
	return child(m, "learner", "gradient_booster", "model", "gbtree_model_param")
}

// counter reads a string-typed integer counter.
func counter(m map[string]any, key string) (int, error) {
	raw, ok := m[key].(string)
	if !ok {
		return 0, fmt.Errorf("counter %q is not a string", key)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("counter %q: %w", key, err)
	}
	return n, nil
}

// firstTree pulls the single tree a collaborator update carries.
func firstTree(update map[string]any) (map[string]any, error) {
	booster, err := child(update, "learner", "gradient_booster", "model")
	if err != nil {
		return nil, err
	}
	trees, ok := booster["trees"].([]any)
	if !ok || len(trees) == 0 {
		return nil, fmt.Errorf("update carries no trees")
	}
	tree, ok := trees[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tree entry is not an object")
	}
	return tree, nil
}
