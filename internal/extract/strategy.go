package extract

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Strategy extracts collated ads from one raw response payload. Payload
// shapes change as the portal evolves; each shape gets its own strategy and
// strategies are looked up through the versioned registry.
type Strategy interface {
	Name() string
	Extract(raw []byte) ([]CollatedAd, error)
}

// Registry holds named strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: map[string]Strategy{}}
}

// Register adds or replaces a strategy under its name.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("no extraction strategy %q", name)
	}
	return s, nil
}

// Names lists registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with the current payload strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(SnapshotStrategy{})
	r.Register(PaginationStrategy{})
	return r
}

// SnapshotStrategy parses the blob embedded in the initial search page. The
// ads live at require[0][3][0].__bbox.require[0][3][1].__bbox.result.data.
type SnapshotStrategy struct{}

func (SnapshotStrategy) Name() string { return "snapshot/v1" }

func (SnapshotStrategy) Extract(raw []byte) ([]CollatedAd, error) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parsing snapshot payload: %w", err)
	}

	edges, ok := dig(payload,
		"require", 0, 3, 0, "__bbox",
		"require", 0, 3, 1, "__bbox",
		"result", "data",
		"ad_library_main", "search_results_connection", "edges",
	)
	if !ok {
		return nil, fmt.Errorf("snapshot payload missing search results")
	}

	return collectEdges(edges)
}

// PaginationStrategy parses the XHR responses streamed while scrolling. The
// ads live directly under data.ad_library_main.
type PaginationStrategy struct{}

func (PaginationStrategy) Name() string { return "pagination/v1" }

func (PaginationStrategy) Extract(raw []byte) ([]CollatedAd, error) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parsing pagination payload: %w", err)
	}

	edges, ok := dig(payload,
		"data", "ad_library_main", "search_results_connection", "edges",
	)
	if !ok {
		return nil, fmt.Errorf("pagination payload missing search results")
	}

	return collectEdges(edges)
}

func collectEdges(edges any) ([]CollatedAd, error) {
	list, ok := edges.([]any)
	if !ok {
		return nil, fmt.Errorf("search results edges is not an array")
	}

	ads := []CollatedAd{}
	for _, edge := range list {
		collated, ok := dig(edge, "node", "collated_results")
		if !ok {
			continue
		}
		items, ok := collated.([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			ad, ok := decodeCollated(item)
			if !ok {
				continue
			}
			ads = append(ads, ad)
		}
	}
	return ads, nil
}

func decodeCollated(item any) (CollatedAd, bool) {
	node, ok := item.(map[string]any)
	if !ok {
		return CollatedAd{}, false
	}

	b, err := json.Marshal(node)
	if err != nil {
		return CollatedAd{}, false
	}

	var ad CollatedAd
	if err := json.Unmarshal(b, &ad); err != nil {
		return CollatedAd{}, false
	}
	if ad.AdArchiveID == "" {
		return CollatedAd{}, false
	}
	ad.Raw = node
	return ad, true
}

// dig walks a decoded JSON value by string keys and integer indices.
func dig(v any, path ...any) (any, bool) {
	current := v
	for _, step := range path {
		switch key := step.(type) {
		case string:
			m, ok := current.(map[string]any)
			if !ok {
				return nil, false
			}
			current, ok = m[key]
			if !ok {
				return nil, false
			}
		case int:
			list, ok := current.([]any)
			if !ok || key < 0 || key >= len(list) {
				return nil, false
			}
			current = list[key]
		default:
			return nil, false
		}
	}
	return current, true
}
