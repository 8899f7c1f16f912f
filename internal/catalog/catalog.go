package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"RegIngest/internal/config"
)

// Source describes a regulation the pipeline knows how to ingest.
type Source struct {
	Key           string
	Name          string
	FullTitle     string
	Jurisdiction  string
	URL           string
	EffectiveDate *time.Time
}

// Registry keeps regulation sources keyed by their CLI key.
type Registry struct {
	sources map[string]Source
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]Source{}}
}

// FromConfig registers every configured regulation, rejecting duplicates and bad dates.
func FromConfig(regs []config.RegulationConfig) (*Registry, error) {
	r := NewRegistry()
	for _, reg := range regs {
		key := strings.ToLower(strings.TrimSpace(reg.Key))
		if key == "" {
			return nil, fmt.Errorf("regulation %q has no key", reg.Name)
		}
		if reg.URL == "" {
			return nil, fmt.Errorf("regulation %s has no url", key)
		}
		if _, exists := r.sources[key]; exists {
			return nil, fmt.Errorf("regulation %s is declared twice", key)
		}

		src := Source{
			Key:          key,
			Name:         reg.Name,
			FullTitle:    reg.FullTitle,
			Jurisdiction: reg.Jurisdiction,
			URL:          reg.URL,
		}
		if src.Name == "" {
			src.Name = key
		}
		if src.FullTitle == "" {
			src.FullTitle = src.Name
		}
		if reg.EffectiveDate != "" {
			date, err := time.Parse("2006-01-02", reg.EffectiveDate)
			if err != nil {
				return nil, fmt.Errorf("regulation %s: effective date: %w", key, err)
			}
			src.EffectiveDate = &date
		}
		r.Register(src)
	}
	return r, nil
}

// Register adds or replaces a source.
func (r *Registry) Register(src Source) {
	if r.sources == nil {
		r.sources = map[string]Source{}
	}
	r.sources[src.Key] = src
}

// Resolve returns a source by key or an error if it is absent.
func (r *Registry) Resolve(key string) (Source, error) {
	if src, ok := r.sources[strings.ToLower(strings.TrimSpace(key))]; ok {
		return src, nil
	}
	return Source{}, fmt.Errorf("regulation %s is not in the catalog", key)
}

// List returns all sources sorted by key.
func (r *Registry) List() []Source {
	out := make([]Source, 0, len(r.sources))
	for _, src := range r.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
