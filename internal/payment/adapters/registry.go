package adapters

import (
	"strings"

	"github.com/smallbiznis/patronage/internal/payment/domain"
)

// Registry resolves the processor for a payment method "service/type" key.
type Registry struct {
	processors map[string]domain.Processor
}

func NewRegistry(processors ...domain.Processor) *Registry {
	registry := &Registry{processors: map[string]domain.Processor{}}
	for _, processor := range processors {
		if processor == nil {
			continue
		}
		key := normalizeKey(processor.Key())
		if key == "" {
			continue
		}
		registry.processors[key] = processor
	}
	return registry
}

func (r *Registry) Exists(key string) bool {
	if r == nil {
		return false
	}
	_, ok := r.processors[normalizeKey(key)]
	return ok
}

func (r *Registry) Get(key string) (domain.Processor, error) {
	if r == nil {
		return nil, domain.ErrProcessorNotFound
	}
	processor, ok := r.processors[normalizeKey(key)]
	if !ok {
		return nil, domain.ErrProcessorNotFound
	}
	return processor, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
