package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/pbaille/nutrilog/internal/domain"
	"github.com/pbaille/nutrilog/internal/logger"
)

// Registry routes requests to the source named by a food id prefix
type Registry struct {
	Searchers map[domain.Source]NameSearcher
	IDs       IDLookup
	Barcodes  BarcodeSearcher
}

// NewRegistry wires the USDA and Open Food Facts clients. Either may be nil.
func NewRegistry(usda *USDA, off *OpenFoodFacts) *Registry {
	r := &Registry{Searchers: map[domain.Source]NameSearcher{}}
	if usda != nil {
		r.Searchers[domain.SourceUSDA] = usda
		r.IDs = usda
	}
	if off != nil {
		r.Searchers[domain.SourceOpenFoodFacts] = off
		r.Barcodes = off
	}
	return r
}

// UseCache puts cache in front of every name searcher
func (r *Registry) UseCache(cache Cache, ttl time.Duration, log *logger.Logger) {
	for source, s := range r.Searchers {
		r.Searchers[source] = NewCached(string(source), s, cache, ttl, log)
	}
}

// Searcher returns the name searcher registered for source
func (r *Registry) Searcher(source domain.Source) (NameSearcher, bool) {
	s, ok := r.Searchers[source]
	return s, ok
}

// Barcode looks up a packaged product
func (r *Registry) Barcode(ctx context.Context, code string) (*domain.Food, error) {
	if r.Barcodes == nil {
		return nil, fmt.Errorf("%w: no barcode source", ErrUnsupported)
	}
	return r.Barcodes.SearchByBarcode(ctx, code)
}

// Resolve fetches a food not yet stored locally. Custom foods only live in the repository.
func (r *Registry) Resolve(ctx context.Context, foodID string) (*domain.Food, error) {
	source, native, err := domain.ParseFoodID(foodID)
	if err != nil {
		return nil, err
	}
	switch source {
	case domain.SourceUSDA:
		if r.IDs != nil {
			return r.IDs.LookupByID(ctx, native)
		}
	case domain.SourceOpenFoodFacts:
		if r.Barcodes != nil {
			return r.Barcodes.SearchByBarcode(ctx, native)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, foodID)
}
