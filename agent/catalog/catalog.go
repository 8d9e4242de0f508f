package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
)

// Catalog resolves the provider list for a vertical, falling back to the
// default vertical when the requested one cannot be loaded.
type Catalog struct {
	source          contractx.CatalogSource
	defaultVertical string
}

func New(source contractx.CatalogSource, defaultVertical string) (*Catalog, error) {
	if source == nil {
		return nil, errors.New("catalog source is required")
	}
	defaultVertical = strings.TrimSpace(defaultVertical)
	if defaultVertical == "" {
		return nil, errors.New("default vertical is required")
	}
	return &Catalog{source: source, defaultVertical: defaultVertical}, nil
}

// Load returns the catalog for vertical. A missing, malformed or empty catalog
// is replaced by the default vertical's; ErrCatalogLoad means neither loaded.
func (c *Catalog) Load(ctx context.Context, vertical string) ([]contractx.Provider, error) {
	vertical = strings.TrimSpace(vertical)
	if vertical == "" {
		vertical = c.defaultVertical
	}

	providers, err := c.loadValid(ctx, vertical)
	if err == nil {
		return providers, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if vertical == c.defaultVertical {
		return nil, fmt.Errorf("%w: %s: %v", contractx.ErrCatalogLoad, vertical, err)
	}

	log.Warn().
		Err(err).
		Str("vertical", vertical).
		Str("fallback", c.defaultVertical).
		Msg("provider catalog unavailable, using default vertical")

	providers, err = c.loadValid(ctx, c.defaultVertical)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: default %s: %v", contractx.ErrCatalogLoad, c.defaultVertical, err)
	}
	return providers, nil
}

func (c *Catalog) loadValid(ctx context.Context, vertical string) ([]contractx.Provider, error) {
	providers, err := c.source.Load(ctx, vertical)
	if err != nil {
		return nil, err
	}
	if err := validateCatalog(providers); err != nil {
		return nil, err
	}
	return providers, nil
}

func validateCatalog(providers []contractx.Provider) error {
	if len(providers) == 0 {
		return contractx.ErrCatalogEmpty
	}
	seen := make(map[string]struct{}, len(providers))
	for i, p := range providers {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("%w: provider %d has no id", contractx.ErrValidation, i)
		}
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: provider %s has no name", contractx.ErrValidation, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate provider id %s", contractx.ErrValidation, id)
		}
		if p.PriceRangeHigh < p.PriceRangeLow {
			return fmt.Errorf("%w: provider %s price range is inverted", contractx.ErrValidation, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
