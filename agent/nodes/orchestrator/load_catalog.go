package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
)

func LoadCatalog(ctx context.Context, in *GraphState, catalog contractx.CatalogLoader) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	providers, err := catalog.Load(ctx, in.Vertical)
	if err != nil {
		return nil, err
	}
	in.Catalog = providers
	return in, nil
}
