package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
)

// Persist merges fields into the user's record. Store failures abort the run.
func Persist(ctx context.Context, store contractx.RecordStore, userID string, fields map[string]any) error {
	if err := store.Upsert(ctx, userID, fields); err != nil {
		return fmt.Errorf("persist record for %s: %w", userID, err)
	}
	return nil
}
