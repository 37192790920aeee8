package export

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/jonathan/data-export/internal/generation"
	"github.com/jonathan/data-export/internal/types"
)

// family groups the holdings and items that belong to one parent record
type family struct {
	holdings []json.RawMessage
	items    []json.RawMessage
}

// instanceFamilies loads the holdings of the given instances and the items of those
// holdings, grouped by instance id. Only the current generation of each child is kept.
func instanceFamilies(ctx context.Context, run *shardRun, instanceIDs []uuid.UUID) map[uuid.UUID]*family {
	families := make(map[uuid.UUID]*family, len(instanceIDs))
	for _, id := range instanceIDs {
		families[id] = &family{}
	}

	holdings := generation.Current(run.deps.Tenants.Children(ctx, run.job.Context, types.KindHoldings, instanceIDs))
	holdingOwner := make(map[uuid.UUID]uuid.UUID, len(holdings))
	for _, h := range holdings {
		if h.ParentID == nil {
			continue
		}
		f, ok := families[*h.ParentID]
		if !ok {
			continue
		}
		f.holdings = append(f.holdings, h.Content)
		holdingOwner[h.ExternalID] = *h.ParentID
	}
	if len(holdingOwner) == 0 {
		return families
	}

	holdingIDs := make([]uuid.UUID, 0, len(holdingOwner))
	for _, h := range holdings {
		if _, ok := holdingOwner[h.ExternalID]; ok {
			holdingIDs = append(holdingIDs, h.ExternalID)
		}
	}
	for _, item := range generation.Current(run.deps.Tenants.Children(ctx, run.job.Context, types.KindItem, holdingIDs)) {
		if item.ParentID == nil {
			continue
		}
		if owner, ok := holdingOwner[*item.ParentID]; ok {
			families[owner].items = append(families[owner].items, item.Content)
		}
	}
	return families
}

// holdingsItems loads the items of the given holdings, grouped by holdings id
func holdingsItems(ctx context.Context, run *shardRun, holdingIDs []uuid.UUID) map[uuid.UUID][]json.RawMessage {
	items := make(map[uuid.UUID][]json.RawMessage, len(holdingIDs))
	for _, item := range generation.Current(run.deps.Tenants.Children(ctx, run.job.Context, types.KindItem, holdingIDs)) {
		if item.ParentID == nil {
			continue
		}
		items[*item.ParentID] = append(items[*item.ParentID], item.Content)
	}
	return items
}

func familyContent(f *family) ([]json.RawMessage, []json.RawMessage) {
	if f == nil {
		return nil, nil
	}
	return f.holdings, f.items
}
