package bankfeed

import (
	"context"
	"fmt"
	"strings"

	"NexoCorpERP/internal/logger"
)

// UpsertBatch reconciles a normalized batch against the ledger: records
// without an external id are dropped, the rest are partitioned into new
// versus already-known by one batched existence check, then written in a
// single conflict-replacing insert.
func UpsertBatch(ctx context.Context, store Store, records []CanonicalTransaction) (UpsertResult, error) {
	var result UpsertResult

	usable := make([]CanonicalTransaction, 0, len(records))
	dropped := 0
	for _, rec := range records {
		if strings.TrimSpace(rec.ExternalID) == "" {
			dropped++
			continue
		}
		usable = append(usable, rec)
	}
	if dropped > 0 {
		logger.Sync(fmt.Sprintf("upsert: dropped %d records without external id", dropped))
	}
	if len(usable) == 0 {
		return result, nil
	}

	// The write is one multi-row ON CONFLICT statement, which cannot touch
	// the same external id twice. Collapse intra-batch duplicates keeping
	// the last occurrence, the same record the statement would have ended
	// up writing row by row.
	seen := make(map[string]int, len(usable))
	deduped := make([]CanonicalTransaction, 0, len(usable))
	for _, rec := range usable {
		if pos, ok := seen[rec.ExternalID]; ok {
			deduped[pos] = rec
			continue
		}
		seen[rec.ExternalID] = len(deduped)
		deduped = append(deduped, rec)
	}
	if len(deduped) < len(usable) {
		logger.Sync(fmt.Sprintf("upsert: collapsed %d duplicate external ids within batch", len(usable)-len(deduped)))
	}

	ids := make([]string, len(deduped))
	for i, rec := range deduped {
		ids[i] = rec.ExternalID
	}
	existing, err := store.ExistingExternalIDs(ctx, ids)
	if err != nil {
		return result, err
	}

	// counts decided before the write, one per distinct id
	for _, rec := range deduped {
		if existing[rec.ExternalID] {
			result.Updated++
		} else {
			result.Inserted++
		}
	}

	if err := store.UpsertTransactions(ctx, deduped); err != nil {
		return UpsertResult{}, err
	}
	return result, nil
}
