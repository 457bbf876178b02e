// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sources

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/AleutianAI/AleutianRisk/services/riskd/cache"
	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
	"github.com/AleutianAI/AleutianRisk/services/riskd/observability"
)

// minVectorFetch is the floor on the Weaviate overfetch. Severity and
// window filtering happen client-side, so the raw result set has to be
// large enough to survive both and still fill FetchK.
const minVectorFetch = 30

// =============================================================================
// Vector Search Adapter
// =============================================================================

// VectorSearchAdapter retrieves semantically similar evidence from the
// RiskEvidence class in Weaviate.
//
// # Description
//
// Runs a nearText search on the query text (plus the ticker as a second
// concept when one is set), overfetches, converts and validates rows,
// then applies severity and window filters client-side before
// truncating to FetchK. Result sets are cached per probe identity so a
// repeated question inside the TTL never touches Weaviate.
//
// # Thread Safety
//
// Safe for concurrent use; the Weaviate client and cache store are both
// concurrency-safe and the adapter holds no mutable state.
type VectorSearchAdapter struct {
	client *weaviate.Client
	store  cache.Store
}

// NewVectorSearchAdapter creates a vector search adapter. A nil store
// disables result-set caching.
func NewVectorSearchAdapter(client *weaviate.Client, store cache.Store) *VectorSearchAdapter {
	if store == nil {
		store = cache.NoopStore{}
	}
	return &VectorSearchAdapter{client: client, store: store}
}

// Name returns the source identifier recorded on vector evidence.
func (v *VectorSearchAdapter) Name() string {
	return datatypes.SourceVectorSearch
}

// Fetch runs the semantic search for the probe.
//
// # Description
//
// Checks the result-set cache first, then queries Weaviate with at most
// one structured filter (ticker equality) because compound Where
// clauses defeat the vector index's pre-filtering. The severity
// threshold and the evidence window are applied to the overfetched rows
// in process. Malformed rows are logged and skipped rather than failing
// the probe.
//
// # Outputs
//
//   - []datatypes.EvidenceItem: Up to FetchK validated items, in
//     descending semantic relevance order
//   - error: A *SourceError on query failure
func (v *VectorSearchAdapter) Fetch(ctx context.Context, params ProbeParams) ([]datatypes.EvidenceItem, error) {
	key := cache.VectorSearchKey(params.QueryText, params.Ticker, params.Window, params.SeverityThreshold, params.FetchK)

	cached, hit, err := cache.GetJSON[[]datatypes.EvidenceItem](ctx, v.store, key)
	if err != nil {
		slog.Warn("vector result cache read failed, querying weaviate",
			"error", err)
	} else if m := observability.DefaultMetrics; m != nil {
		m.RecordCacheLookup(observability.ArtifactVectorSearch, hit)
	}
	if hit {
		slog.Debug("vector result cache hit", "items", len(*cached))
		return *cached, nil
	}

	items, err := v.search(ctx, params)
	if err != nil {
		return nil, err
	}

	if err := cache.SetJSON(ctx, v.store, key, items, cache.TTLVectorSearch); err != nil {
		slog.Warn("vector result cache write failed",
			"error", err)
	}
	return items, nil
}

// search executes the Weaviate query and post-filters the rows.
func (v *VectorSearchAdapter) search(ctx context.Context, params ProbeParams) ([]datatypes.EvidenceItem, error) {
	fetchLimit := params.FetchK * 3
	if fetchLimit < minVectorFetch {
		fetchLimit = minVectorFetch
	}

	concepts := []string{params.QueryText}
	if params.Ticker != "" {
		concepts = append(concepts, params.Ticker)
	}
	nearText := v.client.GraphQL().NearTextArgBuilder().WithConcepts(concepts)

	fields := []graphql.Field{
		{Name: "evidenceId"},
		{Name: "content"},
		{Name: "ticker"},
		{Name: "riskType"},
		{Name: "severity"},
		{Name: "source"},
		{Name: "eventTime"},
		{Name: "_additional { id certainty distance }"},
	}

	query := v.client.GraphQL().Get().
		WithClassName(datatypes.RiskEvidenceClassName).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(fetchLimit)

	if params.Ticker != "" {
		query = query.WithWhere(filters.Where().
			WithPath([]string{"ticker"}).
			WithOperator(filters.Equal).
			WithValueString(params.Ticker))
	}

	result, err := query.Do(ctx)
	if err != nil {
		return nil, WrapSourceError(datatypes.SourceVectorSearch, fmt.Errorf("weaviate query failed: %w", err))
	}
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, gqlErr := range result.Errors {
			msgs = append(msgs, gqlErr.Message)
		}
		return nil, WrapSourceError(datatypes.SourceVectorSearch, fmt.Errorf("weaviate graphql errors: %v", msgs))
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.RiskEvidenceQueryResponse](result)
	if err != nil {
		return nil, WrapSourceError(datatypes.SourceVectorSearch, fmt.Errorf("parsing weaviate response: %w", err))
	}

	windowStart := params.WindowStart()
	items := make([]datatypes.EvidenceItem, 0, len(parsed.Get.RiskEvidence))
	for i := range parsed.Get.RiskEvidence {
		item, err := parsed.Get.RiskEvidence[i].ToEvidenceItem()
		if err != nil {
			slog.Warn("skipping malformed vector evidence row",
				"error", err)
			continue
		}
		if item.Timestamp.Before(windowStart) {
			continue
		}
		items = append(items, item)
	}

	items = datatypes.FilterBySeverity(items, params.SeverityThreshold)
	if len(items) > params.FetchK {
		items = items[:params.FetchK]
	}
	return items, nil
}

var _ EvidenceSource = (*VectorSearchAdapter)(nil)
