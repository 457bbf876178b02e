// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required to
// convert Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Type Parameters
//
//   - T: The target struct type with json tags matching the response shape.
//
// # Inputs
//
//   - resp: The GraphQL response from Weaviate client's Do() method.
//
// # Outputs
//
//   - *T: Pointer to the parsed struct.
//   - error: Non-nil if response is nil or parsing fails.
//
// # Example
//
//	resp, err := client.GraphQL().Get().WithClassName("RiskEvidence").Do(ctx)
//	if err != nil { ... }
//
//	parsed, err := ParseGraphQLResponse[RiskEvidenceQueryResponse](resp)
//	if err != nil { ... }
//
//	for _, ev := range parsed.Get.RiskEvidence {
//	    fmt.Println(ev.Content)
//	}
//
// # Limitations
//
//   - Requires the target type to exactly match the expected response structure.
//   - Type mismatches will result in zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// RiskEvidence Query Types
// =============================================================================

// RiskEvidenceQueryResponse represents the response from querying the
// RiskEvidence class.
//
// # Fields
//
//   - Get.RiskEvidence: Array of evidence objects with search metadata.
type RiskEvidenceQueryResponse struct {
	Get struct {
		RiskEvidence []RiskEvidenceResult `json:"RiskEvidence"`
	} `json:"Get"`
}

// RiskEvidenceResult represents a single evidence document from a query.
type RiskEvidenceResult struct {
	EvidenceID string `json:"evidenceId"`
	Content    string `json:"content"`
	Ticker     string `json:"ticker"`
	RiskType   string `json:"riskType"`
	Severity   string `json:"severity"`
	Source     string `json:"source"`
	EventTime  string `json:"eventTime"`
	Additional struct {
		ID        string   `json:"id"`
		Distance  *float32 `json:"distance"`
		Certainty *float32 `json:"certainty"`
	} `json:"_additional"`
}

// Relevance maps the search metadata onto a [0,1] relevance value.
//
// Certainty is already normalized by Weaviate and preferred when
// present. Otherwise cosine distance (range [0,2]) is folded into
// [0,1]. A result carrying neither reads as neutral relevance.
func (r *RiskEvidenceResult) Relevance() float64 {
	if r.Additional.Certainty != nil {
		return float64(*r.Additional.Certainty)
	}
	if r.Additional.Distance != nil {
		return 1.0 - float64(*r.Additional.Distance)/2.0
	}
	return 0.5
}

// ToEvidenceItem converts a query result into a validated EvidenceItem.
//
// # Description
//
// Parses the RFC3339 event time, resolves the source ID (the stored
// evidenceId, falling back to the Weaviate object UUID), and runs the
// adapter-boundary validation. Rows with unknown risk types or
// severities are rejected here rather than flowing into ranking.
//
// # Outputs
//
//   - EvidenceItem: The validated item
//   - error: Non-nil if the row is malformed; callers log and skip
func (r *RiskEvidenceResult) ToEvidenceItem() (EvidenceItem, error) {
	riskType, err := ParseRiskType(r.RiskType)
	if err != nil {
		return EvidenceItem{}, err
	}
	severity, err := ParseSeverity(r.Severity)
	if err != nil {
		return EvidenceItem{}, err
	}

	eventTime, err := time.Parse(time.RFC3339, r.EventTime)
	if err != nil {
		return EvidenceItem{}, fmt.Errorf("malformed eventTime %q: %w", r.EventTime, err)
	}

	sourceID := r.EvidenceID
	if sourceID == "" {
		sourceID = r.Additional.ID
	}

	return NewEvidenceItem(sourceID, SourceVectorSearch, riskType, severity, r.Content, eventTime, r.Relevance())
}
