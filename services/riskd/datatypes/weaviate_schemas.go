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
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// RiskEvidenceClassName is the Weaviate class name for risk evidence.
const RiskEvidenceClassName = "RiskEvidence"

// GetRiskEvidenceSchema returns the Weaviate schema for the RiskEvidence class.
//
// # Description
//
//	Defines the schema for storing risk evidence documents in Weaviate.
//	Uses text2vec-transformers for vectorizing the content field; all
//	filter fields (ticker, riskType, severity, source) skip
//	vectorization and use field tokenization for exact matching.
//
// # Outputs
//
//	*models.Class - The Weaviate class definition
func GetRiskEvidenceSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	indexSearchable := new(bool)
	*indexSearchable = true

	return &models.Class{
		Class:       RiskEvidenceClassName,
		Description: "Risk evidence documents from news, filings, and incident feeds",
		Vectorizer:  "text2vec-transformers",
		ModuleConfig: map[string]interface{}{
			"text2vec-transformers": map[string]interface{}{
				"vectorizeClassName": false,
			},
		},
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "evidenceId",
				DataType:        []string{"text"},
				Description:     "Unique identifier (UUID)",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
				ModuleConfig: map[string]interface{}{
					"text2vec-transformers": map[string]interface{}{
						"skip": true,
					},
				},
			},
			{
				Name:            "content",
				DataType:        []string{"text"},
				Description:     "The evidence text shown to the reasoning model",
				IndexSearchable: indexSearchable,
				Tokenization:    "word",
				// Content is vectorized for semantic search
			},
			{
				Name:            "ticker",
				DataType:        []string{"text"},
				Description:     "Uppercase ticker symbol this evidence concerns",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
				ModuleConfig: map[string]interface{}{
					"text2vec-transformers": map[string]interface{}{
						"skip": true,
					},
				},
			},
			{
				Name:            "riskType",
				DataType:        []string{"text"},
				Description:     "Risk category: infra, regulatory, sentiment, liquidity, technical, fundamental, macro",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
				ModuleConfig: map[string]interface{}{
					"text2vec-transformers": map[string]interface{}{
						"skip": true,
					},
				},
			},
			{
				Name:            "severity",
				DataType:        []string{"text"},
				Description:     "Severity grade: low, medium, high",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
				ModuleConfig: map[string]interface{}{
					"text2vec-transformers": map[string]interface{}{
						"skip": true,
					},
				},
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Ingestion source: news_feed, sec_filing, incident_report, analyst_note",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
				ModuleConfig: map[string]interface{}{
					"text2vec-transformers": map[string]interface{}{
						"skip": true,
					},
				},
			},
			{
				Name:        "eventTime",
				DataType:    []string{"date"},
				Description: "When the underlying event happened",
				ModuleConfig: map[string]interface{}{
					"text2vec-transformers": map[string]interface{}{
						"skip": true,
					},
				},
			},
		},
	}
}

// EnsureRiskEvidenceSchema creates the RiskEvidence class if it doesn't exist.
//
// # Description
//
//	Checks if the RiskEvidence class exists in Weaviate and creates it
//	if not. This operation is idempotent; the composition root calls it
//	once at startup.
//
// # Inputs
//
//	ctx - Context for cancellation
//	client - Weaviate client
//
// # Outputs
//
//	error - Non-nil if schema creation fails
func EnsureRiskEvidenceSchema(ctx context.Context, client *weaviate.Client) error {
	schema := GetRiskEvidenceSchema()

	// Check if class already exists
	_, err := client.Schema().ClassGetter().WithClassName(RiskEvidenceClassName).Do(ctx)
	if err == nil {
		slog.Info("RiskEvidence schema already exists")
		return nil
	}

	// Create the class
	slog.Info("Creating RiskEvidence schema")
	if err := client.Schema().ClassCreator().WithClass(schema).Do(ctx); err != nil {
		return fmt.Errorf("creating RiskEvidence schema: %w", err)
	}

	slog.Info("RiskEvidence schema created successfully")
	return nil
}

// DeleteRiskEvidenceSchema removes the RiskEvidence class from Weaviate.
//
// # Description
//
//	Deletes the RiskEvidence class and all its objects.
//	Use with caution - this is irreversible.
//
// # Inputs
//
//	ctx - Context for cancellation
//	client - Weaviate client
//
// # Outputs
//
//	error - Non-nil if deletion fails
func DeleteRiskEvidenceSchema(ctx context.Context, client *weaviate.Client) error {
	if err := client.Schema().ClassDeleter().WithClassName(RiskEvidenceClassName).Do(ctx); err != nil {
		return fmt.Errorf("deleting RiskEvidence schema: %w", err)
	}

	slog.Info("RiskEvidence schema deleted")
	return nil
}
