// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command riskd starts the AleutianRisk assessment daemon.
//
// This is the main entry point for the containerized risk service. It
// reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - RISKD_PORT: HTTP server port (default: 12250)
//   - LLM_BACKEND_TYPE: LLM provider - ollama, openai (default: ollama)
//   - LLM_RATE_LIMIT: LLM calls per second, 0 disables (default: 0)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (optional)
//   - POSTGRES_SERVICE_URL: Postgres feature store DSN (optional)
//   - INFLUXDB_URL: InfluxDB price history URL (optional)
//   - INFLUXDB_TOKEN: InfluxDB auth token
//   - INFLUXDB_ORG: InfluxDB organization (default: aleutian-finance)
//   - INFLUXDB_BUCKET: InfluxDB bucket (default: financial-data)
//   - REDIS_ADDR: Shared Redis cache address (optional)
//   - RISKD_CACHE_PATH: Embedded Badger cache directory (optional)
//   - RISKD_WEIGHTS_PATH: Ranking weights yaml, hot-reloaded (optional)
//   - RISKD_GLOBAL_TIMEOUT: Per-assessment budget (default: 1.6s)
//   - RISKD_LOG_DIR: Also write JSON logs to this directory (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: aleutian-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o riskd ./cmd/riskd
//
//	# Run
//	./riskd
//
//	# Or via container
//	podman-compose up riskd
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/AleutianAI/AleutianRisk/pkg/logging"
	"github.com/AleutianAI/AleutianRisk/services/riskd"
)

func main() {
	// Load optional .env overrides before reading the environment.
	// Containers set real env vars; the file is for bare-metal dev runs.
	_ = godotenv.Load()

	// Setup structured logging. RISKD_LOG_DIR adds a JSON file
	// destination alongside stderr.
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  os.Getenv("RISKD_LOG_DIR"),
		Service: "riskd",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// Build configuration from environment variables
	cfg := riskd.Config{
		Port:          getEnvInt("RISKD_PORT", 12250),
		GinMode:       os.Getenv("GIN_MODE"),
		LLMBackend:    getEnvString("LLM_BACKEND_TYPE", "ollama"),
		LLMRateLimit:  getEnvFloat("LLM_RATE_LIMIT", 0),
		WeaviateURL:   os.Getenv("WEAVIATE_SERVICE_URL"),
		PostgresURL:   os.Getenv("POSTGRES_SERVICE_URL"),
		InfluxURL:     os.Getenv("INFLUXDB_URL"),
		InfluxToken:   os.Getenv("INFLUXDB_TOKEN"),
		InfluxOrg:     getEnvString("INFLUXDB_ORG", "aleutian-finance"),
		InfluxBucket:  getEnvString("INFLUXDB_BUCKET", "financial-data"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		CachePath:     os.Getenv("RISKD_CACHE_PATH"),
		WeightsPath:   os.Getenv("RISKD_WEIGHTS_PATH"),
		GlobalTimeout: getEnvDuration("RISKD_GLOBAL_TIMEOUT", 0),
		OTelEndpoint:  getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "aleutian-otel-collector:4317"),
	}

	slog.Info("Starting riskd",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"weaviate_url", cfg.WeaviateURL,
		"postgres", cfg.PostgresURL != "",
		"influxdb", cfg.InfluxURL != "",
	)

	svc, err := riskd.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create riskd: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Riskd error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns the environment variable as float64 or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default.
// Accepts Go duration syntax ("1.6s", "250ms").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
