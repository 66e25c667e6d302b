// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianVitals/services/llm"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/config"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/conversation"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/handlers"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/metricstore"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/pipeline"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/routes"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/vectorindex"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "vitals-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("vitals-orchestrator")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func newWeaviateClient() *weaviate.Client {
	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")
	if weaviateURL == "" {
		log.Fatal("WEAVIATE_SERVICE_URL is required")
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		log.Fatalf("WEAVIATE_SERVICE_URL is invalid: %q", weaviateURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		log.Fatalf("Failed to create Weaviate client: %v", err)
	}
	return client
}

func main() {
	port := os.Getenv("ORCHESTRATOR_PORT")
	if port == "" {
		port = "12310"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	// --- Guidance index (Weaviate) ---
	weaviateClient := newWeaviateClient()
	index := vectorindex.New(weaviateClient)
	if err := index.EnsureClass(context.Background()); err != nil {
		log.Fatalf("Failed to ensure guidance class: %v", err)
	}

	// --- Metric store (InfluxDB) ---
	metrics, err := metricstore.NewInfluxStore(
		os.Getenv("INFLUXDB_URL"),
		os.Getenv("INFLUXDB_TOKEN"),
		os.Getenv("INFLUXDB_ORG"),
		os.Getenv("INFLUXDB_BUCKET"),
		0,
	)
	if err != nil {
		log.Fatalf("Failed to connect to InfluxDB: %v", err)
	}
	defer metrics.Close()

	// --- Conversation history (BadgerDB) ---
	convPath := os.Getenv("CONVERSATION_DB_PATH")
	if convPath == "" {
		convPath = "/data/conversations"
		slog.Warn("CONVERSATION_DB_PATH not set, defaulting", "path", convPath)
	}
	conversations, err := conversation.Open(convPath)
	if err != nil {
		log.Fatalf("Failed to open conversation store: %v", err)
	}
	defer conversations.Close()

	// --- LLM client ---
	log.Println("Configuring the LLM Client")
	llmClient, err := llm.NewOpenAIClient()
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	// --- Runtime metric configuration ---
	cfgStore := config.NewStoreFromEnv()

	// --- Assemble the QA pipeline ---
	qa := pipeline.New(
		pipeline.NewParseUserStage(),
		pipeline.NewPullMetricsStage(metrics),
		pipeline.NewAnalyzeMetricsStage(),
		pipeline.NewRetrieveGuidanceStage(llmClient, index),
		pipeline.NewSafetyStage(),
		pipeline.NewAnswerStage(llmClient),
	)

	router := gin.Default()
	router.Use(otelgin.Middleware("vitals-orchestrator"))

	routes.SetupRoutes(router, routes.Deps{
		Chat: handlers.ChatDeps{
			Pipeline:      qa,
			Conversations: conversations,
			Config:        cfgStore,
		},
		Index:    index,
		Embedder: llmClient,
		Metrics:  metrics,
		Config:   cfgStore,
		APIKey:   os.Getenv("ORCHESTRATOR_API_KEY"),
	})

	log.Println("Starting the orchestrator server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
