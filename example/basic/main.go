package main

import (
	"context"
	"fmt"
	"log"

	"github.com/castellan/storygraph"
	"github.com/castellan/storygraph/core/pipeline"
	"github.com/castellan/storygraph/helper"
	"github.com/castellan/storygraph/model"
)

const sampleContent = `James Bond arrived in London on a grey morning. He reported to MI6
before noon and was briefed by M about the situation in Montenegro.

Vesper Lynd met Bond at the station. She worked for the Treasury and
had been assigned to watch the money. Bond did not trust her at first.

Later that week MI6 confirmed the briefing. James Bond left London
by the night train, and Vesper Lynd followed a day behind him.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "storygraph",
		Username: "postgres",
		Password: "postgres",
		Schema:   "public",
	}

	s, err := storygraph.New(dbConfig, 384)
	if err != nil {
		log.Fatalf("Failed to create storygraph: %v", err)
	}
	defer s.Close()

	// Set up the default pipeline (sentence chunking + embeddings)
	if err := s.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}
	fmt.Printf("Extraction mode: %s\n", s.ExtractionMode())

	doc := &model.Document{
		Title:   "Casino Royale, Chapter One",
		Source:  "basic_example",
		Content: sampleContent,
		Metadata: model.Metadata{
			"author": "Example Author",
		},
	}

	ctx := context.Background()

	// Stage 1: store the document and its embedded chunks
	fmt.Println("\n=== Ingesting Document ===")
	chunks, err := s.IngestDocument(ctx, doc)
	if err != nil {
		log.Fatalf("Failed to ingest document: %v", err)
	}
	fmt.Printf("Document inserted with ID: %s\n", doc.RID)
	fmt.Printf("Inserted %d chunks\n", len(chunks))

	// Stage 2: extract, classify and merge entity candidates
	fmt.Println("\n=== Extracting Entities ===")
	candidates, report, err := s.IngestChunks(ctx, pipeline.IngestChunks(chunks))
	if err != nil {
		log.Fatalf("Failed to extract entities: %v", err)
	}
	if report.Degraded {
		fmt.Println("Extraction ran in degraded (heuristic) mode")
	}
	for _, candidate := range candidates {
		fmt.Printf("  %-14s %-13s confidence=%.2f mentions=%d\n",
			candidate.CanonicalText, candidate.Type, candidate.Confidence, candidate.MentionCount)
	}

	// Stage 3: review and commit accepted candidates to the graph
	fmt.Println("\n=== Reviewing Candidates ===")
	stats := s.Review(candidates)
	fmt.Printf("Reviewed %d candidates: %d accepted, %d rejected, %d pending\n",
		stats.Total, stats.Accepted, stats.Rejected, stats.Pending)

	nodes, err := s.CommitAccepted(ctx, candidates, "basic_example")
	if err != nil {
		log.Fatalf("Failed to commit candidates: %v", err)
	}
	fmt.Printf("Committed %d graph nodes\n", len(nodes))

	// Stage 4: assert a relationship between two committed nodes
	bondID := model.DeriveNodeID("James Bond", model.EntityTypePerson)
	mi6ID := model.DeriveNodeID("MI6", model.EntityTypeOrganization)
	if _, err := s.AssertEdge(bondID, mi6ID, "reports_to", 0.9); err != nil {
		log.Printf("Failed to assert edge: %v", err)
	} else {
		fmt.Println("Asserted edge: James Bond -[reports_to]-> MI6")
	}

	graph, err := s.GetGraph("basic_example")
	if err != nil {
		log.Fatalf("Failed to load graph: %v", err)
	}
	fmt.Printf("Graph now holds %d nodes and %d edges\n", len(graph.Nodes), len(graph.Edges))

	// Stage 5: hybrid query over chunks and graph
	queryText := "Where does James Bond report?"
	fmt.Printf("\n=== Querying: %s ===\n", queryText)

	response, err := s.Query(ctx, queryText, 5)
	if err != nil {
		log.Fatalf("Failed to query: %v", err)
	}
	fmt.Printf("Rankers used: %v (degraded: %v)\n", response.Rankers, response.Degraded)
	if response.MatchedNode != nil {
		fmt.Printf("Matched graph node: %s (%s)\n", response.MatchedNode.Name, response.MatchedNode.Type)
	}
	for i, result := range response.Results {
		fmt.Printf("\n--- Result %d ---\n", i+1)
		fmt.Printf("Chunk: %s\n", result.DocumentID)
		fmt.Printf("Fused score: %.4f\n", result.FusedScore)
		fmt.Printf("Sources: %v\n", result.Sources)
	}

	fmt.Println("\nBasic example completed successfully!")
}
