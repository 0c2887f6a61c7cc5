// Command mapcheck runs a batch of column names through the mapping
// pipeline from the command line. It is an operator tool for checking how a
// schema handles a real header row before wiring up an import.
//
// Only the string tiers run by default; set EMBEDDING_ENDPOINT to exercise
// the semantic tier against a live provider.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fieldmapapp/fieldmap-server/internal/embedding"
	"github.com/fieldmapapp/fieldmap-server/internal/logger"
	"github.com/fieldmapapp/fieldmap-server/internal/mapper"
	"github.com/fieldmapapp/fieldmap-server/internal/match"
	"github.com/fieldmapapp/fieldmap-server/internal/schema"
)

func main() {
	schemaDir := flag.String("schema-dir", "schemas", "Directory containing target schema JSON files")
	entity := flag.String("entity", "", "Entity to map against (required)")
	fields := flag.String("fields", "", "Comma-separated source column names (required)")
	shared := flag.Bool("allow-shared", false, "Allow several sources to map to one target")
	flag.Parse()

	if *entity == "" || *fields == "" {
		flag.Usage()
		os.Exit(2)
	}

	log.SetFlags(0)

	appLogger := logger.New(logger.Config{Level: logger.ParseLevel("warn")})

	registry, err := schema.NewRegistry(*schemaDir, appLogger.Logger)
	if err != nil {
		log.Fatalf("load schemas: %v", err)
	}

	var semantic match.Stage
	if endpoint := os.Getenv("EMBEDDING_ENDPOINT"); endpoint != "" {
		provider := embedding.NewHTTPProvider(embedding.HTTPProviderConfig{
			Endpoint: endpoint,
			Model:    os.Getenv("EMBEDDING_MODEL"),
			APIKey:   os.Getenv("EMBEDDING_API_KEY"),
		}, appLogger.Logger)
		manager := embedding.NewManager(provider, nil, appLogger.Logger)
		semantic = embedding.NewSemanticStage(manager, match.DefaultThresholds().LLMFloor)
	}

	m := mapper.New(mapper.Options{
		Schemas:    registry,
		Semantic:   semantic,
		Thresholds: match.DefaultThresholds(),
		Logger:     appLogger.Logger,
	})

	sources := make([]string, 0)
	for _, f := range strings.Split(*fields, ",") {
		sources = append(sources, strings.TrimSpace(f))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := m.MapFields(ctx, &mapper.Request{
		EntityName:         *entity,
		SourceFields:       sources,
		AllowSharedTargets: *shared,
	})
	if err != nil {
		log.Fatalf("map fields: %v", err)
	}

	fmt.Printf("entity: %s (schema %s)\n", result.EntityName, result.SchemaVersion)
	fmt.Printf("stages: semantic=%s llm=%s\n\n", result.SemanticStage, result.LLMStage)

	for _, mp := range result.Mappings {
		if mp.Mapped() {
			fmt.Printf("  %-30s -> %-25s %.2f (%s)\n", mp.Source, mp.Target, mp.Confidence, mp.Method)
		} else {
			fmt.Printf("  %-30s -> (unmapped)\n", mp.Source)
		}
		for _, alt := range mp.Alternatives {
			fmt.Printf("  %-30s    alt: %-21s %.2f\n", "", alt.Target, alt.Confidence)
		}
	}

	if len(result.UnmappedRequiredTargets) > 0 {
		fmt.Printf("\nrequired targets left unmapped: %s\n", strings.Join(result.UnmappedRequiredTargets, ", "))
	}
	if len(result.SkippedSources) > 0 {
		fmt.Printf("skipped sources: %s\n", strings.Join(result.SkippedSources, ", "))
	}
}
