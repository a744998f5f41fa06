// cmd/tools/index-bootstrap/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"marketplace-search/internal/common/config"
	"marketplace-search/internal/common/database"
	"marketplace-search/internal/search/esstore"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: configs/config.yaml lookup)")
	index := flag.String("index", "", "Index name (overrides search.index)")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	inspect := flag.String("inspect", "", "Print the indexed document of this listing id after bootstrap")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *index != "" {
		cfg.Search.Index = *index
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		fmt.Printf("Error creating Elasticsearch client: %v\n", err)
		os.Exit(1)
	}
	if err := es.Ping(ctx); err != nil {
		fmt.Printf("Elasticsearch unreachable: %v\n", err)
		os.Exit(1)
	}

	store := esstore.New(es.Client, esstore.Config{
		Index:   cfg.Search.Index,
		Timeout: config.GetDuration(cfg.Search.Timeout),
	})
	created, err := store.Bootstrap(ctx)
	if err != nil {
		fmt.Printf("Bootstrap failed: %v\n", err)
		os.Exit(1)
	}

	if created {
		fmt.Printf("Created index %s.\n", store.Index())
	} else {
		fmt.Printf("Index %s already exists.\n", store.Index())
	}

	if *inspect != "" {
		if err := printListing(ctx, store, *inspect); err != nil {
			fmt.Printf("Inspect failed: %v\n", err)
			os.Exit(1)
		}
	}
}

func printListing(ctx context.Context, store *esstore.Store, listingID string) error {
	doc, err := store.Get(ctx, listingID)
	if err != nil {
		return err
	}
	if doc == nil {
		fmt.Printf("Listing %s is not indexed.\n", listingID)
		return nil
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
