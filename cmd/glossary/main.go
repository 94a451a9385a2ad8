package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/japaniel/glossary/internal/config"
	"github.com/japaniel/glossary/internal/id"
	"github.com/japaniel/glossary/internal/logger"
	"github.com/japaniel/glossary/pkg/dictionary"
)

func main() {
	urlFlag := flag.String("url", "", "Fetch an article, annotate it and print the HTML")
	outFlag := flag.String("out", "", "Write the annotated article here instead of stdout")
	dbFlag := flag.String("db", "", "Path to SQLite database (overrides SQLITE_PATH)")
	importFlag := flag.String("import-terms", "", "Path to a terms JSON file to import into the store")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbFlag != "" {
		cfg.SQLite.Path = *dbFlag
	}
	logger.Setup(cfg)

	if err := id.Init(cfg.NodeID); err != nil {
		log.Fatalf("Failed to initialize id generator: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *importFlag != "" {
		if err := importTerms(ctx, cfg, *importFlag); err != nil {
			log.Fatalf("Import failed: %v", err)
		}
		return
	}

	if err := dictionary.EnsureTerms(ctx, cfg.Terms.Path, cfg.Terms.URL); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v. Serving terms already in the store.\n", err)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	if *urlFlag != "" {
		if err := annotateURL(ctx, a, *urlFlag, *outFlag); err != nil {
			log.Fatalf("Annotation failed: %v", err)
		}
		return
	}

	if err := serve(ctx, a); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// importTerms loads a terms file into the configured store.
func importTerms(ctx context.Context, cfg config.Config, path string) error {
	terms, err := dictionary.LoadTerms(path)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d terms from %s\n", len(terms), path)

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()
	if b.terms == nil {
		return fmt.Errorf("GLOSSARY_STORE=%s has no term table to import into", cfg.Store)
	}

	n, err := b.terms.ImportTerms(ctx, terms)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d terms into the %s store.\n", n, cfg.Store)
	return nil
}
