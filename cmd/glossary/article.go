package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/japaniel/glossary/pkg/annotate"
	"github.com/japaniel/glossary/pkg/db"
	"github.com/japaniel/glossary/pkg/htmltree"
	"github.com/japaniel/glossary/pkg/ingest"
)

// maxBodySize caps how much of an untrusted page is read.
const maxBodySize = 10 * 1024 * 1024

type article struct {
	URL   string
	Title string
	Root  annotate.Node
}

// fetchArticle downloads rawURL and extracts its main content.
func fetchArticle(ctx context.Context, client *http.Client, rawURL string) (*article, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	// Some sites block clients that do not look like a browser.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("got status code %d", resp.StatusCode)
	}
	if resp.ContentLength > maxBodySize {
		return nil, fmt.Errorf("content-length %d exceeds limit of %d bytes", resp.ContentLength, maxBodySize)
	}
	// One extra byte tells a body of exactly the limit from a longer one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("body exceeds limit of %d bytes", maxBodySize)
	}

	extracted, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to extract article: %w", err)
	}
	root, err := htmltree.ParseString(extracted.Content)
	if err != nil {
		return nil, err
	}
	return &article{URL: rawURL, Title: strings.TrimSpace(extracted.Title), Root: root}, nil
}

// articleDocuments splits the article into its top-level blocks. Wrappers with
// a single element child are unwrapped first.
func articleDocuments(a *article) []ingest.Document {
	node := a.Root
	for {
		kids := elementChildren(node)
		if len(kids) != 1 {
			break
		}
		node = kids[0]
	}

	var docs []ingest.Document
	for _, el := range elementChildren(node) {
		docs = append(docs, ingest.Document{Title: a.Title, Root: el})
	}
	if len(docs) == 0 {
		docs = append(docs, ingest.Document{Title: a.Title, Root: a.Root})
	}
	return docs
}

func elementChildren(n annotate.Node) []annotate.Node {
	if annotate.IsNil(n) {
		return nil
	}
	var children []annotate.Node
	switch v := n.(type) {
	case *annotate.Fragment:
		children = v.Children
	case *annotate.Element:
		children = v.Children
	}
	var out []annotate.Node
	for _, c := range children {
		if el, ok := c.(*annotate.Element); ok && el != nil {
			out = append(out, c)
		}
	}
	return out
}

// annotateURL fetches an article, prints it with glossary terms marked and,
// with the sqlite store, records which terms the article mentions.
func annotateURL(ctx context.Context, a *app, rawURL, outPath string) error {
	fmt.Fprintf(os.Stderr, "Fetching %s...\n", rawURL)
	art, err := fetchArticle(ctx, &http.Client{Timeout: 30 * time.Second}, rawURL)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Title: %s\n", art.Title)

	snap := a.holder.Load()
	res := annotate.Annotate(snap, art.Root, a.annotateOptions())
	for _, s := range res.Skipped {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", s)
	}
	rendered, err := htmltree.RenderString(res.Root)
	if err != nil {
		return err
	}

	if outPath != "" {
		if err := os.WriteFile(outPath, []byte(rendered), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", outPath, err)
		}
		fmt.Fprintf(os.Stderr, "Annotated article written to %s\n", outPath)
	} else {
		fmt.Println(rendered)
	}
	fmt.Fprintf(os.Stderr, "Marked %d distinct terms.\n", len(res.TermsFound))

	if a.backend.sqlite == nil {
		return nil
	}
	sourceID, err := db.CreateOrGetSource(ctx, a.backend.sqlite, "website_article", art.Title, art.URL, "")
	if err != nil {
		return fmt.Errorf("failed to persist source: %w", err)
	}
	n, err := ingest.NewIngester(a.backend.sqlite, snap).Ingest(ctx, sourceID, articleDocuments(art))
	if err != nil {
		return fmt.Errorf("failed to record mentions: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Source %d: linked %d term mentions.\n", sourceID, n)
	return nil
}
