package index

import (
	"context"

	"github.com/japaniel/glossary/pkg/dictionary"
)

// FileSource reads terms from a JSON file on every call.
type FileSource struct {
	Path string
}

func (f FileSource) ListTerms(ctx context.Context) ([]dictionary.Term, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return dictionary.LoadTerms(f.Path)
}

// StaticSource serves a fixed term list.
type StaticSource []dictionary.Term

func (s StaticSource) ListTerms(context.Context) ([]dictionary.Term, error) {
	return append([]dictionary.Term(nil), s...), nil
}
