// Package tokendoc reads token documents produced by the upstream
// PDF-to-tokens service. Documents are JSON files named <document_id>.json
// under a configured directory; this process never touches PDFs itself.
package tokendoc

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/fieldforge/extract-cli/internal/model"
)

// ErrNotFound means no token document exists for the id.
var ErrNotFound = eris.New("tokendoc: document not found")

// Dir serves token documents from a directory of JSON files.
type Dir struct {
	root string
}

// NewDir returns a document source rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Load reads the full token document by id.
func (d *Dir) Load(ctx context.Context, documentID string) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := d.path(documentID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "tokendoc: read %s", documentID)
	}

	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "tokendoc: parse %s", documentID)
	}
	if doc.DocumentID == "" {
		doc.DocumentID = documentID
	}

	// Token files are not guaranteed to be pre-sorted; reading order is ours
	// to enforce.
	sort.SliceStable(doc.Tokens, func(i, j int) bool {
		return doc.Tokens[i].SequenceIndex < doc.Tokens[j].SequenceIndex
	})
	return &doc, nil
}

// Tokens implements training.TokenSource.
func (d *Dir) Tokens(ctx context.Context, documentID string) ([]model.WordToken, error) {
	doc, err := d.Load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return doc.Tokens, nil
}

// path validates the id and maps it to a file under root. Ids containing
// path separators or traversal are rejected rather than resolved.
func (d *Dir) path(documentID string) (string, error) {
	if documentID == "" {
		return "", eris.New("tokendoc: empty document id")
	}
	if strings.ContainsAny(documentID, `/\`) || documentID == "." || documentID == ".." {
		return "", eris.Errorf("tokendoc: invalid document id %q", documentID)
	}
	return filepath.Join(d.root, documentID+".json"), nil
}
