// internal/clicker/fingerprint.go
package clicker

import (
	"fmt"
	"hash"
	"hash/fnv"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// Fingerprint is a cheap structural summary of a rendered page: how many
// element nodes it holds and a hash of its visible text. Two fingerprints
// being equal is the signal that a click changed nothing a user could see.
// Attribute churn (including the locator's tagging) does not move it.
type Fingerprint struct {
	NodeCount int
	TextHash  uint64
}

// skippedContainers hold text that never renders.
var skippedContainers = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
	"head":     {},
}

var hasherPool = sync.Pool{
	New: func() any { return fnv.New64a() },
}

// FingerprintHTML folds one or more serialized documents (top frame
// first, then any same-origin frames) into a single fingerprint.
func FingerprintHTML(docs []string) (Fingerprint, error) {
	h := hasherPool.Get().(hash.Hash64)
	defer hasherPool.Put(h)
	h.Reset()

	total := 0
	for _, doc := range docs {
		root, err := html.Parse(strings.NewReader(doc))
		if err != nil {
			return Fingerprint{}, fmt.Errorf("failed to parse document snapshot: %w", err)
		}
		total += foldNode(root, h, false)
	}

	return Fingerprint{NodeCount: total, TextHash: h.Sum64()}, nil
}

// foldNode counts element nodes and streams normalized visible text into
// the hasher. Text under non-rendering containers is excluded.
func foldNode(n *html.Node, w io.Writer, hidden bool) int {
	count := 0
	switch n.Type {
	case html.ElementNode:
		count++
		if _, skip := skippedContainers[n.Data]; skip {
			hidden = true
		}
	case html.TextNode:
		if !hidden {
			if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
				io.WriteString(w, text)
				io.WriteString(w, "\x1e")
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count += foldNode(c, w, hidden)
	}
	return count
}
