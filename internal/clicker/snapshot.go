// internal/clicker/snapshot.go
package clicker

import (
	"context"
	"fmt"
)

// Snapshot captures the three signals the classifier compares around a
// click: where the browser is, what the document calls itself, and what
// the page structurally looks like.
type Snapshot struct {
	URL         string
	Title       string
	Fingerprint Fingerprint
}

// collectDocumentsJS serializes the top document and every reachable
// same-origin frame document. Cross-origin frames throw on access and are
// skipped.
const collectDocumentsJS = `(() => {
	const docs = [];
	const walk = (doc) => {
		if (doc.documentElement) { docs.push(doc.documentElement.outerHTML); }
		for (const frame of doc.querySelectorAll("iframe, frame")) {
			let child = null;
			try { child = frame.contentDocument; } catch (e) { child = null; }
			if (child) { walk(child); }
		}
	};
	walk(document);
	return docs;
})()`

// TakeSnapshot reads the current URL, title and document structure from
// the session.
func TakeSnapshot(ctx context.Context, sess Session) (Snapshot, error) {
	url, err := sess.Location(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot location: %w", err)
	}

	title, err := sess.Title(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot title: %w", err)
	}

	var docs []string
	if err := sess.Evaluate(ctx, collectDocumentsJS, &docs); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot documents: %w", err)
	}

	fp, err := FingerprintHTML(docs)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{URL: url, Title: title, Fingerprint: fp}, nil
}
