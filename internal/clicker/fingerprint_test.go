// internal/clicker/fingerprint_test.go
package clicker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const basePage = `<html><head><title>Shop</title><style>.x{color:red}</style></head>
<body><div id="root"><button class="buy">Buy now</button><p>Fast shipping</p></div></body></html>`

func TestFingerprintStable(t *testing.T) {
	a, err := FingerprintHTML([]string{basePage})
	require.NoError(t, err)
	b, err := FingerprintHTML([]string{basePage})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFingerprintIgnoresAttributeChurn(t *testing.T) {
	tagged := `<html><head><title>Shop</title><style>.x{color:red}</style></head>
<body><div id="root"><button class="buy" data-deadclick-id="tok-1">Buy now</button><p>Fast shipping</p></div></body></html>`

	a, err := FingerprintHTML([]string{basePage})
	require.NoError(t, err)
	b, err := FingerprintHTML([]string{tagged})
	require.NoError(t, err)
	assert.Equal(t, a, b, "attribute-only changes must not move the fingerprint")
}

func TestFingerprintSeesTextChange(t *testing.T) {
	changed := `<html><head><title>Shop</title><style>.x{color:red}</style></head>
<body><div id="root"><button class="buy">Buy now</button><p>Out of stock</p></div></body></html>`

	a, err := FingerprintHTML([]string{basePage})
	require.NoError(t, err)
	b, err := FingerprintHTML([]string{changed})
	require.NoError(t, err)

	assert.Equal(t, a.NodeCount, b.NodeCount)
	assert.NotEqual(t, a.TextHash, b.TextHash)
}

func TestFingerprintSeesNewNodes(t *testing.T) {
	withModal := `<html><head><title>Shop</title><style>.x{color:red}</style></head>
<body><div id="root"><button class="buy">Buy now</button><p>Fast shipping</p></div>
<div class="modal"><span>Subscribe!</span></div></body></html>`

	a, err := FingerprintHTML([]string{basePage})
	require.NoError(t, err)
	b, err := FingerprintHTML([]string{withModal})
	require.NoError(t, err)

	assert.Greater(t, b.NodeCount, a.NodeCount)
	assert.NotEqual(t, a.TextHash, b.TextHash)
}

func TestFingerprintSkipsNonRenderedText(t *testing.T) {
	withScript := `<html><head><title>Shop</title><style>.x{color:red}</style></head>
<body><div id="root"><button class="buy">Buy now</button><p>Fast shipping</p></div>
<script>var state = "mutates every render";</script></body></html>`

	a, err := FingerprintHTML([]string{basePage})
	require.NoError(t, err)
	b, err := FingerprintHTML([]string{withScript})
	require.NoError(t, err)

	// The script element itself counts as a node but its text must not
	// contribute to the hash.
	assert.Equal(t, a.TextHash, b.TextHash)
	assert.Equal(t, a.NodeCount+1, b.NodeCount)
}

func TestFingerprintNormalizesWhitespace(t *testing.T) {
	reflowed := `<html><head><title>Shop</title><style>.x{color:red}</style></head>
<body><div id="root"><button class="buy">  Buy
	now  </button><p>Fast   shipping</p></div></body></html>`

	a, err := FingerprintHTML([]string{basePage})
	require.NoError(t, err)
	b, err := FingerprintHTML([]string{reflowed})
	require.NoError(t, err)
	assert.Equal(t, a.TextHash, b.TextHash)
}

func TestFingerprintFoldsFrames(t *testing.T) {
	frame := `<html><body><button>Frame button</button></body></html>`

	top, err := FingerprintHTML([]string{basePage})
	require.NoError(t, err)
	both, err := FingerprintHTML([]string{basePage, frame})
	require.NoError(t, err)

	assert.Greater(t, both.NodeCount, top.NodeCount)
	assert.NotEqual(t, top.TextHash, both.TextHash)
}
