package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3")

	out := buf.String()
	assert.Contains(t, out, "v1.2.3")
	assert.Contains(t, out, "/quit")
	assert.Len(t, bannerColors, len(bannerLines))
}

func TestNewRenderer(t *testing.T) {
	render := NewRenderer(40)
	out, err := render("**Welcome** to the farm helpline")
	require.NoError(t, err)
	assert.Contains(t, out, "Welcome")
}

func TestPlainRenderer(t *testing.T) {
	out, err := PlainRenderer("1. Wheat\n2. Rice")
	require.NoError(t, err)
	assert.Equal(t, "1. Wheat\n2. Rice", out)
	assert.True(t, strings.HasPrefix(out, "1."))
}
