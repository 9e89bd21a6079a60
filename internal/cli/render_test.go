package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/devhost/internal/site"
)

func TestSites(t *testing.T) {
	var buf bytes.Buffer
	Sites(&buf, []site.Site{
		{Name: "blog", Alias: "blog.test", Port: 8000, PHPVersion: "8.4.12", Running: true},
		{Name: "shop-admin", Alias: "shop-admin.test"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, lines[1], "blog.test")
	assert.Contains(t, lines[1], "8000")
	assert.Contains(t, lines[1], "running")
	assert.Contains(t, lines[2], "stopped")
	assert.Contains(t, lines[2], " - ")

	// Columns line up: the alias column starts at the same offset on every row.
	assert.Equal(t, strings.Index(lines[0], "ALIAS"), strings.Index(lines[1], "blog.test"))
	assert.Equal(t, strings.Index(lines[0], "ALIAS"), strings.Index(lines[2], "shop-admin.test"))
}

func TestSites_Empty(t *testing.T) {
	var buf bytes.Buffer
	Sites(&buf, nil)
	assert.Contains(t, buf.String(), "no sites")
}

func TestStatusWarningsError(t *testing.T) {
	var buf bytes.Buffer
	Status(&buf, true)
	Warnings(&buf, []string{"hosts: permission denied"})
	Error(&buf, errors.New("connection refused"))

	out := buf.String()
	assert.Contains(t, out, "services: running")
	assert.Contains(t, out, "warning: hosts: permission denied")
	assert.Contains(t, out, "error: connection refused")
}

func TestPHPVersions(t *testing.T) {
	var buf bytes.Buffer
	PHPVersions(&buf, []string{"8.4.12", "8.3.7"}, "8.3.7")

	assert.Equal(t, "  8.4.12\n* 8.3.7\n", buf.String())
}
