package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	t  *testing.T
	db string
}

func (c cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	args = append([]string{"--db", c.db, "--log-level", "error"}, args...)
	err := run(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return out.String(), err
}

func TestCommands(t *testing.T) {
	c := cli{t: t, db: filepath.Join(t.TempDir(), "cards.db")}

	out, err := c.run("", "add", "한국어", "Korean", "--tag", "korean")
	require.NoError(t, err)
	assert.Contains(t, out, "Added card")

	out, err = c.run("Bonjour,Hello\nbad\n한국어,Korean\n", "import", "-", "--tag", "korean")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 cards, skipped 1 duplicates, 1 errors.")
	assert.Contains(t, out, "line 2: not enough values")

	out, err = c.run("", "search", "--prefix", "ㅎ")
	require.NoError(t, err)
	assert.Contains(t, out, "한국어")
	assert.NotContains(t, out, "Bonjour")

	_, err = c.run("", "tag", "mode", "korean", "back")
	require.NoError(t, err)
	out, err = c.run("", "tag", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "korean\trecall-back\tnone\t2 cards")

	out, err = c.run("\no\n\no\n", "study")
	require.NoError(t, err)
	assert.Contains(t, out, "한국어")
	assert.Contains(t, out, "Bonjour")
	assert.Contains(t, out, "Nothing left to study.")

	out, err = c.run("", "export", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"front": "Bonjour"`)
	assert.Contains(t, out, `"outcome": "ok"`)

	out, err = c.run("", "export")
	require.NoError(t, err)
	assert.Equal(t, "한국어,Korean,\nBonjour,Hello,\n", out)
}

func TestUsageErrors(t *testing.T) {
	c := cli{t: t, db: filepath.Join(t.TempDir(), "cards.db")}

	_, err := c.run("", "frobnicate")
	assert.ErrorIs(t, err, errUsage)

	_, err = c.run("", "add", "only-front")
	assert.ErrorIs(t, err, errUsage)

	_, err = c.run("", "tag", "mode", "missing", "back")
	assert.ErrorContains(t, err, `no tag named "missing"`)

	_, err = c.run("", "--undo-depth", "20", "list")
	assert.ErrorContains(t, err, "config")
}

func TestEditDeleteAndTagSet(t *testing.T) {
	c := cli{t: t, db: filepath.Join(t.TempDir(), "cards.db")}

	out, err := c.run("", "add", "one", "하나", "--tag", "numbers")
	require.NoError(t, err)
	id := strings.TrimSpace(strings.TrimPrefix(out, "Added card "))
	_, err = c.run("", "tag", "add", "korean", "back")
	require.NoError(t, err)

	out, err = c.run("", "edit", id, "--front", "two", "--back", "둘", "--due", "2030-01-02")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated card "+id)

	out, err = c.run("", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id+"\ttwo\t둘\tlast reviewed never")

	_, err = c.run("", "edit", id, "--front", "", "--back", "")
	assert.Error(t, err)
	_, err = c.run("", "edit", id, "--due", "soon")
	assert.ErrorContains(t, err, "invalid due date")

	_, err = c.run("", "tag", "set", id, "korean")
	require.NoError(t, err)
	out, err = c.run("", "tag", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "korean\trecall-back\tnone\t1 cards")
	assert.Contains(t, out, "numbers\tnone\tnone\t0 cards")

	out, err = c.run("", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted card "+id)
	_, err = c.run("", "delete", id)
	assert.Error(t, err)
}
