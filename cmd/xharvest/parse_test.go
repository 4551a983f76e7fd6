package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"xharvest/internal/extract"
)

func TestParseFileUnwrapsResultPath(t *testing.T) {
	result, err := os.ReadFile(filepath.Join("..", "..", "internal", "extract", "testdata", "tweet_result.json"))
	require.NoError(t, err)
	body := `{"data":{"tweetResult":{"result":` + string(result) + `}}}`
	path := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	rec, err := parseFile(path, "data.tweetResult.result")
	require.NoError(t, err)
	require.Equal(t, "1266000000000000001", rec.ID)
	require.Equal(t, "civicdata", rec.Author.Username)
}

func TestParseFileMissingResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data":{}}`), 0o644))
	_, err := parseFile(path, "data.tweetResult.result")
	require.True(t, errors.Is(err, extract.ErrMalformedPayload))
}

func TestParseCommandPrintsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"legacy":{"id_str":"7","full_text":"hi"}}`), 0o644))

	cmd := parseCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--result-path", "", path})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "id,"))
	require.True(t, strings.HasPrefix(lines[1], "7,"))
}
