package content

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestSeedContentWithoutSource(t *testing.T) {
	s, err := NewStore(context.Background(), Config{Source: SourceNone}, testLogger())
	require.NoError(t, err)

	assert.NotEmpty(t, s.Words())
	assert.NotEmpty(t, s.Questions())
}

func TestFileSourceRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.json")
	doc := `{
		"words": ["tomte", "midsommar"],
		"questions": [
			{"question": "Vad heter Norges huvudstad?", "answer": "Oslo", "extra_info": "Grundad 1040"}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	s, err := NewStore(context.Background(), Config{Source: SourceFile, FilePath: path}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"tomte", "midsommar"}, s.Words())
	qs := s.Questions()
	require.Len(t, qs, 1)
	assert.Equal(t, "Oslo", qs[0].Answer)
	assert.Equal(t, "Grundad 1040", qs[0].Extra)

	words, questions := s.Counts()
	assert.Equal(t, 2, words)
	assert.Equal(t, 1, questions)
}

func TestFailedRefreshKeepsOldSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"words": ["tomte"]}`), 0o600))

	s, err := NewStore(context.Background(), Config{Source: SourceFile, FilePath: path}, testLogger())
	require.NoError(t, err)
	require.Equal(t, []string{"tomte"}, s.Words())

	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))
	err = s.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"tomte"}, s.Words(), "bad refresh must not clobber content")
}

func TestMissingFileFallsBackToSeeds(t *testing.T) {
	s, err := NewStore(context.Background(), Config{Source: SourceFile, FilePath: "/does/not/exist.json"}, testLogger())
	require.Error(t, err)
	require.NotNil(t, s)
	assert.NotEmpty(t, s.Words(), "seed content keeps the store usable")
}
