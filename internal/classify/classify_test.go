package classify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const table = "关键词,分类\nA,tech\n明星,celebrity\nA,finance\n"

func TestParse_LastWinsByDefault(t *testing.T) {
	m, dups, err := Parse(strings.NewReader(table), LastWins)
	require.NoError(t, err)

	assert.Equal(t, "finance", m.Classify("A"))
	assert.Equal(t, "celebrity", m.Classify("明星"))
	assert.Equal(t, 2, m.Len())
	require.Len(t, dups, 1)
	assert.Equal(t, Duplicate{Keyword: "A", Kept: "finance", Rejected: "tech", Line: 4}, dups[0])
}

func TestParse_FirstWins(t *testing.T) {
	m, dups, err := Parse(strings.NewReader(table), FirstWins)
	require.NoError(t, err)

	assert.Equal(t, "tech", m.Classify("A"))
	require.Len(t, dups, 1)
	assert.Equal(t, "tech", dups[0].Kept)
}

func TestClassify_UnknownKeyword(t *testing.T) {
	m := New(map[string]string{"A": "tech"})
	assert.Equal(t, "tech", m.Classify("A"))
	assert.Equal(t, Unknown, m.Classify("B"))
	assert.Equal(t, Unknown, CategoryMap{}.Classify("A"))
}

func TestNew_CopiesEntries(t *testing.T) {
	src := map[string]string{"A": "tech"}
	m := New(src)
	src["A"] = "changed"
	assert.Equal(t, "tech", m.Classify("A"))
}

func TestLoad_BOMAndShortRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyword and classification.txt")
	content := "\ufeffkeyword,category\nA,tech\nlonely\n , blank\nB, sports \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m, dups, err := Load(path, LastWins)
	require.NoError(t, err)
	assert.Empty(t, dups)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, "sports", m.Classify("B"))
	assert.Equal(t, Unknown, m.Classify("lonely"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.txt"), LastWins)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, LastWins, p)

	p, err = ParsePolicy("FIRST")
	require.NoError(t, err)
	assert.Equal(t, FirstWins, p)

	_, err = ParsePolicy("random")
	assert.Error(t, err)
}
