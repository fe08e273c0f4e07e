package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/DayuGuo/DEVONthink-agent/internal/search"
)

func newOutputCmd(buf *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	return cmd
}

func TestSearchCmd_Flags(t *testing.T) {
	// Given: the search command
	cmd := newSearchCmd()

	// Then: all tuning flags should be registered
	for _, flag := range []string{"collection", "limit", "no-semantic", "no-related", "semantic-only", "json"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "--%s should be registered", flag)
	}
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	// Given: the search command with no arguments
	cmd := newSearchCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	// When: executing
	err := cmd.Execute()

	// Then: it should fail argument validation
	assert.Error(t, err)
}

func TestPrintResults_NoResults(t *testing.T) {
	// Given: an empty response with no index
	buf := &bytes.Buffer{}
	cmd := newOutputCmd(buf)

	// When: printing
	printResults(cmd, &search.Response{IndexAvailable: false})

	// Then: it should hint at building the index
	assert.Contains(t, buf.String(), "No results")
	assert.Contains(t, buf.String(), "dtagent index")
}

func TestPrintResults_FormatsHits(t *testing.T) {
	// Given: a response with a multi-path hit
	buf := &bytes.Buffer{}
	cmd := newOutputCmd(buf)
	resp := &search.Response{
		Results: []search.Result{
			{
				DocumentID: "doc-1",
				Name:       "Quarterly Plan",
				Collection: "Work",
				Score:      0.95,
				Paths:      []search.Path{search.PathKeyword, search.PathSemantic},
				Snippet:    "first line of the snippet\nsecond line",
			},
		},
		SearchPaths:    []search.Path{search.PathKeyword, search.PathSemantic},
		IndexAvailable: true,
	}

	// When: printing
	printResults(cmd, resp)

	// Then: name, score, paths and only the first snippet line appear
	output := buf.String()
	assert.Contains(t, output, "Quarterly Plan")
	assert.Contains(t, output, "0.95")
	assert.Contains(t, output, "keyword+semantic")
	assert.Contains(t, output, "collection: Work")
	assert.Contains(t, output, "first line of the snippet")
	assert.NotContains(t, output, "second line")
}

func TestFirstLine_TruncatesLongText(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := firstLine(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Less(t, len(got), 200)
}

func TestPathList(t *testing.T) {
	assert.Equal(t, "no paths", pathList(nil))
	assert.Equal(t, "keyword, related", pathList([]search.Path{search.PathKeyword, search.PathRelated}))
}
