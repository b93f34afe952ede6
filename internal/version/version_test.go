package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullInfo(t *testing.T) {
	info := FullInfo()
	assert.True(t, strings.HasPrefix(info, "bladelsp "+Version+" (commit: "))
	assert.Contains(t, info, "built: "+Info().BuildDate)
}

func TestInfo(t *testing.T) {
	bi := Info()
	assert.Equal(t, Version, bi.Version)
	assert.NotEmpty(t, bi.Commit)
	assert.NotEmpty(t, bi.BuildDate)
	require.NotEmpty(t, bi.BuildID)
	assert.Equal(t, bi, Info())
}

func TestBuildIDStable(t *testing.T) {
	id := BuildID()
	assert.NotEmpty(t, id)
	assert.Equal(t, id, BuildID())
	assert.Equal(t, Info().BuildID, id)
}
