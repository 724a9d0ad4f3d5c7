package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validReport builds a report that satisfies DefaultContract.
func validReport() string {
	filler := strings.Repeat("The team shipped the planned onboarding work and closed remaining defects. ", 20)
	return strings.Join([]string{
		"# BOPS Sprint 11 Report",
		"## Sprint Overview", filler,
		"## Completed Work", "- BOPS-101 onboarding flow",
		"## In Progress", "- BOPS-120 billing export",
		"## Blockers and Risks", "Vendor API rate limits.",
		"**Metrics:**", "Completion rate 82%.",
		"## 6. Next Sprint Plan", "Finish billing export.",
	}, "\n")
}

func TestContractValidate(t *testing.T) {
	c := DefaultContract()

	t.Run("valid report", func(t *testing.T) {
		v := c.Validate(validReport())
		assert.True(t, v.Valid, "%+v", v)
		assert.Empty(t, v.MissingSections)
		assert.Len(t, v.FoundSections, 6)
	})

	t.Run("missing section", func(t *testing.T) {
		text := strings.Replace(validReport(), "## Blockers and Risks", "Blockers were minor.", 1)
		v := c.Validate(text)
		assert.False(t, v.Valid)
		assert.Equal(t, []string{"Blockers and Risks"}, v.MissingSections)
	})

	t.Run("placeholder marker", func(t *testing.T) {
		v := c.Validate(validReport() + "\nOwner: TBD")
		assert.False(t, v.Valid)
		assert.Equal(t, []string{"TBD"}, v.Placeholders)
	})

	t.Run("marker inside word is ignored", func(t *testing.T) {
		v := c.Validate(validReport() + "\nWe reviewed the TODOS board.")
		assert.True(t, v.Valid, "%+v", v)
	})

	t.Run("too short", func(t *testing.T) {
		v := c.Validate("## Sprint Overview\nshort")
		assert.False(t, v.Valid)
		assert.NotEmpty(t, v.Warnings)
	})
}

func TestLoadContract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contract.yaml")
	require.NoError(t, os.WriteFile(path, []byte("required_sections:\n  - Summary\n  - Risks\nmin_words: 3\n"), 0o644))

	c, err := LoadContract(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Summary", "Risks"}, c.RequiredSections)
	assert.Equal(t, 3, c.MinWords)
	assert.Equal(t, DefaultContract().ForbiddenMarkers, c.ForbiddenMarkers)

	v := c.Validate("## Summary\nall good here\n## Risks\nnone")
	assert.True(t, v.Valid, "%+v", v)

	_, err = LoadContract(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	def, err := LoadContract("")
	require.NoError(t, err)
	assert.Equal(t, DefaultContract().RequiredSections, def.RequiredSections)
}

func TestContractValidateIsSafeForConcurrentJobs(t *testing.T) {
	shared := []*Contract{
		DefaultContract(),
		{RequiredSections: []string{"Sprint Overview"}, MinWords: 1, ForbiddenMarkers: []string{"TBD"}},
	}
	for i, c := range shared {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			var wg sync.WaitGroup
			for j := 0; j < 8; j++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					v := c.Validate("## Sprint Overview\nOwner TBD.")
					assert.Equal(t, []string{"TBD"}, v.Placeholders)
				}()
			}
			wg.Wait()
			if i == 1 {
				assert.Nil(t, c.markerPatterns, "Validate must not write to a shared contract")
			}
		})
	}
}
