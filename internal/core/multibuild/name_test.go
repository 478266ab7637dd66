package multibuild

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundry/artifactview/internal/core/models"
)

func TestParse(t *testing.T) {
	lookup := Static(map[string][]string{
		"pkg":        {"flavor", "other"},
		"lib:compat": {"python3"},
	})

	tests := []struct {
		name       string
		in         string
		wantBase   string
		wantFlavor string
	}{
		{"plain", "pkg", "pkg", ""},
		{"flavor", "pkg:flavor", "pkg", "flavor"},
		{"plus signs", "my_package++special", "my_package++special", ""},
		{"unknown flavor", "pkg:nope", "pkg:nope", ""},
		{"colon in base", "lib:compat", "lib:compat", ""},
		{"colon in base with flavor", "lib:compat:python3", "lib:compat", "python3"},
		{"trailing separator", "pkg:", "pkg:", ""},
		{"leading separator", ":flavor", ":flavor", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := Parse("home:user", tt.in, lookup)
			require.NoError(t, err)
			assert.Equal(t, "home:user", ref.Project)
			assert.Equal(t, tt.wantBase, ref.BaseName)
			assert.Equal(t, tt.wantFlavor, ref.Flavor)
			assert.Equal(t, tt.in, Format(ref))
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	lookup := Static(map[string][]string{"pkg": {"flavor"}})
	for _, s := range []string{"pkg", "pkg:flavor", "my_package++special", "a:b:c", "x"} {
		ref, err := Parse("p", s, lookup)
		require.NoError(t, err)
		assert.Equal(t, s, Format(ref))
	}
}

func TestParseNilLookup(t *testing.T) {
	ref, err := Parse("p", "pkg:flavor", nil)
	require.NoError(t, err)
	assert.Equal(t, models.PackageRef{Project: "p", BaseName: "pkg:flavor"}, ref)
}

func TestParseLookupError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Parse("p", "pkg:flavor", func(string) ([]string, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestParseNoSeparatorSkipsLookup(t *testing.T) {
	calls := 0
	_, err := Parse("p", "pkg", func(string) ([]string, error) {
		calls++
		return nil, nil
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
}
