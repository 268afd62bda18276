package properties_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/migrator/pkg/properties"
)

const tomlDoc = `
[migrator]
interruptOnTimeout = true

[migrator.timeout.CountryFacade]
GetCountry = 500
READ = 1500

[migrator.slowwarning]
CountryFacade = 800
`

func TestParseTOMLFlattensTables(t *testing.T) {
	p, err := properties.ParseTOML(tomlDoc)
	require.NoError(t, err)

	assert.Equal(t, "500", p.Get("migrator.timeout.CountryFacade.GetCountry", ""))
	assert.Equal(t, "1500", p.Get("migrator.timeout.CountryFacade.READ", ""))
	assert.Equal(t, "800", p.Get("migrator.slowwarning.CountryFacade", ""))

	b, ok, err := p.Bool("migrator.interruptOnTimeout")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, b)
}

func TestParseYAMLFlattensMappings(t *testing.T) {
	p, err := properties.ParseYAML([]byte(`
migrator:
  timeout:
    CountryFacade:
      GetCountry: 250
`))
	require.NoError(t, err)

	n, ok, err := p.Int("migrator.timeout.CountryFacade.GetCountry")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(250), n)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrator.env")
	require.NoError(t, os.WriteFile(path, []byte("migrator.timeout.CountryFacade=300\n"), 0o600))

	p, err := properties.LoadEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, "300", p.Get("migrator.timeout.CountryFacade", ""))
}

func TestLoadTOMLMissingFile(t *testing.T) {
	_, err := properties.LoadTOML(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestTypedGetters(t *testing.T) {
	p := properties.FromMap(map[string]string{
		"a.int":      "42",
		"a.bad":      "forty-two",
		"a.ms":       "1500",
		"a.duration": "2s",
	})

	n, ok, err := p.Int("a.int")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	_, ok, err = p.Int("a.bad")
	assert.True(t, ok)
	assert.Error(t, err)

	_, ok, err = p.Int("a.missing")
	assert.False(t, ok)
	assert.NoError(t, err)

	d, _, err := p.Duration("a.ms")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	d, _, err = p.Duration("a.duration")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)
}

func TestMergeAndSub(t *testing.T) {
	base := properties.FromMap(map[string]string{"x.a": "1", "x.b": "2"})
	override := properties.FromMap(map[string]string{"x.b": "3", "y.c": "4"})

	merged := properties.Merge(base, nil, override)
	assert.Equal(t, []string{"x.a", "x.b", "y.c"}, merged.Keys())
	assert.Equal(t, "3", merged.Get("x.b", ""))

	sub := merged.Sub("x")
	assert.Equal(t, 2, sub.Len())
	assert.Equal(t, "1", sub.Get("a", ""))
}
