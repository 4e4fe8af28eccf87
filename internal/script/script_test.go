package script

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(zerolog.Nop())
}

func TestInjectTypeJSON(t *testing.T) {
	tcs := []struct {
		name    string
		input   string
		want    InjectType
		wantErr bool
	}{
		{"request header", `"RequestHeader"`, InjectRequestHeader, false},
		{"response body", `"ResponseBody"`, InjectResponseBody, false},
		{"javascript", `"JavaScriptInjection"`, InjectJavaScript, false},
		{"css", `"CssInjection"`, InjectCSS, false},
		{"unknown", `"Bogus"`, 0, true},
		{"non-string", `7`, 0, true},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var got InjectType
			err := json.Unmarshal([]byte(tc.input), &got)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			out, err := json.Marshal(got)
			require.NoError(t, err)
			assert.Equal(t, tc.input, string(out))
		})
	}
}

func TestRegistryOrderIsLexicalByName(t *testing.T) {
	reg := newTestRegistry()
	reg.LoadAll([]InjectionScript{
		{Name: "zeta", TargetDomains: []string{"*"}, InjectType: InjectRequestHeader, Enabled: true},
		{Name: "alpha", TargetDomains: []string{"*"}, InjectType: InjectRequestHeader, Enabled: true},
		{Name: "mid", TargetDomains: []string{"*"}, InjectType: InjectRequestHeader, Enabled: true},
	})

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.Names())

	rules := reg.ForDomain("example.com")
	require.Len(t, rules, 3)
	assert.Equal(t, "alpha", rules[0].Name)
	assert.Equal(t, "mid", rules[1].Name)
	assert.Equal(t, "zeta", rules[2].Name)
}

func TestRegistryForDomainIsDeterministic(t *testing.T) {
	reg := newTestRegistry()
	reg.LoadAll([]InjectionScript{
		{Name: "b", TargetDomains: []string{"*.example.com"}, Enabled: true},
		{Name: "a", TargetDomains: []string{"example.com"}, Enabled: true},
		{Name: "c", TargetDomains: []string{`example\.com`}, Enabled: true},
	})

	first := reg.ForDomain("example.com")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, reg.ForDomain("example.com"))
	}
}

func TestRegistryFiltersDisabledAndNonMatching(t *testing.T) {
	reg := newTestRegistry()
	reg.LoadAll([]InjectionScript{
		{Name: "enabled-match", TargetDomains: []string{"example.com"}, Enabled: true},
		{Name: "disabled-match", TargetDomains: []string{"example.com"}, Enabled: false},
		{Name: "enabled-other", TargetDomains: []string{"other.com"}, Enabled: true},
	})

	rules := reg.ForDomain("example.com")
	require.Len(t, rules, 1)
	assert.Equal(t, "enabled-match", rules[0].Name)
}

func TestRegistryLoadAllReplacesAndIsIdempotent(t *testing.T) {
	reg := newTestRegistry()

	reg.LoadAll([]InjectionScript{{Name: "old", Enabled: true, TargetDomains: []string{"*"}}})
	require.Equal(t, []string{"old"}, reg.Names())

	batch := []InjectionScript{
		{Name: "x", Enabled: true, TargetDomains: []string{"*"}},
		{Name: "y", Enabled: true, TargetDomains: []string{"*"}},
	}
	reg.LoadAll(batch)
	assert.Equal(t, []string{"x", "y"}, reg.Names())

	reg.LoadAll(batch)
	assert.Equal(t, []string{"x", "y"}, reg.Names())
}

func TestRegistryDuplicateNameKeepsLater(t *testing.T) {
	reg := newTestRegistry()
	reg.LoadAll([]InjectionScript{
		{Name: "dup", Payload: "first", Enabled: true, TargetDomains: []string{"*"}},
		{Name: "dup", Payload: "second", Enabled: true, TargetDomains: []string{"*"}},
	})

	rules := reg.ForDomain("example.com")
	require.Len(t, rules, 1)
	assert.Equal(t, "second", rules[0].Payload)
}

func TestRegistrySnapshotIsIsolated(t *testing.T) {
	reg := newTestRegistry()
	src := []InjectionScript{{
		Name:          "r",
		Enabled:       true,
		TargetDomains: []string{"*"},
		Headers:       map[string]string{"x-a": "1"},
	}}
	reg.LoadAll(src)

	// Mutating the input after loading must not affect the snapshot.
	src[0].Headers["x-a"] = "mutated"

	rules := reg.ForDomain("example.com")
	require.Len(t, rules, 1)
	assert.Equal(t, "1", rules[0].Headers["x-a"])
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	good := InjectionScript{
		Name:          "good",
		TargetDomains: []string{"*"},
		InjectType:    InjectResponseBody,
		Payload:       "<!-- injected -->",
		Enabled:       true,
	}
	data, err := json.Marshal(good)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.json"), data, 0o644))

	// A broken file is skipped, not fatal.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{nope"), 0o644))

	// Non-json files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hi"), 0o644))

	rules, err := LoadDir(dir, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "good", rules[0].Name)
	assert.Equal(t, InjectResponseBody, rules[0].InjectType)
}

func TestLoadDirCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scripts")

	rules, err := LoadDir(dir, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, rules)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWriteExamples(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, WriteExamples(dir))

	rules, err := LoadDir(dir, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, rules, 3)

	// All examples ship disabled so a fresh install never mutates traffic.
	for _, rule := range rules {
		assert.False(t, rule.Enabled, rule.Name)
	}

	// Existing files are not overwritten.
	custom := filepath.Join(dir, "custom-headers.json")
	require.NoError(t, os.WriteFile(custom, []byte(`{"name":"custom-headers","enabled":true}`), 0o644))
	require.NoError(t, WriteExamples(dir))

	data, err := os.ReadFile(custom)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"enabled":true`)
}
