package bundler

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/sitepack/internal/fragment"
)

func emitterNames(emitters []emitter) []string {
	names := make([]string, 0, len(emitters))
	for _, e := range emitters {
		names = append(names, e.Name())
	}
	return names
}

func TestPluginsFor(t *testing.T) {
	f := fragment.Fragment{
		Module: fragment.Module{Rules: []fragment.Rule{
			{Name: "image", Test: []string{".png"}, Type: "asset", DataURLMaxSize: 4096},
		}},
		Plugins: []fragment.Plugin{
			{Name: PluginProgress},
			{Name: "terser"},
			{Name: PluginBundleAnalyzer, Options: map[string]any{"analyzerMode": "json"}},
			{Name: PluginCompression},
			{Name: PluginManifest},
			{Name: "made-up"},
			{Name: PluginCSSExtract},
		},
	}

	plugins, emitters := pluginsFor(f)

	names := make([]string, 0, len(plugins))
	for _, p := range plugins {
		names = append(names, p.Name)
	}
	require.Equal(t, []string{"sitepack-asset-inline", "sitepack-progress"}, names)
	require.Equal(t, []string{PluginCSSExtract, PluginBundleAnalyzer, PluginCompression, PluginManifest}, emitterNames(emitters))
}

func TestPluginsForEmpty(t *testing.T) {
	plugins, emitters := pluginsFor(fragment.Fragment{})
	require.Empty(t, plugins)
	require.Empty(t, emitters)
}

func TestAssetInlinePluginNeedsLimit(t *testing.T) {
	_, ok := assetInlinePlugin([]fragment.Rule{
		{Test: []string{".png"}, Type: "asset"},
		{Test: []string{".woff"}, Type: "asset/resource", DataURLMaxSize: 10},
	})
	require.False(t, ok)
}

func TestCompressionEmit(t *testing.T) {
	dir := t.TempDir()
	large := strings.Repeat("console.log('sitepack');\n", 100)

	result := &api.BuildResult{OutputFiles: []api.OutputFile{
		{Path: filepath.Join(dir, "js", "main.js"), Contents: []byte(large)},
		{Path: filepath.Join(dir, "js", "tiny.js"), Contents: []byte("1")},
		{Path: filepath.Join(dir, "asset", "logo.png"), Contents: []byte(large)},
	}}

	c := newCompression(nil)
	require.NoError(t, c.Emit(emitContext{Result: result, Outdir: dir}))

	data, err := os.ReadFile(filepath.Join(dir, "js", "main.js.gz"))
	require.NoError(t, err)

	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Equal(t, large, string(plain))

	require.NoFileExists(t, filepath.Join(dir, "js", "tiny.js.gz"))
	require.NoFileExists(t, filepath.Join(dir, "asset", "logo.png.gz"))
}

func TestCompressionOptions(t *testing.T) {
	c := newCompression(map[string]any{
		"level":      float64(1),
		"threshold":  10,
		"extensions": []any{".js", 3},
	})
	require.Equal(t, 1, c.level)
	require.Equal(t, 10, c.threshold)
	require.Equal(t, []string{".js"}, c.extensions)
}

func testMetadata() *BuildMetadata {
	return &BuildMetadata{
		Outputs: map[string]OutputInfo{
			"dist/js/main.js": {
				EntryPoint: "src/index.tsx",
				CSSBundle:  "dist/js/main.css",
				Imports: []ImportInfo{
					{Path: "dist/js/vendor.js", Kind: "import-statement"},
					{Path: "react", Kind: "import-statement", External: true},
					{Path: "dist/js/shared.js", Kind: "import-statement"},
				},
			},
			"dist/js/vendor.js": {
				Imports: []ImportInfo{
					{Path: "dist/js/shared.js", Kind: "import-statement"},
					{Path: "dist/js/main.js", Kind: "import-statement"},
				},
			},
			"dist/js/shared.js": {},
			"dist/js/main.css":  {},
		},
	}
}

func TestScriptsFor(t *testing.T) {
	got := scriptsFor(testMetadata(), "dist/js/main.js")
	require.Equal(t, []string{"dist/js/main.js", "dist/js/vendor.js", "dist/js/shared.js"}, got)
}

func TestBuildManifest(t *testing.T) {
	tests := []struct {
		name       string
		publicPath string
		want       ManifestEntry
	}{
		{
			name: "root relative",
			want: ManifestEntry{
				Script:  "/js/main.js",
				Scripts: []string{"/js/main.js", "/js/vendor.js", "/js/shared.js"},
				Styles:  []string{"/js/main.css"},
			},
		},
		{
			name:       "relative public path",
			publicPath: "./",
			want: ManifestEntry{
				Script:  "./js/main.js",
				Scripts: []string{"./js/main.js", "./js/vendor.js", "./js/shared.js"},
				Styles:  []string{"./js/main.css"},
			},
		},
		{
			name:       "cdn",
			publicPath: "https://cdn.example.com/app/",
			want: ManifestEntry{
				Script:  "https://cdn.example.com/app/js/main.js",
				Scripts: []string{"https://cdn.example.com/app/js/main.js", "https://cdn.example.com/app/js/vendor.js", "https://cdn.example.com/app/js/shared.js"},
				Styles:  []string{"https://cdn.example.com/app/js/main.css"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildManifest(emitContext{
				Metadata:   testMetadata(),
				WorkingDir: "/project",
				Outdir:     "/project/dist",
				PublicPath: tt.publicPath,
			})
			require.NoError(t, err)
			require.Equal(t, map[string]ManifestEntry{"src/index.tsx": tt.want}, got)
		})
	}
}

func TestBuildManifestNotBuilt(t *testing.T) {
	_, err := buildManifest(emitContext{})
	require.ErrorIs(t, err, ErrNotBuilt)
}

func TestManifestEmit(t *testing.T) {
	dir := t.TempDir()

	m := manifest{filename: "assets.json"}
	require.NoError(t, m.Emit(emitContext{
		Metadata:   testMetadata(),
		WorkingDir: dir,
		Outdir:     filepath.Join(dir, "dist"),
	}))

	data, err := os.ReadFile(filepath.Join(dir, "dist", "assets.json"))
	require.NoError(t, err)

	var entries map[string]ManifestEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Equal(t, "/js/main.js", entries["src/index.tsx"].Script)
}
