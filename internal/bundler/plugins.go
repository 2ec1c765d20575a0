package bundler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitepack/internal/fragment"
)

// Plugin descriptor names with an esbuild rendition.
const (
	PluginProgress       = "progress"
	PluginBundleAnalyzer = "bundle-analyzer"
	PluginCompression    = "compression"
	PluginManifest       = "manifest"
	PluginHMR            = "hot-module-replacement"
	PluginCSSExtract     = "css-extract"
)

// descriptors whose behaviour esbuild provides through build options
var nativePlugins = []string{"react-refresh", "terser", "css-minimizer", PluginHMR}

// emitContext carries what emitters need from a finished build.
type emitContext struct {
	Result     *api.BuildResult
	Metadata   *BuildMetadata
	WorkingDir string
	Outdir     string
	PublicPath string
}

// emitter writes extra artifacts once a build has succeeded.
type emitter interface {
	Name() string
	Emit(ec emitContext) error
}

// pluginsFor maps the fragment's plugin descriptors onto esbuild plugins and
// post-build emitters.
func pluginsFor(f fragment.Fragment) ([]api.Plugin, []emitter) {
	var plugins []api.Plugin
	var emitters []emitter

	if p, ok := assetInlinePlugin(f.Module.Rules); ok {
		plugins = append(plugins, p)
	}

	for _, desc := range f.Plugins {
		switch desc.Name {
		case PluginProgress:
			plugins = append(plugins, progressPlugin(optString(desc.Options, "name", "sitepack")))
		case PluginBundleAnalyzer:
			emitters = append(emitters, newAnalyzer(desc.Options))
		case PluginCompression:
			emitters = append(emitters, newCompression(desc.Options))
		case PluginManifest:
			emitters = append(emitters, manifest{filename: optString(desc.Options, "filename", "manifest.json")})
		case PluginCSSExtract:
			// stylesheets move before anything records their paths
			emitters = append([]emitter{newCSSExtract(desc.Options)}, emitters...)
		default:
			if !slices.Contains(nativePlugins, desc.Name) {
				log.Warn().Str("plugin", desc.Name).Msg("Unsupported plugin, skipping")
			}
		}
	}

	return plugins, emitters
}

func progressPlugin(name string) api.Plugin {
	return api.Plugin{
		Name: "sitepack-progress",
		Setup: func(build api.PluginBuild) {
			var started time.Time

			build.OnStart(func() (api.OnStartResult, error) {
				started = time.Now()
				log.Info().Str("name", name).Msg("Build started")
				return api.OnStartResult{}, nil
			})

			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				log.Info().
					Str("name", name).
					Int("errors", len(result.Errors)).
					Int("warnings", len(result.Warnings)).
					Dur("duration", time.Since(started)).
					Msg("Build finished")
				return api.OnEndResult{}, nil
			})
		},
	}
}

// assetInlinePlugin inlines assets under a rule's data URL size limit and
// emits larger ones as files.
func assetInlinePlugin(rules []fragment.Rule) (api.Plugin, bool) {
	limits := make(map[string]int)
	for _, r := range rules {
		if r.Type != "asset" || r.DataURLMaxSize <= 0 {
			continue
		}
		for _, ext := range r.Test {
			if _, ok := limits[ext]; !ok {
				limits[ext] = r.DataURLMaxSize
			}
		}
	}
	if len(limits) == 0 {
		return api.Plugin{}, false
	}

	exts := make([]string, 0, len(limits))
	for ext := range limits {
		exts = append(exts, regexp.QuoteMeta(strings.TrimPrefix(ext, ".")))
	}
	slices.Sort(exts)
	filter := `\.(?:` + strings.Join(exts, "|") + `)$`

	return api.Plugin{
		Name: "sitepack-asset-inline",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: filter}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				data, err := os.ReadFile(args.Path)
				if err != nil {
					return api.OnLoadResult{}, err
				}

				loader := api.LoaderFile
				if len(data) <= limits[strings.ToLower(filepath.Ext(args.Path))] {
					loader = api.LoaderDataURL
				}

				contents := string(data)
				return api.OnLoadResult{Contents: &contents, Loader: loader}, nil
			})
		},
	}, true
}

type compression struct {
	level      int
	threshold  int
	extensions []string
}

func newCompression(opts map[string]any) compression {
	return compression{
		level:      optInt(opts, "level", gzip.BestCompression),
		threshold:  optInt(opts, "threshold", 1024),
		extensions: optStrings(opts, "extensions", []string{".js", ".css", ".html", ".svg", ".json"}),
	}
}

func (compression) Name() string { return PluginCompression }

// Emit writes a gzip sibling next to every matching output file.
func (c compression) Emit(ec emitContext) error {
	for _, file := range ec.Result.OutputFiles {
		if !slices.Contains(c.extensions, filepath.Ext(file.Path)) || len(file.Contents) < c.threshold {
			continue
		}

		var buf bytes.Buffer
		zw, err := gzip.NewWriterLevel(&buf, c.level)
		if err != nil {
			return fmt.Errorf("compression level %d: %w", c.level, err)
		}
		if _, err := zw.Write(file.Contents); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}

		if err := writeFile(file.Path+".gz", buf.Bytes()); err != nil {
			return err
		}
		log.Debug().Str("file", file.Path+".gz").Int("bytes", buf.Len()).Msg("Compressed file")
	}
	return nil
}

// ManifestEntry lists the assets an entry point needs, in load order.
type ManifestEntry struct {
	Script  string   `json:"script"`
	Scripts []string `json:"scripts"`
	Styles  []string `json:"styles,omitempty"`
}

type manifest struct {
	filename string
}

func (manifest) Name() string { return PluginManifest }

func (m manifest) Emit(ec emitContext) error {
	entries, err := buildManifest(ec)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	return writeFile(filepath.Join(ec.Outdir, m.filename), data)
}

func buildManifest(ec emitContext) (map[string]ManifestEntry, error) {
	if ec.Metadata == nil {
		return nil, ErrNotBuilt
	}

	url := func(outputPath string) string {
		abs := filepath.Join(ec.WorkingDir, filepath.FromSlash(outputPath))
		rel, err := filepath.Rel(ec.Outdir, abs)
		if err != nil {
			rel = outputPath
		}
		return publicURL(ec.PublicPath, filepath.ToSlash(rel))
	}

	entries := make(map[string]ManifestEntry)
	for outputPath, info := range ec.Metadata.Outputs {
		if info.EntryPoint == "" {
			continue
		}

		paths := scriptsFor(ec.Metadata, outputPath)
		entry := ManifestEntry{Script: url(outputPath)}
		for _, p := range paths {
			entry.Scripts = append(entry.Scripts, url(p))
		}
		if info.CSSBundle != "" {
			entry.Styles = append(entry.Styles, url(info.CSSBundle))
		}
		entries[info.EntryPoint] = entry
	}

	return entries, nil
}

// scriptsFor returns outputPath followed by every chunk it imports, depth
// first, each listed once.
func scriptsFor(meta *BuildMetadata, outputPath string) []string {
	scripts := []string{outputPath}
	visited := map[string]bool{outputPath: true}
	addDependencies(meta, meta.Outputs[outputPath], &scripts, visited)
	return scripts
}

func addDependencies(meta *BuildMetadata, output OutputInfo, scripts *[]string, visited map[string]bool) {
	for _, imp := range output.Imports {
		if imp.External || visited[imp.Path] {
			continue
		}
		chunkInfo, exists := meta.Outputs[imp.Path]
		if !exists {
			continue
		}

		visited[imp.Path] = true
		*scripts = append(*scripts, imp.Path)
		addDependencies(meta, chunkInfo, scripts, visited)
	}
}

func publicURL(publicPath, rel string) string {
	if publicPath == "" {
		return "/" + rel
	}
	return strings.TrimSuffix(publicPath, "/") + "/" + rel
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func optString(opts map[string]any, key, def string) string {
	if v, ok := opts[key].(string); ok && v != "" {
		return v
	}
	return def
}

func optBool(opts map[string]any, key string, def bool) bool {
	if v, ok := opts[key].(bool); ok {
		return v
	}
	return def
}

func optInt(opts map[string]any, key string, def int) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func optStrings(opts map[string]any, key string, def []string) []string {
	switch v := opts[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return def
	}
}
