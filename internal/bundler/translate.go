package bundler

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitepack/internal/fragment"
	"github.com/wolfeidau/sitepack/internal/preset"
)

// DefaultEntries is used when a fragment names no entry points.
var DefaultEntries = []string{"src/index.{js,jsx,ts,tsx}"}

var hashPlaceholder = regexp.MustCompile(`\[(?:chunk|content|full)?hash(?::\d+)?\]`)

// step loaders that mark a rule as producing stylesheets
var stylesheetLoaders = []string{"css-loader", "postcss-loader", "less-loader", "sass-loader", "style-loader", "css-extract"}

// step loaders that mark a rule as producing scripts
var scriptLoaders = []string{"babel-loader", "ts-loader", "swc-loader", "esbuild-loader"}

var scriptLoaderByExt = map[string]api.Loader{
	".js":  api.LoaderJS,
	".mjs": api.LoaderJS,
	".cjs": api.LoaderJS,
	".jsx": api.LoaderJSX,
	".ts":  api.LoaderTS,
	".mts": api.LoaderTS,
	".tsx": api.LoaderTSX,
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// Translate converts a composed fragment into esbuild build options.
// Relative paths resolve against projectDir.
func Translate(f fragment.Fragment, projectDir string) (api.BuildOptions, error) {
	root, err := filepath.Abs(projectDir)
	if err != nil {
		return api.BuildOptions{}, fmt.Errorf("failed to resolve project dir: %w", err)
	}

	entryPoints, err := expandEntries(root, f.Entry)
	if err != nil {
		return api.BuildOptions{}, err
	}

	outdir := f.Output.Path
	if outdir == "" {
		outdir = "dist"
	}
	if !filepath.IsAbs(outdir) {
		outdir = filepath.Join(root, outdir)
	}

	minify := f.Minimizing()

	opts := api.BuildOptions{
		AbsWorkingDir:     root,
		EntryPoints:       entryPoints,
		Bundle:            true,
		Write:             true,
		Metafile:          true,
		Outdir:            outdir,
		PublicPath:        f.Output.PublicPath,
		EntryNames:        nameTemplate(f.Output.Filename),
		ChunkNames:        nameTemplate(f.Output.ChunkFilename),
		AssetNames:        nameTemplate(f.Output.AssetModuleFilename),
		Format:            api.FormatESModule,
		Platform:          api.PlatformBrowser,
		Splitting:         f.Optimization.SplitChunks != nil && f.Optimization.SplitChunks.Chunks != "",
		Sourcemap:         sourceMap(f.Devtool),
		TreeShaking:       api.TreeShakingTrue,
		MinifyWhitespace:  minify,
		MinifyIdentifiers: minify,
		MinifySyntax:      minify,
		Loader:            loaders(f.Module.Rules),
		ResolveExtensions: resolveExtensions(f.Resolve.Extensions),
		Define:            defines(f),
	}

	if minify {
		opts.LegalComments = api.LegalCommentsNone
	}

	if script, ok := f.Rule(isScriptRule); ok {
		applyTranspiler(&opts, script)
	}

	return opts, nil
}

func expandEntries(root string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = DefaultEntries
	}

	fsys := os.DirFS(root)

	var entries []string
	for _, pattern := range patterns {
		var matches []string
		var err error

		if filepath.IsAbs(pattern) {
			matches, err = doublestar.FilepathGlob(pattern)
		} else {
			matches, err = doublestar.Glob(fsys, filepath.ToSlash(pattern))
			for i, m := range matches {
				matches[i] = filepath.Join(root, filepath.FromSlash(m))
			}
		}
		if err != nil {
			return nil, fmt.Errorf("invalid entry pattern %q: %w", pattern, err)
		}

		for _, m := range matches {
			if !slices.Contains(entries, m) {
				entries = append(entries, m)
			}
		}
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEntryPoints, strings.Join(patterns, ", "))
	}

	slices.Sort(entries)
	return entries, nil
}

// nameTemplate converts a webpack style output filename into an esbuild
// path template. esbuild appends the extension itself.
func nameTemplate(name string) string {
	if name == "" {
		return ""
	}

	name = hashPlaceholder.ReplaceAllString(name, "[hash]")
	name = strings.ReplaceAll(name, "[id]", "[name]")
	name = strings.TrimSuffix(name, ".[ext]")
	name = strings.TrimSuffix(name, "[ext]")

	if ext := path.Ext(name); ext != "" && !strings.ContainsAny(ext, "[]") {
		name = strings.TrimSuffix(name, ext)
	}

	return name
}

func sourceMap(devtool string) api.SourceMap {
	switch {
	case devtool == "", devtool == "false":
		return api.SourceMapNone
	case strings.HasPrefix(devtool, "hidden"):
		return api.SourceMapExternal
	case strings.HasPrefix(devtool, "eval"), strings.HasPrefix(devtool, "inline"):
		return api.SourceMapInline
	case strings.Contains(devtool, "source-map"):
		return api.SourceMapLinked
	default:
		return api.SourceMapNone
	}
}

func hasLoader(r fragment.Rule, names []string) bool {
	return slices.ContainsFunc(r.Use, func(s fragment.Step) bool {
		return slices.Contains(names, s.Loader)
	})
}

func isScriptRule(r fragment.Rule) bool {
	return r.Type == "" && hasLoader(r, scriptLoaders)
}

func ruleLoader(r fragment.Rule, ext string) (api.Loader, bool) {
	switch r.Type {
	case "asset", "asset/resource":
		// assets under the inline threshold are rewritten by the asset plugin
		return api.LoaderFile, true
	case "asset/inline":
		return api.LoaderDataURL, true
	case "asset/source":
		return api.LoaderText, true
	}

	switch {
	case hasLoader(r, stylesheetLoaders):
		return api.LoaderCSS, true
	case hasLoader(r, scriptLoaders):
		l, ok := scriptLoaderByExt[ext]
		return l, ok
	}

	return api.LoaderNone, false
}

func loaders(rules []fragment.Rule) map[string]api.Loader {
	m := make(map[string]api.Loader)
	for _, r := range rules {
		for _, ext := range r.Test {
			l, ok := ruleLoader(r, ext)
			if !ok {
				log.Debug().Str("rule", r.Name).Str("ext", ext).Msg("No loader mapping for rule")
				continue
			}
			if _, seen := m[ext]; !seen {
				m[ext] = l
			}
		}
	}
	return m
}

func resolveExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.TrimSpace(ext)
		if ext == "" || slices.Contains(out, ext) {
			continue
		}
		out = append(out, ext)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func defines(f fragment.Fragment) map[string]string {
	m := make(map[string]string, len(f.Define)+1)
	for k, v := range f.Define {
		m[k] = v
	}
	if _, ok := m["process.env.NODE_ENV"]; !ok && f.Mode != "" {
		m["process.env.NODE_ENV"] = strconv.Quote(f.Mode)
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func applyTranspiler(opts *api.BuildOptions, script fragment.Rule) {
	step, ok := script.Step("babel-loader")
	if !ok {
		return
	}

	if slices.Contains(preset.Names(step.Options["presets"]), preset.PresetReact) {
		opts.JSX = api.JSXAutomatic
		_, opts.JSXDev = script.Step("react-refresh")
	}

	if name, ok := step.Options["target"].(string); ok {
		if t, ok := targets[strings.ToLower(name)]; ok {
			opts.Target = t
		} else {
			log.Warn().Str("target", name).Msg("Unknown transpile target, using esbuild default")
		}
	}
}
