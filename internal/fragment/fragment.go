// Package fragment models declarative bundler configuration and the
// operations used to compose it: merging, positional step insertion and
// conditional plugin injection.
//
// A Fragment may be partial. Zero-valued scalars are treated as absent when
// merging, so tri-state switches are expressed as *bool.
package fragment

// Fragment is a partial or complete bundler configuration.
type Fragment struct {
	Mode         string            `yaml:"mode,omitempty"`
	Devtool      string            `yaml:"devtool,omitempty"`
	Entry        []string          `yaml:"entry,omitempty"`
	Output       Output            `yaml:"output,omitempty"`
	Optimization Optimization      `yaml:"optimization,omitempty"`
	Module       Module            `yaml:"module,omitempty"`
	Resolve      Resolve           `yaml:"resolve,omitempty"`
	Plugins      []Plugin          `yaml:"plugins,omitempty"`
	Cache        *Cache            `yaml:"cache,omitempty"`
	Define       map[string]string `yaml:"define,omitempty"`
}

type Output struct {
	Path                string `yaml:"path,omitempty"`
	Filename            string `yaml:"filename,omitempty"`
	ChunkFilename       string `yaml:"chunkFilename,omitempty"`
	AssetModuleFilename string `yaml:"assetModuleFilename,omitempty"`
	PublicPath          string `yaml:"publicPath,omitempty"`
}

type Optimization struct {
	RuntimeChunk *bool        `yaml:"runtimeChunk,omitempty"`
	SplitChunks  *SplitChunks `yaml:"splitChunks,omitempty"`
	Minimize     *bool        `yaml:"minimize,omitempty"`
	Minimizer    []Plugin     `yaml:"minimizer,omitempty"`
}

type SplitChunks struct {
	Chunks      string                `yaml:"chunks,omitempty"`
	CacheGroups map[string]CacheGroup `yaml:"cacheGroups,omitempty"`
}

type CacheGroup struct {
	Name      string `yaml:"name,omitempty"`
	Chunks    string `yaml:"chunks,omitempty"`
	Test      string `yaml:"test,omitempty"`
	MinChunks int    `yaml:"minChunks,omitempty"`
	Priority  int    `yaml:"priority,omitempty"`
}

type Module struct {
	Rules []Rule `yaml:"rules,omitempty"`
}

// Rule describes how files matching Test are processed. The order of Use is
// significant and is preserved by every operation in this package.
type Rule struct {
	Name           string   `yaml:"name,omitempty"`
	Test           []string `yaml:"test,omitempty"`
	Exclude        []string `yaml:"exclude,omitempty"`
	Type           string   `yaml:"type,omitempty"`
	DataURLMaxSize int      `yaml:"dataUrlMaxSize,omitempty"`
	Use            []Step   `yaml:"use,omitempty"`
}

// Step is one named processing stage within a rule.
type Step struct {
	Loader  string         `yaml:"loader"`
	Options map[string]any `yaml:"options,omitempty"`
}

// Plugin is an engine level behaviour unit, also used for minimizers.
type Plugin struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options,omitempty"`
}

type Resolve struct {
	Extensions []string `yaml:"extensions,omitempty"`
}

type Cache struct {
	Type              string   `yaml:"type,omitempty"`
	BuildDependencies []string `yaml:"buildDependencies,omitempty"`
}

// Bool returns a pointer to b, for use in *bool fields.
func Bool(b bool) *bool {
	return &b
}

// Minimizing reports whether minimizers will run for this fragment.
func (f Fragment) Minimizing() bool {
	if f.Optimization.Minimize != nil && !*f.Optimization.Minimize {
		return false
	}
	return len(f.Optimization.Minimizer) > 0
}

// HasPlugin reports whether a plugin with the given name is present.
func (f Fragment) HasPlugin(name string) bool {
	_, ok := f.Plugin(name)
	return ok
}

// Plugin returns the first plugin with the given name.
func (f Fragment) Plugin(name string) (Plugin, bool) {
	for _, p := range f.Plugins {
		if p.Name == name {
			return p, true
		}
	}
	return Plugin{}, false
}

// Rule returns the first rule satisfying match.
func (f Fragment) Rule(match RulePredicate) (Rule, bool) {
	for _, r := range f.Module.Rules {
		if match(r) {
			return r, true
		}
	}
	return Rule{}, false
}

// Loaders returns the loader names of the rule in order.
func (r Rule) Loaders() []string {
	names := make([]string, 0, len(r.Use))
	for _, s := range r.Use {
		names = append(names, s.Loader)
	}
	return names
}

// Step returns the first step using the named loader.
func (r Rule) Step(loader string) (Step, bool) {
	for _, s := range r.Use {
		if s.Loader == loader {
			return s, true
		}
	}
	return Step{}, false
}
