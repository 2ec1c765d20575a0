package mode

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitepack/internal/fragment"
	"github.com/wolfeidau/sitepack/internal/preset"
)

// Resolver builds the fragment for a build mode.
type Resolver struct {
	presets           preset.Provider
	buildDependencies []string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPresets replaces the transpiler preset provider.
func WithPresets(p preset.Provider) Option {
	return func(r *Resolver) {
		r.presets = p
	}
}

// WithBuildDependencies lists files whose change invalidates the
// development cache.
func WithBuildDependencies(paths ...string) Option {
	return func(r *Resolver) {
		r.buildDependencies = append(r.buildDependencies, paths...)
	}
}

// NewResolver creates a Resolver using preset.Default unless overridden.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{presets: preset.Default}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns a freshly built fragment for m. Unrecognised modes
// resolve as Development.
func (r *Resolver) Resolve(m BuildMode) (fragment.Fragment, error) {
	if !m.Valid() {
		m = Parse(string(m))
	}

	switch m {
	case BuildSite, BuildLib:
		return r.production()
	default:
		return r.development()
	}
}

// Apply resolves the invocation's mode and merges it onto acc. It is the
// first stage of the composition chain.
func (r *Resolver) Apply(acc fragment.Fragment, inv Invocation) (fragment.Fragment, error) {
	resolved, err := r.Resolve(inv.Mode)
	if err != nil {
		return fragment.Fragment{}, err
	}
	return fragment.Merge(acc, resolved)
}

func (r *Resolver) development() (fragment.Fragment, error) {
	f, err := fragment.Merge(base(r.presets), developmentOverlay(r.buildDependencies))
	if err != nil {
		return fragment.Fragment{}, fmt.Errorf("development fragment: %w", err)
	}

	// live reload only works while the hot module replacement plugin is present
	f, err = fragment.InsertStep(f, fragment.MatchName(RuleScript), fragment.Step{Loader: LoaderRefresh}, fragment.Append)
	if err != nil {
		return fragment.Fragment{}, err
	}

	f, err = fragment.InsertStep(f, fragment.MatchName(RuleStyle), fragment.Step{Loader: LoaderStyle}, fragment.Prepend)
	if err != nil {
		return fragment.Fragment{}, err
	}

	log.Debug().Str("mode", f.Mode).Int("rules", len(f.Module.Rules)).Int("plugins", len(f.Plugins)).Msg("Resolved fragment")
	return f, nil
}

func (r *Resolver) production() (fragment.Fragment, error) {
	f, err := fragment.Merge(base(r.presets), productionOverlay())
	if err != nil {
		return fragment.Fragment{}, fmt.Errorf("production fragment: %w", err)
	}

	// extraction has to run ahead of every other stylesheet step
	f, err = fragment.InsertStep(f, fragment.MatchName(RuleStyle), fragment.Step{
		Loader:  LoaderCSSExtract,
		Options: map[string]any{"publicPath": "../"},
	}, fragment.Prepend)
	if err != nil {
		return fragment.Fragment{}, err
	}

	f.Optimization.Minimizer = minimizers()

	log.Debug().Str("mode", f.Mode).Int("rules", len(f.Module.Rules)).Int("plugins", len(f.Plugins)).Msg("Resolved fragment")
	return f, nil
}
