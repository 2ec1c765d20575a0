// Package preset supplies the ordered language down-levelling presets and
// plugins carried by the script rule's transpiler step.
package preset

import "maps"

const (
	PresetEnv        = "preset-env"
	PresetReact      = "preset-react"
	PresetTypeScript = "preset-typescript"
)

// Entry names one preset or plugin with its options.
type Entry struct {
	Name    string
	Options map[string]any
}

// Options is the full transpiler configuration. Order is significant.
type Options struct {
	Presets []Entry
	Plugins []Entry
	// Target is the language level output is lowered to, e.g. "es2017".
	Target string
}

// Provider supplies transpiler options.
type Provider interface {
	Options() Options
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() Options

func (fn ProviderFunc) Options() Options {
	return fn()
}

// Default is the preset list used when no other provider is configured.
var Default Provider = ProviderFunc(func() Options {
	return Options{
		Presets: []Entry{
			{Name: PresetEnv, Options: map[string]any{"modules": false}},
			{Name: PresetReact},
			{Name: PresetTypeScript},
		},
		Plugins: []Entry{
			{Name: "plugin-transform-runtime", Options: map[string]any{"useESModules": true}},
			{Name: "plugin-proposal-decorators", Options: map[string]any{"legacy": true}},
			{Name: "plugin-proposal-class-properties"},
			{Name: "plugin-proposal-optional-chaining"},
		},
		Target: "es2017",
	}
})

// StepOptions renders o as the options map of a transpiler step.
func (o Options) StepOptions() map[string]any {
	opts := map[string]any{
		"presets": entries(o.Presets),
		"plugins": entries(o.Plugins),
	}
	if o.Target != "" {
		opts["target"] = o.Target
	}
	return opts
}

func entries(in []Entry) []any {
	out := make([]any, 0, len(in))
	for _, e := range in {
		m := map[string]any{"name": e.Name}
		if len(e.Options) > 0 {
			m["options"] = maps.Clone(e.Options)
		}
		out = append(out, m)
	}
	return out
}

// Names extracts entry names from a step option value. Both the map form
// produced by StepOptions and plain strings, as written in project files,
// are accepted.
func Names(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}

	names := make([]string, 0, len(list))
	for _, item := range list {
		switch e := item.(type) {
		case string:
			names = append(names, e)
		case map[string]any:
			if name, ok := e["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names
}
