package fragment

import "slices"

// InjectIf appends p to the plugin list when cond holds and returns f
// untouched otherwise.
func InjectIf(f Fragment, cond bool, p Plugin) Fragment {
	if !cond {
		return f
	}
	f.Plugins = append(slices.Clip(f.Plugins), p)
	return f
}
