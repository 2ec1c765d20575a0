// Package mode resolves a build mode into a bundler configuration fragment.
package mode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// BuildMode selects which overlay is merged into the base fragment.
type BuildMode string

const (
	Development BuildMode = "dev"
	BuildSite   BuildMode = "build-site"
	BuildLib    BuildMode = "build-lib"
)

// ErrUnknownMode indicates a build mode token that is not recognised
var ErrUnknownMode = errors.New("unknown build mode")

// Modes lists every recognised build mode.
func Modes() []BuildMode {
	return []BuildMode{Development, BuildSite, BuildLib}
}

func (m BuildMode) String() string {
	return string(m)
}

// Valid reports whether m is a recognised mode.
func (m BuildMode) Valid() bool {
	switch m {
	case Development, BuildSite, BuildLib:
		return true
	default:
		return false
	}
}

// Production reports whether m uses the production overlay.
func (m BuildMode) Production() bool {
	return m == BuildSite || m == BuildLib
}

// Parse converts s into a BuildMode. Empty or unrecognised tokens fall back
// to Development.
func Parse(s string) BuildMode {
	m := BuildMode(strings.TrimSpace(s))
	if !m.Valid() {
		if m != "" {
			log.Debug().Str("mode", s).Msg("Unrecognised build mode, using dev")
		}
		return Development
	}
	return m
}

// ParseStrict is like Parse but rejects unrecognised tokens. An empty token
// still resolves to Development.
func ParseStrict(s string) (BuildMode, error) {
	m := BuildMode(strings.TrimSpace(s))
	if m == "" {
		return Development, nil
	}
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// Invocation is the context shared by every stage of the composition chain.
type Invocation struct {
	Mode       BuildMode
	ProjectDir string
	OutputDir  string
	Analyze    bool
}
