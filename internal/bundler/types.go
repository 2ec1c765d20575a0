package bundler

import (
	"context"
	"sync"
	"time"

	"github.com/wolfeidau/sitepack/internal/fragment"
)

// Engine runs a bundling pass for a fully composed fragment.
type Engine interface {
	// Start begins a one-shot build and returns immediately.
	Start(ctx context.Context, f fragment.Fragment) *Completion
}

// BuildMetadata is the subset of the esbuild metafile sitepack reads.
type BuildMetadata struct {
	Inputs  map[string]InputInfo  `json:"inputs"`
	Outputs map[string]OutputInfo `json:"outputs"`
}

type InputInfo struct {
	Bytes int `json:"bytes"`
}

type OutputInfo struct {
	Bytes      int                     `json:"bytes"`
	EntryPoint string                  `json:"entryPoint"`
	CSSBundle  string                  `json:"cssBundle"`
	Imports    []ImportInfo            `json:"imports"`
	Inputs     map[string]InputContrib `json:"inputs"`
}

type ImportInfo struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external"`
}

type InputContrib struct {
	BytesInOutput int `json:"bytesInOutput"`
}

// Result summarises a finished build.
type Result struct {
	OutputFiles []string
	Warnings    []string
	Metadata    *BuildMetadata
	Bytes       int64
	Duration    time.Duration
}

// Completion is the observable outcome of an asynchronous build.
type Completion struct {
	done   chan struct{}
	once   sync.Once
	result *Result
	err    error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Failed returns a Completion already resolved with err.
func Failed(err error) *Completion {
	c := newCompletion()
	c.resolve(nil, err)
	return c
}

// Completed returns a Completion already resolved with res.
func Completed(res *Result) *Completion {
	c := newCompletion()
	c.resolve(res, nil)
	return c
}

func (c *Completion) resolve(res *Result, err error) {
	c.once.Do(func() {
		c.result, c.err = res, err
		close(c.done)
	})
}

// Done is closed once the build has finished.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the build finishes or ctx is done.
func (c *Completion) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
