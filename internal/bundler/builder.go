package bundler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitepack/internal/fragment"
	"github.com/wolfeidau/sitepack/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const liveReloadBanner = `new EventSource('/esbuild').addEventListener('change', () => location.reload());`

// Pipeline runs esbuild for composed fragments and keeps the metadata of
// the last successful build.
type Pipeline struct {
	config   Config
	metadata *BuildMetadata
	mu       sync.RWMutex
}

var _ Engine = (*Pipeline)(nil)

// New creates a new asset pipeline with the given configuration
func New(config Config) *Pipeline {
	return &Pipeline{
		config: config,
	}
}

// Start runs Build on its own goroutine.
func (p *Pipeline) Start(ctx context.Context, f fragment.Fragment) *Completion {
	c := newCompletion()
	go func() {
		res, err := p.Build(ctx, f)
		c.resolve(res, err)
	}()
	return c
}

// Build runs esbuild with the options derived from f, writes the metafile
// and runs the emitters of the fragment's plugins.
func (p *Pipeline) Build(ctx context.Context, f fragment.Fragment) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, span := telemetry.Tracer().Start(ctx, "bundle")
	defer span.End()

	started := time.Now()
	res, err := p.build(ctx, f)

	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("mode", f.Mode), attribute.Bool("success", err == nil))
	m.BuildsTotal.Add(ctx, 1, attrs)
	m.BuildDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)

	if err != nil {
		m.BuildErrorsTotal.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res.Duration = time.Since(started)
	m.OutputBytes.Add(ctx, res.Bytes, attrs)
	span.SetAttributes(attribute.Int("outputs", len(res.OutputFiles)), attribute.Int64("bytes", res.Bytes))

	return res, nil
}

func (p *Pipeline) build(ctx context.Context, f fragment.Fragment) (*Result, error) {
	opts, emitters, err := p.options(f)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := log.Ctx(ctx)
	logger.Info().Strs("entrypoints", opts.EntryPoints).Str("outdir", opts.Outdir).Msg("Building assets")

	result := api.Build(opts)

	warnings := make([]string, 0, len(result.Warnings))
	for _, msg := range result.Warnings {
		text := formatMessage(msg)
		warnings = append(warnings, text)
		logger.Warn().Str("warning", text).Msg("Build warning")
	}

	if len(result.Errors) > 0 {
		for _, msg := range result.Errors {
			logger.Error().Str("error", formatMessage(msg)).Msg("Build error")
		}
		return nil, fmt.Errorf("%w: %d error(s), first: %s", ErrBuildFailed, len(result.Errors), formatMessage(result.Errors[0]))
	}

	metadata, err := parseMetadata(result.Metafile)
	if err != nil {
		return nil, err
	}

	ec := emitContext{
		Result:     &result,
		Metadata:   metadata,
		WorkingDir: opts.AbsWorkingDir,
		Outdir:     opts.Outdir,
		PublicPath: opts.PublicPath,
	}
	if err := runEmitters(emitters, ec); err != nil {
		return nil, err
	}

	// Write metafile
	if err := writeFile(filepath.Join(opts.Outdir, p.config.MetafileName), []byte(result.Metafile)); err != nil {
		return nil, err
	}

	p.metadata = ec.Metadata

	res := &Result{Warnings: warnings, Metadata: ec.Metadata}
	for _, file := range result.OutputFiles {
		logger.Debug().Str("file", file.Path).Msg("Built file")
		res.OutputFiles = append(res.OutputFiles, file.Path)
		res.Bytes += int64(len(file.Contents))
	}

	logger.Info().Int("files", len(res.OutputFiles)).Int64("bytes", res.Bytes).Msg("Assets built")
	return res, nil
}

func (p *Pipeline) options(f fragment.Fragment) (api.BuildOptions, []emitter, error) {
	opts, err := Translate(f, p.config.ProjectDir)
	if err != nil {
		return api.BuildOptions{}, nil, err
	}
	opts.LogLevel = p.config.LogLevel

	plugins, emitters := pluginsFor(f)
	opts.Plugins = plugins

	return opts, emitters, nil
}

// ServeConfig configures a watch and serve session.
type ServeConfig struct {
	Host string
	Port int
	// Directory served alongside build output, defaults to the output directory
	Servedir string
}

// Serve rebuilds on change and serves the output until ctx is done.
// Browsers reload after each rebuild when the fragment carries the
// hot-module-replacement plugin.
func (p *Pipeline) Serve(ctx context.Context, f fragment.Fragment, sc ServeConfig) error {
	opts, err := p.serveOptions(f)
	if err != nil {
		return err
	}

	bctx, cerr := api.Context(opts)
	if cerr != nil {
		msgs := make([]string, 0, len(cerr.Errors))
		for _, msg := range cerr.Errors {
			msgs = append(msgs, formatMessage(msg))
		}
		return fmt.Errorf("%w: %v", ErrBuildFailed, msgs)
	}
	defer bctx.Dispose()

	if err := bctx.Watch(api.WatchOptions{}); err != nil {
		return fmt.Errorf("failed to watch: %w", err)
	}

	servedir := sc.Servedir
	if servedir == "" {
		servedir = opts.Outdir
	}
	if err := os.MkdirAll(servedir, 0o750); err != nil {
		return err
	}

	served, err := bctx.Serve(api.ServeOptions{
		Host:     sc.Host,
		Port:     sc.Port,
		Servedir: servedir,
	})
	if err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}

	log.Info().Int("port", int(served.Port)).Str("servedir", servedir).Msg("Serving assets")

	<-ctx.Done()
	log.Info().Msg("Stopping dev server")
	return nil
}

// serveOptions returns the build options of a serve session, with the live
// reload banner and the emitters wired into each rebuild.
func (p *Pipeline) serveOptions(f fragment.Fragment) (api.BuildOptions, error) {
	opts, emitters, err := p.options(f)
	if err != nil {
		return api.BuildOptions{}, err
	}

	if f.HasPlugin(PluginHMR) {
		opts.Banner = map[string]string{"js": liveReloadBanner}
	}
	opts.Plugins = append(opts.Plugins, p.emitPlugin(emitters, opts))

	return opts, nil
}

// emitPlugin runs emitters after each successful rebuild.
func (p *Pipeline) emitPlugin(emitters []emitter, opts api.BuildOptions) api.Plugin {
	return api.Plugin{
		Name: "sitepack-emit",
		Setup: func(build api.PluginBuild) {
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				if len(result.Errors) > 0 {
					return api.OnEndResult{}, nil
				}

				metadata, err := parseMetadata(result.Metafile)
				if err != nil {
					log.Error().Err(err).Msg("Failed to parse metafile")
					return api.OnEndResult{}, nil
				}

				p.mu.Lock()
				p.metadata = metadata
				p.mu.Unlock()

				ec := emitContext{
					Result:     result,
					Metadata:   metadata,
					WorkingDir: opts.AbsWorkingDir,
					Outdir:     opts.Outdir,
					PublicPath: opts.PublicPath,
				}
				if err := runEmitters(emitters, ec); err != nil {
					log.Error().Err(err).Msg("Failed to emit build artifacts")
				}
				return api.OnEndResult{}, nil
			})
		},
	}
}

// LoadScripts returns the ordered list of script paths needed for the given entrypoint
// and the main entrypoint file path
func (p *Pipeline) LoadScripts(entryPointPath string) ([]string, string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.metadata == nil {
		return nil, "", ErrNotBuilt
	}

	for outputPath, info := range p.metadata.Outputs {
		if info.EntryPoint == entryPointPath {
			var scripts []string
			for _, s := range scriptsFor(p.metadata, outputPath) {
				scripts = append(scripts, "/"+s)
			}
			return scripts, "/" + outputPath, nil
		}
	}

	return nil, "", fmt.Errorf("entrypoint %q not found in metadata", entryPointPath)
}

// EntryPoints lists the entry points of the last build in sorted order.
func (p *Pipeline) EntryPoints() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.metadata == nil {
		return nil
	}

	var entries []string
	for _, info := range p.metadata.Outputs {
		if info.EntryPoint != "" {
			entries = append(entries, info.EntryPoint)
		}
	}
	sort.Strings(entries)
	return entries
}

func runEmitters(emitters []emitter, ec emitContext) error {
	for _, e := range emitters {
		if err := e.Emit(ec); err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		log.Debug().Str("plugin", e.Name()).Msg("Emitted build artifacts")
	}
	return nil
}

func parseMetadata(metafile string) (*BuildMetadata, error) {
	var metadata BuildMetadata
	if err := json.Unmarshal([]byte(metafile), &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}
	return &metadata, nil
}

func formatMessage(msg api.Message) string {
	if msg.Location == nil {
		return msg.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text)
}
