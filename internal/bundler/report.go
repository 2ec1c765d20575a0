package bundler

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"html/template"
	"path/filepath"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/evanw/esbuild/pkg/api"
)

// Analysis summarises which inputs make up each output file.
type Analysis struct {
	TotalBytes int              `json:"totalBytes"`
	Outputs    []OutputAnalysis `json:"outputs"`
}

type OutputAnalysis struct {
	Path       string          `json:"path"`
	EntryPoint string          `json:"entryPoint,omitempty"`
	Bytes      int             `json:"bytes"`
	Inputs     []InputAnalysis `json:"inputs"`
}

type InputAnalysis struct {
	Path          string  `json:"path"`
	BytesInOutput int     `json:"bytesInOutput"`
	Percentage    float64 `json:"percentage"`
}

// Analyze builds an Analysis from build metadata. Outputs and inputs are
// ordered largest first.
func Analyze(meta *BuildMetadata) Analysis {
	var a Analysis
	for path, out := range meta.Outputs {
		oa := OutputAnalysis{Path: path, EntryPoint: out.EntryPoint, Bytes: out.Bytes}
		for in, contrib := range out.Inputs {
			ia := InputAnalysis{Path: in, BytesInOutput: contrib.BytesInOutput}
			if out.Bytes > 0 {
				ia.Percentage = float64(contrib.BytesInOutput) * 100 / float64(out.Bytes)
			}
			oa.Inputs = append(oa.Inputs, ia)
		}
		slices.SortFunc(oa.Inputs, func(x, y InputAnalysis) int {
			if x.BytesInOutput != y.BytesInOutput {
				return y.BytesInOutput - x.BytesInOutput
			}
			return cmp.Compare(x.Path, y.Path)
		})
		a.TotalBytes += out.Bytes
		a.Outputs = append(a.Outputs, oa)
	}
	slices.SortFunc(a.Outputs, func(x, y OutputAnalysis) int {
		if x.Bytes != y.Bytes {
			return y.Bytes - x.Bytes
		}
		return cmp.Compare(x.Path, y.Path)
	})
	return a
}

type analyzer struct {
	mode           string
	statsFile      bool
	statsFilename  string
	reportFilename string
}

func newAnalyzer(opts map[string]any) analyzer {
	return analyzer{
		mode:           optString(opts, "analyzerMode", "static"),
		statsFile:      optBool(opts, "generateStatsFile", false),
		statsFilename:  optString(opts, "statsFilename", "stats.json"),
		reportFilename: optString(opts, "reportFilename", "report.html"),
	}
}

func (analyzer) Name() string { return PluginBundleAnalyzer }

func (a analyzer) Emit(ec emitContext) error {
	if a.statsFile {
		if err := writeFile(filepath.Join(ec.Outdir, a.statsFilename), []byte(ec.Result.Metafile)); err != nil {
			return err
		}
	}

	if ec.Metadata == nil {
		return ErrNotBuilt
	}
	analysis := Analyze(ec.Metadata)

	switch a.mode {
	case "disabled":
		return nil
	case "json":
		data, err := json.MarshalIndent(analysis, "", "  ")
		if err != nil {
			return err
		}
		return writeFile(filepath.Join(ec.Outdir, "report.json"), data)
	default:
		text := api.AnalyzeMetafile(ec.Result.Metafile, api.AnalyzeMetafileOptions{})
		if err := writeFile(filepath.Join(ec.Outdir, "report.txt"), []byte(text)); err != nil {
			return err
		}

		page, err := renderReport(analysis)
		if err != nil {
			return err
		}
		return writeFile(filepath.Join(ec.Outdir, a.reportFilename), page)
	}
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"bytes": func(n int) string {
		if n < 0 {
			n = 0
		}
		return humanize.Bytes(uint64(n))
	},
	"percent": func(f float64) string {
		return fmt.Sprintf("%.1f%%", f)
	},
}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Bundle report</title></head>
<body>
<h1>Bundle report</h1>
<p>Total output: {{ bytes .TotalBytes }}</p>
{{ range .Outputs }}
<h2>{{ .Path }} ({{ bytes .Bytes }})</h2>
{{ if .EntryPoint }}<p>Entry point: {{ .EntryPoint }}</p>{{ end }}
<table>
<tr><th>Input</th><th>Size</th><th>Share</th></tr>
{{ range .Inputs }}<tr><td>{{ .Path }}</td><td>{{ bytes .BytesInOutput }}</td><td>{{ percent .Percentage }}</td></tr>
{{ end }}</table>
{{ end }}
</body>
</html>
`))

func renderReport(a Analysis) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := reportTemplate.Execute(buf, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
