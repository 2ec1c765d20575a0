package bundler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

var filenamePlaceholder = regexp.MustCompile(`\[(name|id|ext|(?:chunk|content|full)?hash)(?::(\d+))?\]`)

// cssExtract moves the stylesheets esbuild writes next to their scripts to
// the css-extract filename templates.
type cssExtract struct {
	filename      string
	chunkFilename string
}

func newCSSExtract(opts map[string]any) cssExtract {
	filename := optString(opts, "filename", "[name].css")
	return cssExtract{
		filename:      filename,
		chunkFilename: optString(opts, "chunkFilename", filename),
	}
}

func (cssExtract) Name() string { return PluginCSSExtract }

// Emit renames every stylesheet output along with its source map, then
// rewrites the metadata and the metafile to the new paths.
func (c cssExtract) Emit(ec emitContext) error {
	if ec.Metadata == nil {
		return ErrNotBuilt
	}

	bundles := make(map[string]bool)
	for _, info := range ec.Metadata.Outputs {
		if info.CSSBundle != "" {
			bundles[info.CSSBundle] = true
		}
	}

	index := make(map[string]int, len(ec.Result.OutputFiles))
	for i, file := range ec.Result.OutputFiles {
		index[file.Path] = i
	}

	renames := make(map[string]string)
	sizes := make(map[string]int)
	for i := range ec.Result.OutputFiles {
		file := &ec.Result.OutputFiles[i]
		if filepath.Ext(file.Path) != ".css" {
			continue
		}

		key := ec.outputKey(file.Path)
		tmpl := c.chunkFilename
		if bundles[key] || ec.Metadata.Outputs[key].EntryPoint != "" {
			tmpl = c.filename
		}

		name := strings.TrimSuffix(filepath.Base(file.Path), ".css")
		target := filepath.Join(ec.Outdir, filepath.FromSlash(renderFilename(tmpl, name, file.Contents)))
		if target == file.Path {
			continue
		}

		contents := file.Contents
		if j, ok := index[file.Path+".map"]; ok {
			sourceMap := &ec.Result.OutputFiles[j]
			if err := moveOutput(sourceMap.Path, target+".map", sourceMap.Contents); err != nil {
				return err
			}
			renames[ec.outputKey(sourceMap.Path)] = ec.outputKey(target + ".map")
			sourceMap.Path = target + ".map"

			contents = []byte(strings.Replace(string(contents),
				"sourceMappingURL="+filepath.Base(file.Path)+".map",
				"sourceMappingURL="+filepath.Base(target)+".map", 1))
		}

		if err := moveOutput(file.Path, target, contents); err != nil {
			return err
		}
		log.Debug().Str("from", file.Path).Str("to", target).Msg("Moved stylesheet")

		newKey := ec.outputKey(target)
		renames[key] = newKey
		sizes[newKey] = len(contents)
		file.Path = target
		file.Contents = contents
	}

	if len(renames) == 0 {
		return nil
	}

	renameOutputs(ec.Metadata, renames, sizes)

	metafile, err := renameMetafile(ec.Result.Metafile, renames, sizes)
	if err != nil {
		return err
	}
	ec.Result.Metafile = metafile

	return nil
}

// outputKey converts an output file path into its metafile key.
func (ec emitContext) outputKey(path string) string {
	rel, err := filepath.Rel(ec.WorkingDir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// renderFilename expands a css-extract filename template. Hash placeholders
// take the xxhash of contents, truncated to the requested length.
func renderFilename(tmpl, name string, contents []byte) string {
	sum := strconv.FormatUint(xxhash.Sum64(contents), 16)
	sum = strings.Repeat("0", 16-len(sum)) + sum

	return filenamePlaceholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		parts := filenamePlaceholder.FindStringSubmatch(m)
		switch parts[1] {
		case "name", "id":
			return name
		case "ext":
			return ".css"
		}
		if n, err := strconv.Atoi(parts[2]); err == nil && n < len(sum) {
			return sum[:n]
		}
		return sum
	})
}

func moveOutput(from, to string, contents []byte) error {
	if err := writeFile(to, contents); err != nil {
		return err
	}
	if err := os.Remove(from); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func renameOutputs(meta *BuildMetadata, renames map[string]string, sizes map[string]int) {
	outputs := make(map[string]OutputInfo, len(meta.Outputs))
	for key, info := range meta.Outputs {
		if to, ok := renames[key]; ok {
			key = to
		}
		if n, ok := sizes[key]; ok {
			info.Bytes = n
		}
		if to, ok := renames[info.CSSBundle]; ok {
			info.CSSBundle = to
		}
		outputs[key] = info
	}
	meta.Outputs = outputs
}

// renameMetafile applies renames to the raw metafile so the stats file and
// the text analysis agree with the parsed metadata.
func renameMetafile(metafile string, renames map[string]string, sizes map[string]int) (string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(metafile), &raw); err != nil {
		return "", fmt.Errorf("failed to parse metafile: %w", err)
	}

	var outputs map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw["outputs"], &outputs); err != nil {
		return "", fmt.Errorf("failed to parse metafile outputs: %w", err)
	}

	renamed := make(map[string]map[string]json.RawMessage, len(outputs))
	for key, info := range outputs {
		if to, ok := renames[key]; ok {
			key = to
		}
		if n, ok := sizes[key]; ok {
			info["bytes"] = json.RawMessage(strconv.Itoa(n))
		}
		if bundle, ok := info["cssBundle"]; ok {
			var from string
			if err := json.Unmarshal(bundle, &from); err == nil {
				if to, ok := renames[from]; ok {
					info["cssBundle"], _ = json.Marshal(to)
				}
			}
		}
		renamed[key] = info
	}

	data, err := json.Marshal(renamed)
	if err != nil {
		return "", err
	}
	raw["outputs"] = data

	out, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
