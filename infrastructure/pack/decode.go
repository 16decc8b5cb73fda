// Package pack decodes prebuilt rule packages from asset documents. The
// subpackages fetch those documents from a directory, a git repository, a
// blob bucket or Kubernetes ConfigMaps.
package pack

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	domainpack "github.com/felixgeelhaar/ruleup/domain/pack"
	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// File is a named asset document.
type File struct {
	Name string
	Data []byte
}

// Manifest describes a package. It is read from a manifest.{yaml,yml,json}
// file next to the assets.
type Manifest struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// Format is an asset document encoding.
type Format string

// Supported formats.
const (
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
	FormatYAML   Format = "yaml"
)

// FormatOf returns the document format implied by a file name.
func FormatOf(name string) (Format, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		return FormatJSON, nil
	case ".ndjson":
		return FormatNDJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", domainpack.ErrUnsupportedFormat, name)
	}
}

// IsAssetFile reports whether name has a supported extension.
func IsAssetFile(name string) bool {
	_, err := FormatOf(name)
	return err == nil
}

// IsManifest reports whether name is a package manifest.
func IsManifest(name string) bool {
	base := strings.ToLower(path.Base(name))
	return strings.TrimSuffix(base, path.Ext(base)) == "manifest" && IsAssetFile(base)
}

// Decode decodes every asset in a document. A document holds a single asset
// object, a list of asset objects, or an object with a "rules" list; YAML
// documents may hold several of those separated by "---".
func Decode(name string, data []byte) ([]*rule.Asset, error) {
	format, err := FormatOf(name)
	if err != nil {
		return nil, err
	}

	var values []any
	switch format {
	case FormatJSON:
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domainpack.ErrInvalidPack, name, err)
		}
		values = append(values, v)
	case FormatNDJSON:
		values, err = decodeNDJSON(data)
	case FormatYAML:
		values, err = decodeYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domainpack.ErrInvalidPack, name, err)
	}

	var assets []*rule.Asset
	for _, v := range values {
		objs, err := assetObjects(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domainpack.ErrInvalidPack, name, err)
		}
		for _, obj := range objs {
			params, err := rule.NewParams(obj)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			a, err := rule.NewAsset(params)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			assets = append(assets, a)
		}
	}
	return assets, nil
}

func decodeNDJSON(data []byte) ([]any, error) {
	var values []any
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var v any
		if err := json.Unmarshal(text, &v); err != nil {
			return nil, fmt.Errorf("line %d: %v", line, err)
		}
		values = append(values, v)
	}
	return values, scanner.Err()
}

func decodeYAML(data []byte) ([]any, error) {
	var values []any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			return values, nil
		}
		if err != nil {
			return nil, err
		}
		if v != nil {
			values = append(values, v)
		}
	}
}

func assetObjects(v any) ([]map[string]any, error) {
	switch t := v.(type) {
	case map[string]any:
		if rules, ok := t["rules"]; ok && t[rule.FieldRuleID] == nil {
			return assetObjects(rules)
		}
		return []map[string]any{t}, nil
	case []any:
		out := make([]map[string]any, 0, len(t))
		for i, item := range t {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("item %d is not an object", i)
			}
			out = append(out, obj)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected document of type %T", v)
	}
}

// DecodeManifest decodes a package manifest.
func DecodeManifest(name string, data []byte) (Manifest, error) {
	var m Manifest
	format, err := FormatOf(name)
	if err != nil {
		return m, err
	}
	if format == FormatYAML {
		err = yaml.Unmarshal(data, &m)
	} else {
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return m, fmt.Errorf("%w: %s: %v", domainpack.ErrInvalidPack, name, err)
	}
	return m, nil
}

// Build decodes files into a package. Unsupported files are ignored. Decode
// errors of every file are joined. defaultName names a package without a
// manifest.
func Build(defaultName string, files []File) (*domainpack.Pack, error) {
	manifest := Manifest{Name: defaultName}
	var assets []*rule.Asset
	var errs []error

	for _, f := range files {
		if !IsAssetFile(f.Name) {
			continue
		}
		if IsManifest(f.Name) {
			m, err := DecodeManifest(f.Name, f.Data)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if m.Name != "" {
				manifest.Name = m.Name
			}
			manifest.Version = m.Version
			continue
		}
		decoded, err := Decode(f.Name, f.Data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		assets = append(assets, decoded...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return domainpack.New(manifest.Name, manifest.Version, assets)
}
