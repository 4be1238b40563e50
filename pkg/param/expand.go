package param

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/basaltrun/slurmpipe/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Record is a single work package's parameter set, tagged with the source
// file it came from so error reporting can point back at it.
type Record struct {
	Params map[string]Value
	Source string
}

// ExpandFile reads one param_files entry and returns the records it
// contributes, in the order spec.md §4.2 requires: record-list files in
// file order, generator files as a lexicographic Cartesian product, tabular
// files one record per row, with empty cells decoded as null.
func ExpandFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return expandStructured(f, path, yaml.NewDecoder(f).Decode)
	case ".json":
		return expandStructured(f, path, json.NewDecoder(f).Decode)
	case ".csv":
		return expandTabular(f, path)
	default:
		return nil, errors.New("param: unsupported param_files entry type: " + path)
	}
}

func expandStructured(_ io.Reader, path string, decode func(any) error) ([]Record, error) {
	var doc any
	if err := decode(&doc); err != nil {
		return nil, errors.WrapWithNote("decoding "+path, err)
	}

	switch t := doc.(type) {
	case []any:
		return recordList(t, path)
	case map[string]any:
		return generator(t, path)
	default:
		return nil, errors.New("param: " + path + " is neither a record list nor a generator mapping")
	}
}

func recordList(items []any, path string) ([]Record, error) {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, errors.New("param: " + path + " contains a non-mapping record")
		}
		params, err := toValueMap(m)
		if err != nil {
			return nil, errors.WrapWithNote(path, err)
		}
		records = append(records, Record{Params: params, Source: path})
	}
	return records, nil
}

// generator expands a mapping whose values are lists into the full
// Cartesian product, in lexicographic key order. A value that is itself a
// single-element list-of-list is treated as a literal list value, not a
// dimension to expand.
func generator(doc map[string]any, path string) ([]Record, error) {
	basis := make(map[string][]Value, len(doc))
	for key, raw := range doc {
		vs, ok := raw.([]any)
		if !ok {
			return nil, errors.New("param: " + path + ": generator key " + key + " is not a list")
		}
		if len(vs) == 0 {
			return nil, errors.New("param: " + path + ": generator key " + key + " is an empty list")
		}
		if isLiteralListValue(vs) {
			inner, err := FromAny(vs[0])
			if err != nil {
				return nil, errors.Wrap(err)
			}
			basis[key] = []Value{inner}
			continue
		}
		values := make([]Value, len(vs))
		for i, item := range vs {
			v, err := FromAny(item)
			if err != nil {
				return nil, errors.Wrap(err)
			}
			values[i] = v
		}
		basis[key] = values
	}

	products := CartesianProduct(basis)
	records := make([]Record, len(products))
	for i, p := range products {
		records[i] = Record{Params: p, Source: path}
	}
	return records, nil
}

// isLiteralListValue reports whether vs is a single-element list whose
// sole element is itself a list, per spec.md §4.2's literal-list escape
// hatch (otherwise a one-item dimension is indistinguishable from a
// literal list value).
func isLiteralListValue(vs []any) bool {
	if len(vs) != 1 {
		return false
	}
	_, ok := vs[0].([]any)
	return ok
}

func expandTabular(f *os.File, path string) ([]Record, error) {
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return []Record{}, nil
	}
	if err != nil {
		return nil, errors.WrapWithNote("reading header of "+path, err)
	}

	records := []Record{}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapWithNote("reading row of "+path, err)
		}

		params := make(map[string]Value, len(header))
		for i, col := range header {
			if i >= len(row) || row[i] == "" {
				params[col] = Null()
				continue
			}
			params[col] = String(row[i])
		}
		records = append(records, Record{Params: params, Source: path})
	}
	return records, nil
}

func toValueMap(m map[string]any) (map[string]Value, error) {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		cv, err := FromAny(v)
		if err != nil {
			return nil, err
		}
		out[k] = cv
	}
	return out, nil
}

// ExpandAll concatenates ExpandFile across param_files in declared order,
// matching spec.md §4.2's concatenation rule.
func ExpandAll(paths []string) ([]Record, error) {
	all := make([]Record, 0, len(paths))
	for _, path := range paths {
		records, err := ExpandFile(path)
		if err != nil {
			return nil, errors.WrapWithNote("expanding "+path, err)
		}
		all = append(all, records...)
	}
	return all, nil
}
