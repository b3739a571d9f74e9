// Copyright 2025-2026 The hyperjson Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shape

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromYAML builds a shape graph from a declarative description and returns
// the named types.
//
// The document maps type names to declarations; each declaration is either a
// struct (an ordered field list) or a union (a variant list):
//
//	types:
//	  point:
//	    struct:
//	      - {name: x, type: f64}
//	      - {name: y, type: f64, default: true}
//	      - {name: rest, type: map string, flatten: true}
//	  node:
//	    struct:
//	      - {name: value, type: i64}
//	      - {name: next, type: optional node}
//	  geometry:
//	    union:
//	      - {tag: point, type: point}
//	      - {tag: empty}
//
// Type strings are a scalar name (bool, i8..i64, u8..u64, f32, f64, string),
// a declared type name, or "optional T", "list T", "map T" applied
// recursively. Self-reference is allowed wherever the reference goes behind
// a pointer, as with "optional node" above; inline recursion has no finite
// layout and is an error.
func FromYAML(data []byte) (map[string]*Type, error) {
	var d yamlDoc
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("hyperjson/shape: parsing yaml: %w", err)
	}
	if len(d.Types) == 0 {
		return nil, fmt.Errorf("hyperjson/shape: document declares no types")
	}

	l := &yamlLoader{
		structs: map[string]*StructBuilder{},
		unions:  map[string]*UnionBuilder{},
		deps:    map[string][]string{},
	}
	for name, td := range d.Types {
		if td == nil || (td.Struct == nil) == (td.Union == nil) {
			return nil, fmt.Errorf(
				"hyperjson/shape: type %q must declare exactly one of struct, union", name)
		}
		if td.Struct != nil {
			l.structs[name] = NewStruct(name)
		} else {
			l.unions[name] = NewUnion(name)
		}
	}

	for name, td := range d.Types {
		if err := l.populate(name, td); err != nil {
			return nil, err
		}
	}

	// Inline containment forces build order; a declared-before-use rule would
	// reject half the useful documents, so order is derived instead.
	out := make(map[string]*Type, len(d.Types))
	state := map[string]int{}
	for name := range d.Types {
		if err := l.build(name, state, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type yamlDoc struct {
	Types map[string]*yamlType `yaml:"types"`
}

type yamlType struct {
	Struct []yamlField   `yaml:"struct"`
	Union  []yamlVariant `yaml:"union"`
}

type yamlField struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Default bool   `yaml:"default"`
	Flatten bool   `yaml:"flatten"`
}

type yamlVariant struct {
	Tag  string `yaml:"tag"`
	Type string `yaml:"type"`
}

type yamlLoader struct {
	structs map[string]*StructBuilder
	unions  map[string]*UnionBuilder

	// deps records inline (bare-named) references; these are the edges that
	// constrain build order. References behind optional/list/map wrappers
	// are pointers and constrain nothing.
	deps map[string][]string
}

func (l *yamlLoader) populate(name string, td *yamlType) error {
	if sb, ok := l.structs[name]; ok {
		for _, f := range td.Struct {
			if f.Name == "" {
				return fmt.Errorf("hyperjson/shape: %q has a field with no name", name)
			}
			ty, err := l.resolve(name, f.Type, false)
			if err != nil {
				return fmt.Errorf("hyperjson/shape: %q.%s: %w", name, f.Name, err)
			}
			switch {
			case f.Flatten && f.Default:
				sb.FlattenDefault(f.Name, ty)
			case f.Flatten:
				sb.Flatten(f.Name, ty)
			case f.Default:
				sb.FieldDefault(f.Name, ty)
			default:
				sb.Field(f.Name, ty)
			}
		}
		return nil
	}

	ub := l.unions[name]
	for _, v := range td.Union {
		if v.Tag == "" {
			return fmt.Errorf("hyperjson/shape: %q has a variant with no tag", name)
		}
		if v.Type == "" {
			ub.Unit(v.Tag)
			continue
		}
		ty, err := l.resolve(name, v.Type, false)
		if err != nil {
			return fmt.Errorf("hyperjson/shape: %q.%s: %w", name, v.Tag, err)
		}
		ub.Variant(v.Tag, ty)
	}
	return nil
}

var yamlScalars = map[string]*Type{
	"bool":   Bool(),
	"i8":     I8(),
	"i16":    I16(),
	"i32":    I32(),
	"i64":    I64(),
	"u8":     U8(),
	"u16":    U16(),
	"u32":    U32(),
	"u64":    U64(),
	"f32":    F32(),
	"f64":    F64(),
	"string": String(),
}

func (l *yamlLoader) resolve(owner, s string, wrapped bool) (*Type, error) {
	s = strings.TrimSpace(s)
	if head, rest, ok := strings.Cut(s, " "); ok {
		elem, err := l.resolve(owner, rest, true)
		if err != nil {
			return nil, err
		}
		switch head {
		case "optional":
			return OptionalOf(elem), nil
		case "list":
			return ListOf(elem), nil
		case "map":
			return MapOf(elem), nil
		}
		return nil, fmt.Errorf("unknown type constructor %q", head)
	}

	if ty, ok := yamlScalars[s]; ok {
		return ty, nil
	}
	if sb, ok := l.structs[s]; ok {
		if !wrapped {
			l.deps[owner] = append(l.deps[owner], s)
		}
		return sb.Type(), nil
	}
	if ub, ok := l.unions[s]; ok {
		if !wrapped {
			l.deps[owner] = append(l.deps[owner], s)
		}
		return ub.Type(), nil
	}
	if s == "" {
		return nil, fmt.Errorf("missing type")
	}
	return nil, fmt.Errorf("unknown type %q", s)
}

const (
	buildPending = iota
	buildInProgress
	buildDone
)

func (l *yamlLoader) build(name string, state map[string]int, out map[string]*Type) error {
	switch state[name] {
	case buildDone:
		return nil
	case buildInProgress:
		return fmt.Errorf(
			"hyperjson/shape: %q contains itself inline; wrap the cycle in an optional", name)
	}
	state[name] = buildInProgress
	for _, dep := range l.deps[name] {
		if err := l.build(dep, state, out); err != nil {
			return err
		}
	}
	if sb, ok := l.structs[name]; ok {
		out[name] = sb.Build()
	} else {
		out[name] = l.unions[name].Build()
	}
	state[name] = buildDone
	return nil
}
