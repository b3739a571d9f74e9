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

// Package shapepb derives shape graphs from protobuf message descriptors,
// so a deserializer can be compiled for the JSON form of a protobuf message.
//
// The mapping follows proto3 JSON semantics: no field is required, implicit-
// presence fields fall back to their zero default, explicit-presence fields
// become optionals, and a oneof becomes a union flattened into the parent's
// key namespace. Message references always go behind an optional, which is
// also what keeps recursive message graphs finite.
package shapepb

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/hyperjson-io/hyperjson/shape"
)

// FromDescriptor derives the shape of md's JSON form.
func FromDescriptor(md protoreflect.MessageDescriptor) (*shape.Type, error) {
	b := &builder{
		memo: map[protoreflect.FullName]*shape.Type{},
		work: map[protoreflect.FullName]*shape.StructBuilder{},
	}
	ty, err := b.message(md)
	if err != nil {
		return nil, err
	}
	// Everything reachable only through optionals is still unbuilt after the
	// root returns; finish in reverse discovery order, leaves first.
	for i := len(b.order) - 1; i >= 0; i-- {
		b.memo[b.order[i].name] = b.order[i].sb.Build()
	}
	return ty, nil
}

type builder struct {
	memo  map[protoreflect.FullName]*shape.Type
	work  map[protoreflect.FullName]*shape.StructBuilder
	order []pending
}

type pending struct {
	name protoreflect.FullName
	sb   *shape.StructBuilder
}

// message returns the (possibly unbuilt) struct type for md. All references
// to it are indirect, so callers never need its layout before FromDescriptor
// finishes.
func (b *builder) message(md protoreflect.MessageDescriptor) (*shape.Type, error) {
	name := md.FullName()
	if ty, ok := b.memo[name]; ok {
		return ty, nil
	}
	if sb, ok := b.work[name]; ok {
		return sb.Type(), nil
	}

	sb := shape.NewStruct(string(name))
	b.work[name] = sb
	b.order = append(b.order, pending{name: name, sb: sb})

	fields := md.Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if od := fd.ContainingOneof(); od != nil && !od.IsSynthetic() {
			continue // Emitted with its oneof below.
		}
		ty, err := b.value(fd)
		if err != nil {
			return nil, err
		}
		switch {
		case ty.Kind() == shape.KindOptional:
			// Explicit presence, or a message reference: absent is a state,
			// not a default.
			sb.Field(fd.JSONName(), ty)
		default:
			// Implicit presence: absent means the zero default.
			sb.FieldDefault(fd.JSONName(), ty)
		}
	}

	oneofs := md.Oneofs()
	for i := 0; i < oneofs.Len(); i++ {
		od := oneofs.Get(i)
		if od.IsSynthetic() {
			continue
		}
		ub := shape.NewUnion(string(od.FullName()))
		ofs := od.Fields()
		for j := 0; j < ofs.Len(); j++ {
			fd := ofs.Get(j)
			ty, err := b.value(fd)
			if err != nil {
				return nil, err
			}
			ub.Variant(fd.JSONName(), ty)
		}
		// A oneof may be unset, so its absence is not an error.
		sb.FlattenDefault(string(od.Name()), ub.Build())
	}

	return sb.Type(), nil
}

func (b *builder) value(fd protoreflect.FieldDescriptor) (*shape.Type, error) {
	switch {
	case fd.IsMap():
		if fd.MapKey().Kind() != protoreflect.StringKind {
			return nil, fmt.Errorf(
				"shapepb: %v: only string map keys have a JSON object form", fd.FullName())
		}
		value, err := b.singular(fd.MapValue())
		if err != nil {
			return nil, err
		}
		return shape.MapOf(value), nil

	case fd.IsList():
		elem, err := b.singular(fd)
		if err != nil {
			return nil, err
		}
		return shape.ListOf(elem), nil

	default:
		ty, err := b.singular(fd)
		if err != nil {
			return nil, err
		}
		if fd.HasPresence() && ty.Kind() != shape.KindOptional {
			ty = shape.OptionalOf(ty)
		}
		return ty, nil
	}
}

func (b *builder) singular(fd protoreflect.FieldDescriptor) (*shape.Type, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return shape.Bool(), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return shape.I32(), nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return shape.I64(), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return shape.U32(), nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return shape.U64(), nil
	case protoreflect.FloatKind:
		return shape.F32(), nil
	case protoreflect.DoubleKind:
		return shape.F64(), nil
	case protoreflect.StringKind, protoreflect.BytesKind:
		return shape.String(), nil
	case protoreflect.EnumKind:
		// JSON carries enums as numbers in this mapping; symbolic names are
		// a tokenizer concern this package does not take on.
		return shape.I32(), nil
	case protoreflect.MessageKind, protoreflect.GroupKind:
		msg, err := b.message(fd.Message())
		if err != nil {
			return nil, err
		}
		return shape.OptionalOf(msg), nil
	default:
		return nil, fmt.Errorf("shapepb: %v: unhandled kind %v", fd.FullName(), fd.Kind())
	}
}
