// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package descriptor

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox/naming"
)

// RenameFunc maps a valid internal class name to its replacement.
type RenameFunc func(name string) string

// Type is one parsed field type.
type Type struct {
	// Dims is the number of leading array markers.
	Dims int

	// Base is the element code: one of "BCDFIJSZ", 'V' for a void return,
	// or 'L' for an object type.
	Base byte

	// ClassName is the internal name of an object element type.
	ClassName string
}

// Method is a parsed method descriptor.
type Method struct {
	Params []Type
	Return Type
}

// IsMethod reports whether desc looks like a method descriptor.
func IsMethod(desc string) bool {
	return strings.HasPrefix(desc, "(")
}

// Rewrite rewrites a field or method descriptor.
func Rewrite(desc string, rename RenameFunc) (string, error) {
	if IsMethod(desc) {
		return RewriteMethod(desc, rename)
	}
	return RewriteField(desc, rename)
}

// RewriteField rewrites a single field descriptor.
func RewriteField(desc string, rename RenameFunc) (string, error) {
	p := parser{in: desc, rename: rename}
	if desc == "" {
		return "", p.fail(ErrEmpty)
	}
	var b strings.Builder
	b.Grow(len(desc) + 8)
	if _, err := p.fieldType(&b, false); err != nil {
		return "", err
	}
	if p.pos != len(desc) {
		return "", p.fail(ErrTrailingData)
	}
	return b.String(), nil
}

// RewriteMethod rewrites a method descriptor. Parenthesization and every
// non-name byte are preserved.
func RewriteMethod(desc string, rename RenameFunc) (string, error) {
	p := parser{in: desc, rename: rename}
	var b strings.Builder
	b.Grow(len(desc) + 16)
	if _, err := p.method(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// RewriteClassRef rewrites the name held by a class constant. Class
// constants carry either an internal name or, for array types, a field
// descriptor starting with '['.
func RewriteClassRef(name string, rename RenameFunc) (string, error) {
	if strings.HasPrefix(name, "[") {
		return RewriteField(name, rename)
	}
	if err := naming.ValidateInternalName(name); err != nil {
		return "", &Error{Descriptor: name, Err: errJoin(ErrInvalidClassName, err)}
	}
	return rename(name), nil
}

// ParseField parses a field descriptor without rewriting it.
func ParseField(desc string) (Type, error) {
	p := parser{in: desc}
	if desc == "" {
		return Type{}, p.fail(ErrEmpty)
	}
	t, err := p.fieldType(nil, false)
	if err != nil {
		return Type{}, err
	}
	if p.pos != len(desc) {
		return Type{}, p.fail(ErrTrailingData)
	}
	return t, nil
}

// ParseMethod parses a method descriptor without rewriting it.
func ParseMethod(desc string) (Method, error) {
	p := parser{in: desc}
	return p.method(nil)
}

// parser is a single-use recursive descent over one descriptor. When out
// is nil the parser only validates.
type parser struct {
	in     string
	pos    int
	rename RenameFunc
}

func (p *parser) fail(err error) error {
	return &Error{Descriptor: p.in, Pos: p.pos, Err: err}
}

func (p *parser) method(out *strings.Builder) (Method, error) {
	var m Method
	if p.pos >= len(p.in) {
		return m, p.fail(ErrEmpty)
	}
	if p.in[p.pos] != '(' {
		return m, p.fail(ErrUnexpectedCharacter)
	}
	p.emit(out, "(")
	p.pos++

	for {
		if p.pos >= len(p.in) {
			return m, p.fail(ErrUnexpectedEnd)
		}
		if p.in[p.pos] == ')' {
			p.emit(out, ")")
			p.pos++
			break
		}
		t, err := p.fieldType(out, false)
		if err != nil {
			return m, err
		}
		m.Params = append(m.Params, t)
	}

	ret, err := p.fieldType(out, true)
	if err != nil {
		return m, err
	}
	m.Return = ret
	if p.pos != len(p.in) {
		return m, p.fail(ErrTrailingData)
	}
	return m, nil
}

// fieldType parses one type starting at p.pos. allowVoid permits a bare
// 'V' (return position only).
func (p *parser) fieldType(out *strings.Builder, allowVoid bool) (Type, error) {
	var t Type
	start := p.pos
	for p.pos < len(p.in) && p.in[p.pos] == '[' {
		p.pos++
	}
	t.Dims = p.pos - start
	if t.Dims > MaxArrayDimensions {
		return t, p.fail(ErrTooManyDimensions)
	}
	p.emit(out, p.in[start:p.pos])

	if p.pos >= len(p.in) {
		return t, p.fail(ErrUnexpectedEnd)
	}

	c := p.in[p.pos]
	switch c {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		t.Base = c
		p.emit(out, p.in[p.pos:p.pos+1])
		p.pos++
		return t, nil

	case 'V':
		if !allowVoid || t.Dims > 0 {
			return t, p.fail(ErrVoidParameter)
		}
		t.Base = c
		p.emit(out, "V")
		p.pos++
		return t, nil

	case 'L':
		end := strings.IndexByte(p.in[p.pos+1:], ';')
		if end < 0 {
			return t, p.fail(ErrUnterminatedReference)
		}
		name := p.in[p.pos+1 : p.pos+1+end]
		if err := naming.ValidateInternalName(name); err != nil {
			return t, p.fail(errJoin(ErrInvalidClassName, err))
		}
		t.Base = 'L'
		t.ClassName = name
		if out != nil {
			renamed := name
			if p.rename != nil {
				renamed = p.rename(name)
			}
			out.WriteByte('L')
			out.WriteString(renamed)
			out.WriteByte(';')
		}
		p.pos += end + 2
		return t, nil

	default:
		return t, p.fail(ErrUnexpectedCharacter)
	}
}

func (p *parser) emit(out *strings.Builder, s string) {
	if out != nil {
		out.WriteString(s)
	}
}

// errJoin keeps both errors visible to errors.Is.
func errJoin(sentinel, cause error) error {
	return fmt.Errorf("%w: %w", sentinel, cause)
}
