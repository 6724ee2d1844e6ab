// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// writer is a big-endian byte sink that records the first size overflow.
type writer struct {
	buf bytes.Buffer
	err error
}

func (w *writer) u1(v uint8) { w.buf.WriteByte(v) }

func (w *writer) u2(v uint16) {
	w.buf.Write(binary.BigEndian.AppendUint16(nil, v))
}

func (w *writer) u4(v uint32) {
	w.buf.Write(binary.BigEndian.AppendUint32(nil, v))
}

func (w *writer) u8(v uint64) {
	w.buf.Write(binary.BigEndian.AppendUint64(nil, v))
}

// count writes a u2 table length.
func (w *writer) count(n int, what string) {
	if n > math.MaxUint16 {
		w.setErr(fmt.Errorf("%w: %s count %d", ErrTooLarge, what, n))
		return
	}
	w.u2(uint16(n))
}

func (w *writer) setErr(err error) {
	if w.err == nil {
		w.err = err
	}
}

// Encode serializes cf.
//
// Outputs:
//
//	[]byte - The class-file bytes.
//	error - ErrPoolOverflow or ErrTooLarge if a table exceeds its length field.
func Encode(cf *ClassFile) ([]byte, error) {
	if cf.Pool.Count() > MaxPoolCount {
		return nil, fmt.Errorf("%w: %d entries", ErrPoolOverflow, cf.Pool.Count())
	}

	w := &writer{}
	w.u4(Magic)
	w.u2(cf.MinorVersion)
	w.u2(cf.MajorVersion)
	writePool(w, cf.Pool)
	w.u2(cf.AccessFlags)
	w.u2(cf.ThisClass)
	w.u2(cf.SuperClass)
	w.count(len(cf.Interfaces), "interfaces")
	for _, idx := range cf.Interfaces {
		w.u2(idx)
	}
	writeMembers(w, cf.Fields, "fields")
	writeMembers(w, cf.Methods, "methods")
	writeAttributes(w, cf.Attributes)
	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}

func writePool(w *writer, p *ConstantPool) {
	w.u2(uint16(p.Count()))
	for i := 1; i < len(p.entries); i++ {
		c := p.entries[i]
		if c.Tag == TagInvalid {
			// Second slot of a long or double.
			continue
		}
		w.u1(uint8(c.Tag))
		switch c.Tag {
		case TagUtf8:
			if len(c.Text) > math.MaxUint16 {
				w.setErr(fmt.Errorf("%w: utf8 constant #%d is %d bytes", ErrTooLarge, i, len(c.Text)))
				return
			}
			w.u2(uint16(len(c.Text)))
			w.buf.WriteString(c.Text)
		case TagInteger, TagFloat:
			w.u4(uint32(c.Bits))
		case TagLong, TagDouble:
			w.u8(c.Bits)
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			w.u2(c.A)
		case TagMethodHandle:
			w.u1(c.Kind)
			w.u2(c.A)
		default:
			w.u2(c.A)
			w.u2(c.B)
		}
	}
}

func writeMembers(w *writer, ms []Member, what string) {
	w.count(len(ms), what)
	for _, m := range ms {
		w.u2(m.AccessFlags)
		w.u2(m.NameIndex)
		w.u2(m.DescriptorIndex)
		writeAttributes(w, m.Attributes)
	}
}

func writeAttributes(w *writer, as []Attribute) {
	w.count(len(as), "attributes")
	for _, a := range as {
		if len(a.Info) > math.MaxInt32 {
			w.setErr(fmt.Errorf("%w: attribute payload %d bytes", ErrTooLarge, len(a.Info)))
			return
		}
		w.u2(a.NameIndex)
		w.u4(uint32(len(a.Info)))
		w.buf.Write(a.Info)
	}
}
