// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	"fmt"
	"sort"
)

// Module is a named set of compiled class artifacts plus the class that
// serves as its entry point. Class names are pre-rename internal names.
type Module struct {
	// Name labels the module in logs and results. It plays no part in
	// the transformation.
	Name string `json:"name"`

	// EntryPoint is the internal name of the entry point class.
	EntryPoint string `json:"entry_point"`

	// Classes maps internal names to class-file bytes.
	Classes map[string][]byte `json:"classes"`
}

// NewModule returns an empty module.
func NewModule(name, entryPoint string) *Module {
	return &Module{Name: name, EntryPoint: entryPoint, Classes: make(map[string][]byte)}
}

// Add adds a class. It returns ErrDuplicateClass if name is already
// present.
func (m *Module) Add(name string, data []byte) error {
	if m.Classes == nil {
		m.Classes = make(map[string][]byte)
	}
	if _, ok := m.Classes[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateClass, name)
	}
	m.Classes[name] = data
	return nil
}

// Names returns the class names in sorted order.
func (m *Module) Names() []string {
	names := make([]string, 0, len(m.Classes))
	for name := range m.Classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Size returns the total number of class bytes.
func (m *Module) Size() int64 {
	var n int64
	for _, data := range m.Classes {
		n += int64(len(data))
	}
	return n
}

// Limits bounds the cost of one pipeline run. The pipeline does not
// enforce them itself; Admit is the admission check callers run first.
type Limits struct {
	// MaxClasses is the maximum number of classes in a module.
	MaxClasses int `json:"max_classes" yaml:"max_classes" validate:"gte=1"`

	// MaxClassBytes is the maximum size of one class artifact.
	MaxClassBytes int `json:"max_class_bytes" yaml:"max_class_bytes" validate:"gte=10"`

	// MaxTotalBytes is the maximum size of all artifacts together.
	MaxTotalBytes int64 `json:"max_total_bytes" yaml:"max_total_bytes" validate:"gte=10"`
}

// DefaultLimits returns limits suitable for contract-sized modules.
func DefaultLimits() Limits {
	return Limits{
		MaxClasses:    2048,
		MaxClassBytes: 1 << 20,
		MaxTotalBytes: 32 << 20,
	}
}

// Admit checks m against l.
//
// Outputs:
//
//	error - ErrModuleTooLarge naming the first limit exceeded, or nil.
func (l Limits) Admit(m *Module) error {
	if len(m.Classes) > l.MaxClasses {
		return fmt.Errorf("%w: %d classes, limit %d", ErrModuleTooLarge, len(m.Classes), l.MaxClasses)
	}
	var total int64
	for _, name := range m.Names() {
		size := len(m.Classes[name])
		if size > l.MaxClassBytes {
			return fmt.Errorf("%w: class %s is %d bytes, limit %d", ErrModuleTooLarge, name, size, l.MaxClassBytes)
		}
		total += int64(size)
	}
	if total > l.MaxTotalBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrModuleTooLarge, total, l.MaxTotalBytes)
	}
	return nil
}
