// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hierarchy

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox/naming"
)

//go:embed catalog.yaml
var catalogYAML []byte

// catalogFile is the on-disk shape of catalog.yaml.
type catalogFile struct {
	Version int            `yaml:"version"`
	Types   []catalogEntry `yaml:"types"`
}

type catalogEntry struct {
	Name       string   `yaml:"name"`
	Interface  bool     `yaml:"interface"`
	Super      string   `yaml:"super"`
	Interfaces []string `yaml:"interfaces"`
}

var (
	catalogOnce sync.Once
	catalog     *ClassHierarchy
	catalogErr  error
)

// Catalog returns the platform catalog hierarchy.
//
// Description:
//
//	Loaded from the embedded catalog.yaml on first call, verified, and
//	frozen. Every later call returns the same instance. Callers must not
//	insert into it; use Clone() to start a per-deployment hierarchy.
//
// Outputs:
//
//	*ClassHierarchy - The frozen catalog.
//	error - Wraps ErrCatalogInvalid if the embedded file is broken.
//
// Thread Safety:
//
//	Safe for concurrent use.
func Catalog() (*ClassHierarchy, error) {
	catalogOnce.Do(func() {
		catalog, catalogErr = LoadCatalog(catalogYAML)
		if catalogErr == nil {
			slog.Debug("platform catalog loaded", slog.Int("nodes", catalog.Len()))
		}
	})
	return catalog, catalogErr
}

// LoadCatalog parses, builds, verifies and freezes a catalog from YAML.
func LoadCatalog(data []byte) (*ClassHierarchy, error) {
	var file catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCatalogInvalid, err)
	}
	if file.Version != 1 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCatalogInvalid, file.Version)
	}

	h := New()
	for i, e := range file.Types {
		info, err := e.info()
		if err != nil {
			return nil, fmt.Errorf("%w: types[%d]: %v", ErrCatalogInvalid, i, err)
		}
		if _, err := h.Insert(info, SourceCatalog); err != nil {
			return nil, fmt.Errorf("%w: types[%d]: %v", ErrCatalogInvalid, i, err)
		}
	}

	if res := verify(h); !res.OK() {
		return nil, fmt.Errorf("%w: %v", ErrCatalogInvalid, res.Err())
	}
	h.Freeze()
	return h, nil
}

func (e catalogEntry) info() (naming.ClassInformation, error) {
	names := append([]string{e.Name}, e.Interfaces...)
	if e.Super != "" {
		names = append(names, e.Super)
	}
	for _, n := range names {
		if err := naming.ValidateInternalName(n); err != nil {
			return naming.ClassInformation{}, err
		}
		if !naming.IsPostRename(n) {
			return naming.ClassInformation{}, fmt.Errorf("%q is not post-rename", n)
		}
	}
	return naming.NewClassInformation(e.Name, e.Interface, e.Super, e.Interfaces, naming.TagPostRename), nil
}
