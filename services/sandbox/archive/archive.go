// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive converts between modules and the containers they are
// shipped in: JAR files and directories of .class files.
//
// Reading enforces sandbox.Limits while decompressing, so a small archive
// cannot expand into an unbounded amount of memory.
package archive

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox"
)

var (
	// ErrNoEntryPoint is returned when no entry point was given and the
	// manifest has no Main-Class.
	ErrNoEntryPoint = errors.New("no entry point: pass one or set Main-Class")

	// ErrUnsafePath is returned for archive entries that escape the root.
	ErrUnsafePath = errors.New("unsafe archive entry path")
)

const (
	classSuffix  = ".class"
	manifestPath = "META-INF/MANIFEST.MF"

	maxManifestBytes = 64 << 10
)

// Option configures reading.
type Option func(*options)

type options struct {
	entryPoint string
	limits     sandbox.Limits
}

// WithEntryPoint sets the entry point, overriding any Main-Class. Both
// internal (a/b/C) and binary (a.b.C) names are accepted.
func WithEntryPoint(name string) Option {
	return func(o *options) {
		o.entryPoint = internalName(name)
	}
}

// WithLimits sets the limits enforced while reading. Default:
// sandbox.DefaultLimits().
func WithLimits(l sandbox.Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}

func newOptions(opts []Option) *options {
	o := &options{limits: sandbox.DefaultLimits()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OpenJar reads the JAR at path. The module is named after the file.
func OpenJar(p string, opts ...Option) (*sandbox.Module, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return ReadJar(f, info.Size(), strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)), opts...)
}

// ReadJar reads a module from a JAR.
//
// Description:
//
//	Every top-level .class entry becomes a module class keyed by its
//	internal name. module-info.class and multi-release overlays under
//	META-INF/ are skipped. The entry point is the WithEntryPoint value,
//	else the manifest Main-Class.
//
// Outputs:
//
//	*sandbox.Module - The module. It has not been through the pipeline.
//	error - ErrNoEntryPoint, ErrUnsafePath, sandbox.ErrModuleTooLarge,
//	sandbox.ErrDuplicateClass, or a zip error.
func ReadJar(r io.ReaderAt, size int64, name string, opts ...Option) (*sandbox.Module, error) {
	o := newOptions(opts)
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open jar: %w", err)
	}

	m := sandbox.NewModule(name, o.entryPoint)
	var total int64
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entry := f.Name
		if !fs.ValidPath(entry) {
			return nil, fmt.Errorf("%w: %q", ErrUnsafePath, entry)
		}

		if entry == manifestPath {
			if m.EntryPoint != "" {
				continue
			}
			data, err := readEntry(f, maxManifestBytes)
			if err != nil {
				return nil, err
			}
			m.EntryPoint = mainClass(data)
			continue
		}
		className, ok := classEntry(entry)
		if !ok {
			continue
		}

		if len(m.Classes) >= o.limits.MaxClasses {
			return nil, fmt.Errorf("%w: more than %d classes", sandbox.ErrModuleTooLarge, o.limits.MaxClasses)
		}
		data, err := readEntry(f, o.limits.MaxClassBytes)
		if err != nil {
			return nil, err
		}
		total += int64(len(data))
		if total > o.limits.MaxTotalBytes {
			return nil, fmt.Errorf("%w: more than %d bytes", sandbox.ErrModuleTooLarge, o.limits.MaxTotalBytes)
		}
		if err := m.Add(className, data); err != nil {
			return nil, err
		}
	}

	if m.EntryPoint == "" {
		return nil, ErrNoEntryPoint
	}
	return m, nil
}

// readEntry decompresses f, failing once more than limit bytes come out.
func readEntry(f *zip.File, limit int) ([]byte, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: %s is %d bytes", sandbox.ErrModuleTooLarge, f.Name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, int64(limit)+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	if len(data) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", sandbox.ErrModuleTooLarge, f.Name, limit)
	}
	return data, nil
}

// classEntry maps an archive path to a class name.
func classEntry(entry string) (string, bool) {
	if !strings.HasSuffix(entry, classSuffix) || strings.HasPrefix(entry, "META-INF/") {
		return "", false
	}
	name := strings.TrimSuffix(entry, classSuffix)
	if path.Base(name) == "module-info" {
		return "", false
	}
	return name, true
}

// mainClass extracts Main-Class from a manifest. Continuation lines start
// with a single space.
func mainClass(manifest []byte) string {
	var value string
	inMain := false
	sc := bufio.NewScanner(bytes.NewReader(manifest))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case inMain && strings.HasPrefix(line, " "):
			value += line[1:]
		case strings.HasPrefix(line, "Main-Class:"):
			value = strings.TrimSpace(strings.TrimPrefix(line, "Main-Class:"))
			inMain = true
		default:
			inMain = false
		}
	}
	return internalName(strings.TrimSpace(value))
}

func internalName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// ReadDir reads a module from a directory tree of .class files. The entry
// point must be given with WithEntryPoint.
func ReadDir(root string, opts ...Option) (*sandbox.Module, error) {
	o := newOptions(opts)
	if o.entryPoint == "" {
		return nil, ErrNoEntryPoint
	}
	m := sandbox.NewModule(filepath.Base(root), o.entryPoint)

	var total int64
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, classSuffix) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		className, ok := classEntry(filepath.ToSlash(rel))
		if !ok {
			return nil
		}
		if len(m.Classes) >= o.limits.MaxClasses {
			return fmt.Errorf("%w: more than %d classes", sandbox.ErrModuleTooLarge, o.limits.MaxClasses)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > int64(o.limits.MaxClassBytes) {
			return fmt.Errorf("%w: %s is %d bytes", sandbox.ErrModuleTooLarge, rel, info.Size())
		}
		total += info.Size()
		if total > o.limits.MaxTotalBytes {
			return fmt.Errorf("%w: more than %d bytes", sandbox.ErrModuleTooLarge, o.limits.MaxTotalBytes)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return m.Add(className, data)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// WriteJar writes m as a JAR with a manifest naming its entry point.
// Entries are written in name order with a fixed timestamp so equal
// modules produce equal archives.
func WriteJar(w io.Writer, m *sandbox.Module) error {
	zw := zip.NewWriter(w)
	modified := time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

	manifest := fmt.Sprintf("Manifest-Version: 1.0\r\nMain-Class: %s\r\nCreated-By: aleutian-sandbox\r\n\r\n",
		strings.ReplaceAll(m.EntryPoint, "/", "."))
	if err := writeEntry(zw, manifestPath, []byte(manifest), modified); err != nil {
		return err
	}

	for _, name := range m.Names() {
		if err := writeEntry(zw, name+classSuffix, m.Classes[name], modified); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// WriteDir writes each class of m to dir as <name>.class, creating
// package directories.
func WriteDir(dir string, m *sandbox.Module) error {
	for _, name := range m.Names() {
		if !fs.ValidPath(name) {
			return fmt.Errorf("%w: %q", ErrUnsafePath, name)
		}
		p := filepath.Join(dir, filepath.FromSlash(name)+classSuffix)
		if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
			return err
		}
		if err := os.WriteFile(p, m.Classes[name], 0640); err != nil {
			return err
		}
	}
	return nil
}
