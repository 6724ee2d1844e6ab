// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package archive

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/classfile/classtest"
)

type entry struct {
	name string
	data []byte
}

func jar(t *testing.T, entries ...entry) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write(e.data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return bytes.NewReader(buf.Bytes())
}

func manifest(mainClass string) entry {
	return entry{manifestPath, []byte("Manifest-Version: 1.0\r\nMain-Class: " + mainClass + "\r\n\r\n")}
}

func TestReadJar(t *testing.T) {
	main := classtest.New("app/Main").Bytes()
	util := classtest.New("app/util/Strings").Bytes()
	r := jar(t,
		manifest("app.Main"),
		entry{"app/", nil},
		entry{"app/Main.class", main},
		entry{"app/util/Strings.class", util},
		entry{"module-info.class", []byte{0xca, 0xfe}},
		entry{"META-INF/versions/17/app/Main.class", []byte{1}},
		entry{"app/config.properties", []byte("x=1")},
	)

	m, err := ReadJar(r, r.Size(), "app")
	require.NoError(t, err)

	assert.Equal(t, "app", m.Name)
	assert.Equal(t, "app/Main", m.EntryPoint)
	assert.Equal(t, []string{"app/Main", "app/util/Strings"}, m.Names())
	assert.Equal(t, main, m.Classes["app/Main"])
}

func TestReadJar_EntryPointOverride(t *testing.T) {
	r := jar(t, manifest("app.Main"), entry{"app/Other.class", []byte{1}})

	m, err := ReadJar(r, r.Size(), "app", WithEntryPoint("app.Other"))
	require.NoError(t, err)
	assert.Equal(t, "app/Other", m.EntryPoint)
}

func TestReadJar_Errors(t *testing.T) {
	tiny := sandbox.Limits{MaxClasses: 1, MaxClassBytes: 8, MaxTotalBytes: 8}

	tests := []struct {
		name    string
		entries []entry
		opts    []Option
		want    error
	}{
		{
			name:    "no entry point",
			entries: []entry{{"A.class", []byte{1}}},
			want:    ErrNoEntryPoint,
		},
		{
			name:    "unsafe path",
			entries: []entry{manifest("A"), {"app/../A.class", []byte{1}}},
			want:    ErrUnsafePath,
		},
		{
			name:    "duplicate entry",
			entries: []entry{manifest("A"), {"A.class", []byte{1}}, {"A.class", []byte{2}}},
			want:    sandbox.ErrDuplicateClass,
		},
		{
			name:    "too many classes",
			entries: []entry{manifest("A"), {"A.class", []byte{1}}, {"B.class", []byte{1}}},
			opts:    []Option{WithLimits(tiny)},
			want:    sandbox.ErrModuleTooLarge,
		},
		{
			name:    "class too large",
			entries: []entry{manifest("A"), {"A.class", make([]byte, 9)}},
			opts:    []Option{WithLimits(tiny)},
			want:    sandbox.ErrModuleTooLarge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := jar(t, tt.entries...)
			_, err := ReadJar(r, r.Size(), "m", tt.opts...)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReadJar_NotAZip(t *testing.T) {
	r := bytes.NewReader([]byte("definitely not a zip"))
	_, err := ReadJar(r, r.Size(), "m")
	assert.Error(t, err)
}

func TestMainClass(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		want     string
	}{
		{"simple", "Manifest-Version: 1.0\nMain-Class: a.b.Main\n", "a/b/Main"},
		{"crlf", "Main-Class: Main\r\nX: y\r\n", "Main"},
		{"continued", "Main-Class: com.example.very.long.pack\n age.Main\nCreated-By: x\n", "com/example/very/long/package/Main"},
		{"absent", "Manifest-Version: 1.0\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mainClass([]byte(tt.manifest)))
		})
	}
}

func TestWriteJar_RoundTrip(t *testing.T) {
	m := sandbox.NewModule("out", "u/app/Main")
	require.NoError(t, m.Add("u/app/Main", []byte{1, 2, 3}))
	require.NoError(t, m.Add("u/app/Helper", []byte{4, 5}))

	var first, second bytes.Buffer
	require.NoError(t, WriteJar(&first, m))
	require.NoError(t, WriteJar(&second, m))
	assert.Equal(t, first.Bytes(), second.Bytes(), "output is deterministic")

	r := bytes.NewReader(first.Bytes())
	back, err := ReadJar(r, r.Size(), "out")
	require.NoError(t, err)
	assert.Equal(t, m.EntryPoint, back.EntryPoint)
	assert.Equal(t, m.Classes, back.Classes)
}

func TestDirRoundTrip(t *testing.T) {
	m := sandbox.NewModule("classes", "app/Main")
	require.NoError(t, m.Add("app/Main", []byte{1}))
	require.NoError(t, m.Add("app/sub/Util", []byte{2, 3}))

	dir := t.TempDir()
	require.NoError(t, WriteDir(dir, m))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("skip"), 0600))

	back, err := ReadDir(dir, WithEntryPoint("app/Main"))
	require.NoError(t, err)
	assert.Equal(t, m.Classes, back.Classes)

	_, err = ReadDir(dir)
	assert.ErrorIs(t, err, ErrNoEntryPoint)
}

func TestReadDir_Limits(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "A.class"), make([]byte, 64), 0600))

	_, err := ReadDir(dir, WithEntryPoint("A"), WithLimits(sandbox.Limits{MaxClasses: 4, MaxClassBytes: 32, MaxTotalBytes: 128}))
	assert.ErrorIs(t, err, sandbox.ErrModuleTooLarge)
}

func TestWriteDir_UnsafeName(t *testing.T) {
	m := &sandbox.Module{EntryPoint: "x", Classes: map[string][]byte{"../x": {1}}}
	assert.ErrorIs(t, WriteDir(t.TempDir(), m), ErrUnsafePath)
}

func TestJarThroughPipeline(t *testing.T) {
	r := jar(t,
		manifest("app.Main"),
		entry{"app/Main.class", classtest.New("app/Main").Implements("java/lang/Runnable").
			Method("run", "()V", func(b *classtest.Code) { b.Return() }).Bytes()},
	)
	m, err := ReadJar(r, r.Size(), "app")
	require.NoError(t, err)

	p, err := sandbox.NewPipeline()
	require.NoError(t, err)
	res, err := p.Transform(context.Background(), m)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, WriteJar(&out, res.Module))

	or := bytes.NewReader(out.Bytes())
	back, err := ReadJar(or, or.Size(), "out")
	require.NoError(t, err)
	assert.Equal(t, "u/app/Main", back.EntryPoint)
	assert.Equal(t, []string{"u/app/Main"}, back.Names())
}
