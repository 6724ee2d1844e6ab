// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/archive"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/classfile/classtest"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/config"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/hierarchy"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// run executes the root command and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SANDBOX_LOG_LEVEL", "error")
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// writeJar writes a module JAR built from classes, entry point first.
func writeJar(t *testing.T, dir, name string, classes ...*classtest.Class) string {
	t.Helper()
	var m *sandbox.Module
	for _, c := range classes {
		className, err := c.Build().Name()
		require.NoError(t, err)
		if m == nil {
			m = sandbox.NewModule(name, className)
		}
		require.NoError(t, m.Add(className, c.Bytes()))
	}
	path := filepath.Join(dir, name+".jar")
	require.NoError(t, writeJarFile(path, m))
	return path
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitRejected, exitCode(&sandbox.RejectedError{Stage: sandbox.StageParse}))
	assert.Equal(t, exitTooLarge, exitCode(fmt.Errorf("read: %w", sandbox.ErrModuleTooLarge)))
	assert.Equal(t, exitFailure, exitCode(os.ErrNotExist))
}

func TestParseFormat(t *testing.T) {
	f, err := parseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, outputFormat("json"), f)

	f, err = parseFormat("")
	require.NoError(t, err)
	assert.Contains(t, []outputFormat{"json", "yaml"}, f)

	_, err = parseFormat("xml")
	assert.Error(t, err)
}

func TestCatalogCmd(t *testing.T) {
	out, err := run(t, "catalog", "-f", "json")
	require.NoError(t, err)

	var nodes []hierarchy.NodeSummary
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	require.NotEmpty(t, nodes)
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "i/IObject")
	assert.Contains(t, names, "s/java/lang/Runnable")
}

func TestTransformCmd(t *testing.T) {
	dir := t.TempDir()
	good := writeJar(t, dir, "good",
		classtest.New("app/Main").Super("app/Base"),
		classtest.New("app/Base").Implements("java/lang/Runnable").
			Method("run", "()V", func(b *classtest.Code) { b.Return() }),
	)
	outDir := filepath.Join(dir, "out")

	out, err := run(t, "transform", good, "-o", outDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "ok")

	m, err := archive.OpenJar(filepath.Join(outDir, "good.sandbox.jar"))
	require.NoError(t, err)
	assert.Equal(t, "u/app/Main", m.EntryPoint)
	assert.Equal(t, []string{"u/app/Base", "u/app/Main"}, m.Names())
}

func TestTransformCmd_AsDir(t *testing.T) {
	dir := t.TempDir()
	in := writeJar(t, dir, "mod", classtest.New("Main"))

	_, err := run(t, "transform", in, "-o", dir, "--dir")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "mod.sandbox", "u", "Main.class"))
	assert.NoError(t, err)
}

func TestTransformCmd_PartialFailure(t *testing.T) {
	dir := t.TempDir()
	good := writeJar(t, dir, "good", classtest.New("A"))
	bad := writeJar(t, dir, "bad", classtest.New("A").Super("Missing"))

	out, err := run(t, "transform", good, bad, "-o", dir, "-j", "2")

	require.Error(t, err)
	assert.Equal(t, exitRejected, exitCode(err))
	assert.Contains(t, err.Error(), "bad.jar")
	assert.NotContains(t, err.Error(), "good.jar")
	assert.Contains(t, out, "ghost")

	_, statErr := os.Stat(filepath.Join(dir, "good.sandbox.jar"))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(dir, "bad.sandbox.jar"))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestVerifyCmd(t *testing.T) {
	dir := t.TempDir()
	in := writeJar(t, dir, "mod", classtest.New("A").Implements("I"), classtest.New("I").Interface())

	out, err := run(t, "verify", in, "-f", "yaml")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, "mod", report["module"])
	assert.Len(t, report["classes"], 2)
}

func TestVerifyCmd_Fault(t *testing.T) {
	dir := t.TempDir()
	in := writeJar(t, dir, "mod", classtest.New("A").Super("B"))

	out, err := run(t, "verify", in, "-f", "json")

	assert.ErrorIs(t, err, hierarchy.ErrGhostNode)
	assert.Equal(t, exitRejected, exitCode(err))
	assert.True(t, strings.Contains(out, "u/B"), out)
}

func TestDescribeCmd(t *testing.T) {
	dir := t.TempDir()
	in := writeJar(t, dir, "mod", classtest.New("A").Field("name", "Ljava/lang/String;"))

	out, err := run(t, "describe", in, "-f", "json")
	require.NoError(t, err)

	var classes []sandbox.ClassDescription
	require.NoError(t, json.Unmarshal([]byte(out), &classes))
	require.Len(t, classes, 1)
	assert.Equal(t, "u/A", classes[0].Renamed)
}

func TestRouter(t *testing.T) {
	p, err := sandbox.NewPipeline()
	require.NoError(t, err)
	svc := sandbox.NewService(p, sandbox.DefaultServiceConfig())
	router := newRouter(svc, config.Default(), false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/sandbox/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_BodyLimit(t *testing.T) {
	p, err := sandbox.NewPipeline()
	require.NoError(t, err)
	svc := sandbox.NewService(p, sandbox.DefaultServiceConfig())
	cfg := config.Default()
	cfg.Limits = sandbox.Limits{MaxClasses: 1, MaxClassBytes: 16, MaxTotalBytes: 16}
	router := newRouter(svc, cfg, false)

	body := `{"entry_point":"A","classes":{"A":"` + strings.Repeat("A", 200<<10) + `"}}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/sandbox/transform", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
