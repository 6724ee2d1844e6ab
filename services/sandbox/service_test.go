// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/cache"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/classfile"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/classfile/classtest"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/descriptor"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/hierarchy"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func newStore(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open(cache.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newService(t *testing.T, cfg sandbox.ServiceConfig, opts ...sandbox.ServiceOption) *sandbox.Service {
	t.Helper()
	return sandbox.NewService(newPipeline(t), cfg, opts...)
}

// failingStore reports every read and write as failed.
type failingStore struct{}

func (failingStore) Get(context.Context, cache.Key, any) error {
	return errors.New("disk on fire")
}

func (failingStore) Put(context.Context, cache.Key, any) error {
	return errors.New("disk on fire")
}

func (failingStore) Stats() cache.Stats { return cache.Stats{} }

func TestService_CachesAcceptedOutcome(t *testing.T) {
	store := newStore(t)
	svc := newService(t, sandbox.DefaultServiceConfig(), sandbox.WithStore(store))
	m := module(t, classtest.New("A").Method("run", "()V", func(b *classtest.Code) { b.Return() }))
	ctx := context.Background()

	first, err := svc.Transform(ctx, m)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Transform(ctx, m)
	require.NoError(t, err)
	assert.True(t, second.Cached)

	assert.NotEqual(t, first.DeploymentID, second.DeploymentID)
	assert.Equal(t, first.Module.EntryPoint, second.Module.EntryPoint)
	assert.Equal(t, first.Module.Classes, second.Module.Classes)
	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, first.Verification, second.Verification)

	stats, ok := svc.CacheStats()
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Writes)
}

func TestService_CachesRejection(t *testing.T) {
	store := newStore(t)
	svc := newService(t, sandbox.DefaultServiceConfig(), sandbox.WithStore(store))
	m := module(t, classtest.New("A").Super("B"))
	ctx := context.Background()

	_, first := svc.Transform(ctx, m)
	_, second := svc.Transform(ctx, m)

	for _, err := range []error{first, second} {
		rejected := rejection(t, err)
		assert.Equal(t, sandbox.StageHierarchy, rejected.Stage)
		assert.Equal(t, hierarchy.FaultGhostNode, rejected.Fault)
		assert.Equal(t, "u/B", rejected.Name)
		assert.ErrorIs(t, err, hierarchy.ErrGhostNode)
	}
	assert.Equal(t, first.Error(), second.Error())
	assert.Equal(t, int64(1), store.Stats().Hits)
}

func TestService_CachesParseRejection(t *testing.T) {
	store := newStore(t)
	svc := newService(t, sandbox.DefaultServiceConfig(), sandbox.WithStore(store))
	m := &sandbox.Module{EntryPoint: "B", Classes: map[string][]byte{"B": classtest.New("A").Bytes()}}

	_, first := svc.Transform(context.Background(), m)
	_, second := svc.Transform(context.Background(), m)

	assert.Equal(t, sandbox.StageParse, rejection(t, second).Stage)
	assert.Equal(t, first.Error(), second.Error())
	assert.ErrorIs(t, second, sandbox.ErrNameMismatch)
	assert.Equal(t, int64(1), store.Stats().Hits)
}

func TestService_CachedRejectionKeepsCause(t *testing.T) {
	truncated := classtest.New("A").Bytes()[:20]

	tests := []struct {
		name  string
		m     func(t *testing.T) *sandbox.Module
		stage sandbox.Stage
		want  error
	}{
		{
			name: "truncated class",
			m: func(t *testing.T) *sandbox.Module {
				return &sandbox.Module{EntryPoint: "A", Classes: map[string][]byte{"A": truncated}}
			},
			stage: sandbox.StageParse,
			want:  classfile.ErrTruncated,
		},
		{
			name: "unterminated descriptor",
			m: func(t *testing.T) *sandbox.Module {
				return module(t, classtest.New("A").Field("f", "Lapp/Broken"))
			},
			stage: sandbox.StageDescriptor,
			want:  descriptor.ErrUnterminatedReference,
		},
		{
			name: "reserved name",
			m: func(t *testing.T) *sandbox.Module {
				return module(t, classtest.New("u/A"))
			},
			stage: sandbox.StageParse,
			want:  sandbox.ErrReservedName,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			svc := newService(t, sandbox.DefaultServiceConfig(), sandbox.WithStore(store))
			m := tt.m(t)

			_, first := svc.Transform(context.Background(), m)
			_, second := svc.Transform(context.Background(), m)

			require.Equal(t, int64(1), store.Stats().Hits)
			for _, err := range []error{first, second} {
				assert.Equal(t, tt.stage, rejection(t, err).Stage)
				assert.ErrorIs(t, err, sandbox.ErrModuleRejected)
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Equal(t, first.Error(), second.Error())
		})
	}
}

func TestService_DifferentModulesDoNotCollide(t *testing.T) {
	svc := newService(t, sandbox.DefaultServiceConfig(), sandbox.WithStore(newStore(t)))
	ctx := context.Background()

	a, err := svc.Transform(ctx, module(t, classtest.New("A")))
	require.NoError(t, err)
	b, err := svc.Transform(ctx, module(t, classtest.New("B")))
	require.NoError(t, err)

	assert.False(t, b.Cached)
	assert.Contains(t, a.Module.Classes, "u/A")
	assert.Contains(t, b.Module.Classes, "u/B")
}

func TestService_AdmissionRunsFirst(t *testing.T) {
	store := newStore(t)
	cfg := sandbox.DefaultServiceConfig()
	cfg.Limits.MaxClassBytes = 16
	svc := newService(t, cfg, sandbox.WithStore(store))
	m := module(t, classtest.New("A"))

	_, err := svc.Transform(context.Background(), m)
	assert.ErrorIs(t, err, sandbox.ErrModuleTooLarge)
	assert.NotErrorIs(t, err, sandbox.ErrModuleRejected)

	_, err = svc.Verify(context.Background(), m)
	assert.ErrorIs(t, err, sandbox.ErrModuleTooLarge)

	_, err = svc.Describe(m)
	assert.ErrorIs(t, err, sandbox.ErrModuleTooLarge)

	assert.Zero(t, store.Stats().Writes)
}

func TestService_RateLimited(t *testing.T) {
	cfg := sandbox.DefaultServiceConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	svc := newService(t, cfg)
	m := module(t, classtest.New("A"))

	_, err := svc.Transform(context.Background(), m)
	require.NoError(t, err)

	_, err = svc.Transform(context.Background(), m)
	assert.ErrorIs(t, err, sandbox.ErrRateLimited)
}

func TestService_StoreFailureFallsBackToPipeline(t *testing.T) {
	svc := newService(t, sandbox.DefaultServiceConfig(), sandbox.WithStore(failingStore{}))

	res, err := svc.Transform(context.Background(), module(t, classtest.New("A")))
	require.NoError(t, err)
	assert.False(t, res.Cached)
}

func TestService_WithoutStore(t *testing.T) {
	svc := newService(t, sandbox.DefaultServiceConfig())
	m := module(t, classtest.New("A"))

	first, err := svc.Transform(context.Background(), m)
	require.NoError(t, err)
	second, err := svc.Transform(context.Background(), m)
	require.NoError(t, err)

	assert.False(t, second.Cached)
	assert.Equal(t, first.Module.Classes, second.Module.Classes)
	_, ok := svc.CacheStats()
	assert.False(t, ok)
}

func TestService_ConcurrentIdenticalModules(t *testing.T) {
	svc := newService(t, sandbox.DefaultServiceConfig(), sandbox.WithStore(newStore(t)))
	m := module(t,
		classtest.New("app/Main").Super("app/Base"),
		classtest.New("app/Base").Implements("java/lang/Runnable"),
	)

	const workers = 8
	results := make([]*sandbox.Result, workers)
	g, ctx := errgroup.WithContext(context.Background())
	for i := range workers {
		g.Go(func() error {
			res, err := svc.Transform(ctx, m)
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	ids := make(map[string]bool, workers)
	for _, res := range results {
		assert.Equal(t, results[0].Module.Classes, res.Module.Classes)
		ids[res.DeploymentID] = true
	}
	assert.Len(t, ids, workers, "every caller gets its own deployment ID")
}

func TestService_Catalog(t *testing.T) {
	svc := newService(t, sandbox.DefaultServiceConfig())

	nodes, err := svc.Catalog()
	require.NoError(t, err)
	require.NotEmpty(t, nodes)

	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	assert.IsNonDecreasing(t, names)
	assert.Contains(t, names, "s/java/lang/String")
}
