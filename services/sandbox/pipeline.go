// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sandbox moves untrusted JVM modules into an isolated namespace.
//
// A module is parsed, every type identity is renamed, the renamed
// inheritance graph is built over the frozen platform catalog and
// verified, and only then is each class rewritten. A module either passes
// every stage or is rejected as a whole with a *RejectedError; no partial
// output is ever produced.
//
//	parse -> rename -> build -> verify -> rewrite -> encode
//
// The Pipeline is synchronous and holds no per-module state, so one
// Pipeline may serve any number of concurrent Transform calls. Service
// adds admission limits, outcome caching and duplicate suppression on top
// of it, and Handlers expose Service over HTTP.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox/classfile"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/descriptor"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/hierarchy"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/naming"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/rewrite"
)

// PipelineVersion identifies the transformation. Cached outcomes recorded
// under another version are never reused.
const PipelineVersion = "1"

// Stats is the explicit accumulator for one pipeline run.
type Stats struct {
	// Classes is the number of module classes.
	Classes int `json:"classes" cbor:"1,keyasint"`

	// Nodes is the number of nodes in the deployment hierarchy.
	Nodes int `json:"nodes" cbor:"2,keyasint"`

	// GhostsCreated is the number of placeholders the build created.
	GhostsCreated int `json:"ghosts_created" cbor:"3,keyasint"`

	// GhostsResolved is the number of placeholders later defined.
	GhostsResolved int `json:"ghosts_resolved" cbor:"4,keyasint"`

	// Rewrite sums the per-class rewrite statistics.
	Rewrite rewrite.Stats `json:"rewrite" cbor:"5,keyasint"`

	// InputBytes is the total size of the submitted artifacts.
	InputBytes int64 `json:"input_bytes" cbor:"6,keyasint"`

	// OutputBytes is the total size of the rewritten artifacts.
	OutputBytes int64 `json:"output_bytes" cbor:"7,keyasint"`

	// DurationMicro is the pipeline wall time in microseconds.
	DurationMicro int64 `json:"duration_us" cbor:"8,keyasint"`
}

// Result is the outcome of a successful Transform.
type Result struct {
	// DeploymentID identifies this transform in logs and spans.
	DeploymentID string `json:"deployment_id"`

	// Module is the rewritten module: classes keyed by post-rename name
	// and the entry point renamed.
	Module *Module `json:"module"`

	// Verification is the successful verification result.
	Verification hierarchy.VerificationResult `json:"verification"`

	// Stats describes the run.
	Stats Stats `json:"stats"`

	// Cached is true when the result came from the outcome cache.
	Cached bool `json:"cached"`
}

// Analysis is the outcome of Verify.
type Analysis struct {
	// Verification is the accept/reject gate.
	Verification hierarchy.VerificationResult `json:"verification"`

	// Classes are the post-rename identities of the module classes, in
	// name order.
	Classes []naming.ClassInformation `json:"-"`

	// Stats describes the run. Rewrite and output fields are zero.
	Stats Stats `json:"stats"`
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithBuilder sets the hierarchy builder. Default: a builder over the
// embedded platform catalog.
func WithBuilder(b *hierarchy.Builder) PipelineOption {
	return func(p *Pipeline) {
		p.builder = b
	}
}

// WithRewriteOptions passes options to every rewrite.Rewriter.
func WithRewriteOptions(opts ...rewrite.Option) PipelineOption {
	return func(p *Pipeline) {
		p.rewriteOpts = append(p.rewriteOpts, opts...)
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// Pipeline runs the sandbox transformation.
//
// Thread Safety:
//
//	Safe for concurrent use. It only reads the frozen catalog.
type Pipeline struct {
	builder     *hierarchy.Builder
	rewriteOpts []rewrite.Option
	logger      *slog.Logger
}

// NewPipeline creates a Pipeline.
//
// Outputs:
//
//	*Pipeline - Ready to transform.
//	error - Non-nil if the platform catalog cannot be loaded.
func NewPipeline(opts ...PipelineOption) (*Pipeline, error) {
	p := &Pipeline{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.builder == nil {
		b, err := hierarchy.NewBuilder()
		if err != nil {
			return nil, fmt.Errorf("create hierarchy builder: %w", err)
		}
		p.builder = b
	}
	return p, nil
}

// parsedClass is one artifact after the parse stage.
type parsedClass struct {
	name string
	cf   *classfile.ClassFile
	info naming.ClassInformation
}

// analysis carries parse, build and verify outputs into the rewrite.
type analysis struct {
	classes []parsedClass
	build   *hierarchy.BuildResult
	result  hierarchy.VerificationResult
	stats   Stats
}

// Transform rewrites m into the sandbox namespace.
//
// Description:
//
//	Parses every class, builds and verifies the renamed hierarchy, and
//	only on success rewrites and re-encodes each class. m is not
//	modified. Admission limits are the caller's concern (see Limits).
//
// Inputs:
//
//	ctx - Context for tracing. The pipeline has no suspension points and
//	does not observe cancellation.
//	m - The module. Class names are pre-rename internal names.
//
// Outputs:
//
//	*Result - The rewritten module and statistics.
//	error - A *RejectedError (matching ErrModuleRejected) when the module
//	fails any stage.
func (p *Pipeline) Transform(ctx context.Context, m *Module) (*Result, error) {
	start := time.Now()
	deploymentID := uuid.NewString()
	ctx, span := startTransformSpan(ctx, m, deploymentID)
	defer span.End()

	res, err := p.transform(ctx, m)
	duration := time.Since(start)
	if err != nil {
		var rejected *RejectedError
		if !errors.As(err, &rejected) {
			rejected = &RejectedError{Stage: StageInternal, Err: err}
			err = rejected
		}
		p.logRejection(m, deploymentID, rejected, duration)
		recordTransformMetrics(ctx, duration, Stats{}, rejected)
		setTransformSpanRejected(span, rejected)
		return nil, err
	}

	res.DeploymentID = deploymentID
	res.Stats.DurationMicro = duration.Microseconds()
	p.logger.Info("module accepted",
		slog.String("module", m.Name),
		slog.String("deployment_id", deploymentID),
		slog.String("entry_point", res.Module.EntryPoint),
		slog.Int("classes", res.Stats.Classes),
		slog.Int("constants_added", res.Stats.Rewrite.ConstantsAdded),
		slog.Int64("duration_us", res.Stats.DurationMicro),
	)
	recordTransformMetrics(ctx, duration, res.Stats, nil)
	setTransformSpanResult(span, res.Stats)
	return res, nil
}

func (p *Pipeline) transform(ctx context.Context, m *Module) (*Result, error) {
	a, err := p.analyze(ctx, m)
	if err != nil {
		return nil, err
	}
	if !a.result.OK() {
		return nil, &RejectedError{
			Stage: StageHierarchy,
			Fault: a.result.Fault,
			Name:  a.result.Name,
			Count: a.result.Count,
			Err:   a.result.Err(),
		}
	}

	rw, err := rewrite.New(a.build.Hierarchy, a.result, p.rewriteOpts...)
	if err != nil {
		return nil, &RejectedError{Stage: StageInternal, Err: err}
	}

	out := &Module{
		Name:       m.Name,
		EntryPoint: naming.Rename(m.EntryPoint),
		Classes:    make(map[string][]byte, len(a.classes)),
	}
	stats := a.stats
	for _, pc := range a.classes {
		cf, rs, err := rw.Rewrite(ctx, pc.cf)
		if err != nil {
			return nil, classifyRewriteError(pc.name, err)
		}
		data, err := classfile.Encode(cf)
		if err != nil {
			return nil, &RejectedError{Stage: StageParse, Name: pc.name, Err: err}
		}
		out.Classes[naming.Rename(pc.name)] = data
		stats.Rewrite = stats.Rewrite.Add(rs)
		stats.OutputBytes += int64(len(data))
	}

	return &Result{Module: out, Verification: a.result, Stats: stats}, nil
}

// Verify runs parse, build and verify without rewriting.
//
// Outputs:
//
//	*Analysis - The verification result. A hierarchy fault is reported
//	here, not as an error.
//	error - A *RejectedError for parse-stage failures.
func (p *Pipeline) Verify(ctx context.Context, m *Module) (*Analysis, error) {
	a, err := p.analyze(ctx, m)
	if err != nil {
		return nil, err
	}
	classes := make([]naming.ClassInformation, len(a.classes))
	for i, pc := range a.classes {
		classes[i] = naming.RenameClassInformation(pc.info)
	}
	return &Analysis{Verification: a.result, Classes: classes, Stats: a.stats}, nil
}

func (p *Pipeline) analyze(ctx context.Context, m *Module) (*analysis, error) {
	classes, err := parseModule(m)
	if err != nil {
		return nil, err
	}

	infos := make([]naming.ClassInformation, len(classes))
	for i, pc := range classes {
		infos[i] = pc.info
	}
	build := p.builder.Build(ctx, infos)
	if build.HasErrors() {
		first := build.InsertErrors[0]
		return nil, &RejectedError{Stage: StageInternal, Name: first.Name, Err: first}
	}
	result := hierarchy.Verify(ctx, build.Hierarchy)

	return &analysis{
		classes: classes,
		build:   build,
		result:  result,
		stats: Stats{
			Classes:        len(classes),
			Nodes:          build.Hierarchy.Len(),
			GhostsCreated:  build.Stats.GhostsCreated,
			GhostsResolved: build.Stats.GhostsResolved,
			InputBytes:     m.Size(),
		},
	}, nil
}

// parseModule parses every class in name order and checks its header.
func parseModule(m *Module) ([]parsedClass, error) {
	if len(m.Classes) == 0 {
		return nil, &RejectedError{Stage: StageParse, Err: ErrEmptyModule}
	}
	if _, ok := m.Classes[m.EntryPoint]; !ok {
		return nil, &RejectedError{Stage: StageParse, Name: m.EntryPoint, Err: ErrEntryPointMissing}
	}

	names := m.Names()
	classes := make([]parsedClass, 0, len(names))
	for _, name := range names {
		pc, err := parseClass(name, m.Classes[name])
		if err != nil {
			return nil, &RejectedError{Stage: StageParse, Name: name, Err: err}
		}
		classes = append(classes, pc)
	}
	return classes, nil
}

func parseClass(name string, data []byte) (parsedClass, error) {
	if err := naming.ValidateInternalName(name); err != nil {
		return parsedClass{}, err
	}
	if c := naming.Classify(name); c != naming.CategoryUser {
		return parsedClass{}, fmt.Errorf("%w: %s is a %s name", ErrReservedName, name, c)
	}

	cf, err := classfile.Parse(name, data)
	if err != nil {
		return parsedClass{}, err
	}
	info, err := cf.Info(naming.TagPreRename)
	if err != nil {
		return parsedClass{}, err
	}
	if info.Name() != name {
		return parsedClass{}, fmt.Errorf("%w: submitted as %s, declares %s", ErrNameMismatch, name, info.Name())
	}

	referenced := info.InterfaceNames()
	if super, ok := info.SuperClassName(); ok {
		referenced = append(referenced, super)
	}
	for _, ref := range referenced {
		if err := naming.ValidateInternalName(ref); err != nil {
			return parsedClass{}, err
		}
	}
	return parsedClass{name: name, cf: cf, info: info}, nil
}

// classifyRewriteError maps a rewrite failure onto the fault taxonomy.
func classifyRewriteError(name string, err error) *RejectedError {
	stage := StageParse
	var descErr *descriptor.Error
	switch {
	case errors.Is(err, rewrite.ErrInternalInconsistency):
		stage = StageInternal
	case errors.As(err, &descErr):
		stage = StageDescriptor
	}
	return &RejectedError{Stage: stage, Name: name, Err: err}
}

func (p *Pipeline) logRejection(m *Module, deploymentID string, r *RejectedError, duration time.Duration) {
	attrs := []any{
		slog.String("module", m.Name),
		slog.String("deployment_id", deploymentID),
		slog.String("stage", r.Stage.String()),
		slog.String("fault", r.Fault.String()),
		slog.String("name", r.Name),
		slog.String("error", fmt.Sprint(r.Err)),
		slog.Int64("duration_us", duration.Microseconds()),
	}
	if r.Stage == StageInternal {
		p.logger.Error("module rejected by pipeline defect", attrs...)
		return
	}
	p.logger.Warn("module rejected", attrs...)
}

// ClassDescription is the read-only summary of one module class.
type ClassDescription struct {
	Name         string                 `json:"name" yaml:"name"`
	Renamed      string                 `json:"renamed" yaml:"renamed"`
	Interface    bool                   `json:"interface" yaml:"interface"`
	Super        string                 `json:"super,omitempty" yaml:"super,omitempty"`
	RenamedSuper string                 `json:"renamed_super,omitempty" yaml:"renamed_super,omitempty"`
	Interfaces   []string               `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	MajorVersion uint16                 `json:"major_version" yaml:"major_version"`
	Fields       []classfile.MemberInfo `json:"fields,omitempty" yaml:"fields,omitempty"`
	Methods      []classfile.MemberInfo `json:"methods,omitempty" yaml:"methods,omitempty"`
}

// Describe parses m and summarizes each class with its renamed identity.
// It performs no hierarchy checks.
func Describe(m *Module) ([]ClassDescription, error) {
	out := make([]ClassDescription, 0, len(m.Classes))
	for _, name := range m.Names() {
		pc, err := parseClass(name, m.Classes[name])
		if err != nil {
			return nil, &RejectedError{Stage: StageParse, Name: name, Err: err}
		}
		desc, err := pc.cf.Describe()
		if err != nil {
			return nil, &RejectedError{Stage: StageParse, Name: name, Err: err}
		}
		renamed := naming.RenameClassInformation(pc.info)

		d := ClassDescription{
			Name:         name,
			Renamed:      renamed.Name(),
			Interface:    pc.info.IsInterface(),
			Interfaces:   pc.info.InterfaceNames(),
			MajorVersion: pc.cf.MajorVersion,
			Fields:       desc.Fields,
			Methods:      desc.Methods,
		}
		d.Super, _ = pc.info.SuperClassName()
		d.RenamedSuper, _ = renamed.SuperClassName()
		out = append(out, d)
	}
	return out, nil
}
