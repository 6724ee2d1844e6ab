// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rewrite

import (
	"fmt"
	"slices"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox/classfile"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/descriptor"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/hierarchy"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/naming"
)

// strippedAttributes embed unrenamed type strings that only reflection
// reads. They are dropped wherever they appear.
var strippedAttributes = map[string]bool{
	classfile.AttrSignature:                            true,
	classfile.AttrLocalVariableTypeTable:               true,
	classfile.AttrEnclosingMethod:                      true,
	classfile.AttrSourceDebugExtension:                 true,
	classfile.AttrRuntimeVisibleAnnotations:            true,
	classfile.AttrRuntimeInvisibleAnnotations:          true,
	classfile.AttrRuntimeVisibleParameterAnnotations:   true,
	classfile.AttrRuntimeInvisibleParameterAnnotations: true,
	classfile.AttrRuntimeVisibleTypeAnnotations:        true,
	classfile.AttrRuntimeInvisibleTypeAnnotations:      true,
	classfile.AttrAnnotationDefault:                    true,
	classfile.AttrRecord:                               true,
}

func constantError(env *Env, idx uint16, err error) error {
	return &MemberError{Class: env.Class, Member: fmt.Sprintf("constant #%d", idx), Err: err}
}

func inconsistent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInternalInconsistency, fmt.Sprintf(format, args...))
}

// rewriteClasses renames every original Class constant in place. Array
// classes carry a descriptor and are rewritten as one.
func rewriteClasses(env *Env, in *classfile.ClassFile) (*classfile.ClassFile, Stats, error) {
	out := in.Clone()
	var stats Stats
	err := out.Pool.Each(env.OriginalCount, func(idx uint16, c classfile.Constant) error {
		if c.Tag != classfile.TagClass {
			return nil
		}
		name, err := out.Pool.Utf8(c.A)
		if err != nil {
			return constantError(env, idx, err)
		}
		renamed, err := descriptor.RewriteClassRef(name, naming.Rename)
		if err != nil {
			return constantError(env, idx, err)
		}
		if renamed == name {
			return nil
		}
		if c.A, err = out.Pool.AddUtf8(renamed); err != nil {
			return err
		}
		stats.ClassRefsRenamed++
		return out.Pool.Set(idx, c)
	})
	if err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}

// rewriteMemberRefs gives every field and method reference a new
// NameAndType with a rewritten descriptor and, for methods on platform
// owners, the marker prefix. Owners were renamed by rewriteClasses.
func rewriteMemberRefs(env *Env, in *classfile.ClassFile) (*classfile.ClassFile, Stats, error) {
	out := in.Clone()
	var stats Stats
	err := out.Pool.Each(env.OriginalCount, func(idx uint16, c classfile.Constant) error {
		if !c.Tag.IsMemberRef() {
			return nil
		}
		ref, err := out.Pool.MemberRef(idx)
		if err != nil {
			return constantError(env, idx, err)
		}

		isMethod := c.Tag != classfile.TagFieldref
		var desc string
		if isMethod {
			desc, err = descriptor.RewriteMethod(ref.Descriptor, naming.Rename)
		} else {
			desc, err = descriptor.RewriteField(ref.Descriptor, naming.Rename)
		}
		if err != nil {
			return &MemberError{
				Class:  env.Class,
				Member: fmt.Sprintf("%s %s.%s", c.Tag, ref.Owner, ref.Name),
				Err:    err,
			}
		}

		name := naming.MemberName(ref.Owner, ref.Name, isMethod)
		if name != ref.Name {
			stats.MethodsPrefixed++
		}
		if desc != ref.Descriptor {
			stats.DescriptorsRewritten++
		}
		if c.B, err = out.Pool.AddNameAndType(name, desc); err != nil {
			return err
		}
		stats.MemberRefsRewritten++
		return out.Pool.Set(idx, c)
	})
	if err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}

// rewriteHeader checks this/super/interfaces against the renamed
// ClassInformation the hierarchy holds, clears the superclass of
// root-attached interfaces, and strips class-level reflection attributes.
func rewriteHeader(env *Env, in *classfile.ClassFile) (*classfile.ClassFile, Stats, error) {
	out := in.Clone()
	var stats Stats

	name, err := out.Name()
	if err != nil {
		return nil, stats, err
	}
	node, ok := env.Hierarchy.Node(name)
	if !ok || node.IsGhost() {
		return nil, stats, inconsistent("class %s is not defined in the hierarchy", name)
	}
	if node.Source() != hierarchy.SourceModule {
		return nil, stats, inconsistent("class %s is a %s type, not a module class", name, node.Source())
	}
	want := node.Info()

	if wantSuper, has := want.SuperClassName(); !has {
		out.SuperClass = 0
	} else {
		got, _, err := out.SuperName()
		if err != nil {
			return nil, stats, err
		}
		if got != wantSuper {
			return nil, stats, inconsistent("class %s super is %s, hierarchy has %s", name, got, wantSuper)
		}
		if err := requireNode(env, got); err != nil {
			return nil, stats, err
		}
	}

	ifaces, err := out.InterfaceNames()
	if err != nil {
		return nil, stats, err
	}
	if !slices.Equal(ifaces, want.InterfaceNames()) {
		return nil, stats, inconsistent("class %s interfaces %v, hierarchy has %v", name, ifaces, want.InterfaceNames())
	}
	for _, iface := range ifaces {
		if err := requireNode(env, iface); err != nil {
			return nil, stats, err
		}
	}

	var stripped int
	out.Attributes, stripped = stripAttributes(out.Pool, out.Attributes)
	stats.AttributesStripped += stripped
	return out, stats, nil
}

func requireNode(env *Env, name string) error {
	n, ok := env.Hierarchy.Node(name)
	if !ok || n.IsGhost() {
		return inconsistent("%s is not defined in the verified hierarchy", name)
	}
	return nil
}

// rewriteFields rewrites field descriptors and strips field attributes.
func rewriteFields(env *Env, in *classfile.ClassFile) (*classfile.ClassFile, Stats, error) {
	out := in.Clone()
	var stats Stats
	for i := range out.Fields {
		if err := rewriteMember(env, out, &out.Fields[i], false, &stats); err != nil {
			return nil, stats, err
		}
	}
	return out, stats, nil
}

// rewriteMethods rewrites method descriptors, strips method attributes,
// and rewrites the descriptors inside Code.
func rewriteMethods(env *Env, in *classfile.ClassFile) (*classfile.ClassFile, Stats, error) {
	out := in.Clone()
	var stats Stats
	for i := range out.Methods {
		if err := rewriteMember(env, out, &out.Methods[i], true, &stats); err != nil {
			return nil, stats, err
		}
	}
	return out, stats, nil
}

func rewriteMember(env *Env, cf *classfile.ClassFile, m *classfile.Member, isMethod bool, stats *Stats) error {
	name, err := cf.Pool.Utf8(m.NameIndex)
	if err != nil {
		return err
	}
	desc, err := cf.Pool.Utf8(m.DescriptorIndex)
	if err != nil {
		return err
	}

	kind := "field"
	rewrite := descriptor.RewriteField
	if isMethod {
		kind = "method"
		rewrite = descriptor.RewriteMethod
	}
	memberErr := func(err error) error {
		return &MemberError{Class: env.Class, Member: fmt.Sprintf("%s %s%s", kind, name, desc), Err: err}
	}

	renamed, err := rewrite(desc, naming.Rename)
	if err != nil {
		return memberErr(err)
	}
	if renamed != desc {
		if m.DescriptorIndex, err = cf.Pool.AddUtf8(renamed); err != nil {
			return memberErr(err)
		}
		stats.DescriptorsRewritten++
	}

	var stripped int
	m.Attributes, stripped = stripAttributes(cf.Pool, m.Attributes)
	stats.AttributesStripped += stripped

	if !isMethod {
		return nil
	}
	for i, a := range m.Attributes {
		if n, _ := cf.Pool.Utf8(a.NameIndex); n != classfile.AttrCode {
			continue
		}
		info, err := rewriteCode(cf.Pool, a.Info, stats)
		if err != nil {
			return memberErr(err)
		}
		m.Attributes[i].Info = info
	}
	return nil
}

// rewriteCode rewrites LocalVariableTable descriptors and strips
// reflection attributes nested in a Code attribute. The bytecode itself is
// unchanged.
func rewriteCode(pool *classfile.ConstantPool, info []byte, stats *Stats) ([]byte, error) {
	code, err := classfile.ParseCode(info)
	if err != nil {
		return nil, err
	}

	var stripped int
	code.Attributes, stripped = stripAttributes(pool, code.Attributes)
	stats.AttributesStripped += stripped

	for i, a := range code.Attributes {
		if n, _ := pool.Utf8(a.NameIndex); n != classfile.AttrLocalVariableTable {
			continue
		}
		vars, err := classfile.ParseLocalVariableTable(a.Info)
		if err != nil {
			return nil, err
		}
		for j := range vars {
			desc, err := pool.Utf8(vars[j].DescriptorIndex)
			if err != nil {
				return nil, err
			}
			renamed, err := descriptor.RewriteField(desc, naming.Rename)
			if err != nil {
				return nil, err
			}
			if renamed == desc {
				continue
			}
			if vars[j].DescriptorIndex, err = pool.AddUtf8(renamed); err != nil {
				return nil, err
			}
			stats.DescriptorsRewritten++
		}
		if code.Attributes[i].Info, err = classfile.EncodeLocalVariableTable(vars); err != nil {
			return nil, err
		}
	}
	return code.Encode()
}

// stripAttributes returns as without reflection-only attributes, and how
// many were removed. as is not modified.
func stripAttributes(pool *classfile.ConstantPool, as []classfile.Attribute) ([]classfile.Attribute, int) {
	out := make([]classfile.Attribute, 0, len(as))
	for _, a := range as {
		if n, err := pool.Utf8(a.NameIndex); err == nil && strippedAttributes[n] {
			continue
		}
		out = append(out, a)
	}
	return out, len(as) - len(out)
}

// checkInstructions decodes every method body and validates each pool
// operand against its opcode, and that every referenced type is already in
// the sandbox namespace. The class file is returned unchanged.
func checkInstructions(env *Env, in *classfile.ClassFile) (*classfile.ClassFile, Stats, error) {
	var stats Stats
	pool := in.Pool
	for _, m := range in.Methods {
		i := in.FindAttribute(m.Attributes, classfile.AttrCode)
		if i < 0 {
			continue
		}
		name, _ := pool.Utf8(m.NameIndex)
		desc, _ := pool.Utf8(m.DescriptorIndex)
		memberErr := func(err error) error {
			return &MemberError{Class: env.Class, Member: fmt.Sprintf("method %s%s", name, desc), Err: err}
		}

		code, err := classfile.ParseCode(m.Attributes[i].Info)
		if err != nil {
			return nil, stats, memberErr(err)
		}
		ins, err := classfile.DecodeInstructions(code.Bytecode)
		if err != nil {
			return nil, stats, memberErr(err)
		}
		for _, inst := range ins {
			if inst.Kind == classfile.OperandNone {
				continue
			}
			if err := checkOperand(pool, inst); err != nil {
				return nil, stats, memberErr(fmt.Errorf("pc %d: %w", inst.Offset, err))
			}
		}
		stats.InstructionsChecked += len(ins)

		for _, h := range code.ExceptionTable {
			if h.CatchType == 0 {
				continue
			}
			catch, err := pool.ClassName(h.CatchType)
			if err != nil {
				return nil, stats, memberErr(fmt.Errorf("handler at pc %d: %w", h.HandlerPC, err))
			}
			if err := requireRenamed(catch); err != nil {
				return nil, stats, memberErr(err)
			}
		}
	}
	return in, stats, nil
}

func checkOperand(pool *classfile.ConstantPool, in classfile.Instruction) error {
	c, err := pool.Expect(in.Index, in.Kind.Tags()...)
	if err != nil {
		return err
	}
	switch c.Tag {
	case classfile.TagClass:
		name, err := pool.ClassName(in.Index)
		if err != nil {
			return err
		}
		return requireRenamed(name)
	case classfile.TagFieldref, classfile.TagMethodref, classfile.TagInterfaceMethodref:
		ref, err := pool.MemberRef(in.Index)
		if err != nil {
			return err
		}
		return requireRenamed(ref.Owner)
	}
	return nil
}

// requireRenamed asserts a Class constant's name (or array element type)
// is post-rename.
func requireRenamed(name string) error {
	if len(name) > 0 && name[0] == '[' {
		t, err := descriptor.ParseField(name)
		if err != nil {
			return err
		}
		if t.Base != 'L' {
			return nil
		}
		name = t.ClassName
	}
	if !naming.IsPostRename(name) {
		return inconsistent("type %s was not renamed", name)
	}
	return nil
}

// loadableArgTags are the constants a bootstrap argument may name.
var loadableArgTags = []classfile.Tag{
	classfile.TagInteger, classfile.TagFloat, classfile.TagLong, classfile.TagDouble,
	classfile.TagString, classfile.TagClass, classfile.TagMethodType,
	classfile.TagMethodHandle, classfile.TagDynamic,
}

// rewriteCallSites rewrites MethodType descriptors and the descriptors of
// Dynamic and InvokeDynamic call sites, then validates the bootstrap table
// they link through. Handle and type arguments were renamed by the
// classes and members stages; nested Dynamic arguments are followed
// recursively and cycles are rejected.
func rewriteCallSites(env *Env, in *classfile.ClassFile) (*classfile.ClassFile, Stats, error) {
	out := in.Clone()
	var stats Stats

	var bsms []classfile.BootstrapMethod
	if i := out.FindAttribute(out.Attributes, classfile.AttrBootstrapMethods); i >= 0 {
		var err error
		if bsms, err = classfile.ParseBootstrapMethods(out.Attributes[i].Info); err != nil {
			return nil, stats, fmt.Errorf("%w: %v", ErrBadBootstrap, err)
		}
	}

	err := out.Pool.Each(env.OriginalCount, func(idx uint16, c classfile.Constant) error {
		switch c.Tag {
		case classfile.TagMethodType:
			desc, err := out.Pool.Utf8(c.A)
			if err != nil {
				return constantError(env, idx, err)
			}
			renamed, err := descriptor.RewriteMethod(desc, naming.Rename)
			if err != nil {
				return constantError(env, idx, err)
			}
			if renamed == desc {
				return nil
			}
			if c.A, err = out.Pool.AddUtf8(renamed); err != nil {
				return err
			}
			stats.DescriptorsRewritten++
			return out.Pool.Set(idx, c)

		case classfile.TagDynamic, classfile.TagInvokeDynamic:
			if int(c.A) >= len(bsms) {
				return constantError(env, idx, fmt.Errorf("%w: bootstrap index %d of %d", ErrBadBootstrap, c.A, len(bsms)))
			}
			name, desc, err := out.Pool.NameAndType(c.B)
			if err != nil {
				return constantError(env, idx, err)
			}
			var renamed string
			if c.Tag == classfile.TagInvokeDynamic {
				renamed, err = descriptor.RewriteMethod(desc, naming.Rename)
			} else {
				renamed, err = descriptor.RewriteField(desc, naming.Rename)
			}
			if err != nil {
				return constantError(env, idx, err)
			}
			if renamed != desc {
				stats.DescriptorsRewritten++
			}
			if c.Tag == classfile.TagInvokeDynamic {
				if sam := callSiteName(env, name, renamed); sam != name {
					name = sam
					stats.MethodsPrefixed++
				}
			}
			if c.B, err = out.Pool.AddNameAndType(name, renamed); err != nil {
				return err
			}
			stats.CallSitesRewritten++
			return out.Pool.Set(idx, c)
		}
		return nil
	})
	if err != nil {
		return nil, stats, err
	}

	if err := checkBootstrapMethods(out.Pool, bsms); err != nil {
		return nil, stats, &MemberError{Class: env.Class, Member: classfile.AttrBootstrapMethods, Err: err}
	}
	return out, stats, nil
}

// callSiteName returns the interface method name an invokedynamic call
// site binds. A site producing a platform interface implements that
// interface's prefixed method, so the name follows the same rule as
// invokeinterface on the owner. desc is the post-rename descriptor.
func callSiteName(env *Env, name, desc string) string {
	m, err := descriptor.ParseMethod(desc)
	if err != nil || m.Return.Dims != 0 || m.Return.Base != 'L' {
		return name
	}
	owner := m.Return.ClassName
	if !naming.IsPlatformOwner(owner) {
		return name
	}
	node, ok := env.Hierarchy.Node(owner)
	if !ok || !node.IsInterface() {
		return name
	}
	return naming.MemberName(owner, name, true)
}

// checkBootstrapMethods validates every handle and argument and rejects
// Dynamic arguments that lead back to the bootstrap method using them.
func checkBootstrapMethods(pool *classfile.ConstantPool, bsms []classfile.BootstrapMethod) error {
	const (
		unvisited = iota
		active
		done
	)
	state := make([]int, len(bsms))

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case active:
			return fmt.Errorf("%w: bootstrap method %d depends on itself", ErrBadBootstrap, i)
		case done:
			return nil
		}
		state[i] = active

		bm := bsms[i]
		if _, err := pool.Expect(bm.MethodRef, classfile.TagMethodHandle); err != nil {
			return fmt.Errorf("%w: bootstrap method %d handle: %v", ErrBadBootstrap, i, err)
		}
		for _, arg := range bm.Args {
			c, err := pool.Expect(arg, loadableArgTags...)
			if err != nil {
				return fmt.Errorf("%w: bootstrap method %d argument: %v", ErrBadBootstrap, i, err)
			}
			if c.Tag != classfile.TagDynamic {
				continue
			}
			if int(c.A) >= len(bsms) {
				return fmt.Errorf("%w: dynamic argument #%d names bootstrap %d of %d", ErrBadBootstrap, arg, c.A, len(bsms))
			}
			if err := visit(int(c.A)); err != nil {
				return err
			}
		}
		state[i] = done
		return nil
	}

	for i := range bsms {
		if err := visit(i); err != nil {
			return err
		}
	}
	return nil
}
