package interp

import (
	"kestrel/internal/defs"
	"kestrel/internal/wasm/parser"
)

// HostFunc is a host-provided function bound into a module's import slots
// (internal/wasi's syscalls are the only kind kestrel currently binds).
// args are the passed operands in left-to-right order; the returned values
// are pushed in order. Returning a non-ENONE Err_t traps the calling frame.
type HostFunc func(m *Machine, args []Value) ([]Value, defs.Err_t)

// FuncInstance is either a module-defined function body or a host binding.
type FuncInstance struct {
	Type parser.FuncType
	Host HostFunc // nil for module-defined functions
	Mod  *ModuleInstance
	Def  *parser.Func // nil for host functions
}

// GlobalInstance holds one global's current value.
type GlobalInstance struct {
	Type  parser.GlobalType
	Value Value
}

// Store is the shared address space backing one or more module instances:
// spec.md §4.11 describes the machine as "one flat store of functions,
// tables, memories, and globals", matching the core WASM spec's own model
// rather than biscuit's per-process isolation -- kestrel's guest modules
// are mutually trusting by construction since the engine is embedded
// per-process by internal/shell, not shared across processes.
type Store struct {
	Funcs   []*FuncInstance
	Tables  []*Table
	Memories []*Memory
	Globals []*GlobalInstance
}

// ModuleInstance binds one decoded Module's index spaces to Store addresses.
type ModuleInstance struct {
	Module    *parser.Module
	Store     *Store
	FuncAddrs []int
	TableAddrs []int
	MemAddrs  []int
	GlobalAddrs []int
	Exports   map[string]parser.Export

	// dataSegs/elemSegs are module-local: WASM never imports or exports a
	// data or element segment, only the memory/table they initialize.
	dataSegs []parser.DataSegment
	elemSegs []parser.ElementSegment
	dataDropped map[int]bool
}

// ImportResolver looks up one import's concrete binding. internal/wasi
// implements this to hand back its wasi_snapshot_preview1 functions; a
// module with no imports can pass a resolver that always fails.
type ImportResolver interface {
	ResolveFunc(module, name string, sig parser.FuncType) (HostFunc, defs.Err_t)
}

// NoImports is an ImportResolver for modules declaring none; any lookup is
// a validation bug in the caller, not a runtime condition, so it fails
// loudly rather than silently stubbing something in.
type NoImports struct{}

func (NoImports) ResolveFunc(module, name string, sig parser.FuncType) (HostFunc, defs.Err_t) {
	return nil, defs.EWASMVALIDATION
}

// Instantiate allocates a module's functions, tables, memories, and globals
// into store, runs its element and active-data segments, and calls its
// start function if present (spec.md §4.11's Instantiate operation).
func Instantiate(store *Store, mod *parser.Module, imports ImportResolver) (*ModuleInstance, defs.Err_t) {
	inst := &ModuleInstance{Module: mod, Store: store, Exports: map[string]parser.Export{}, dataDropped: map[int]bool{}}

	numImportedFuncs := 0
	for _, imp := range mod.Imports {
		switch imp.Kind {
		case 0x00:
			sig := mod.Types[imp.TypeIdx]
			host, err := imports.ResolveFunc(imp.Module, imp.Name, sig)
			if err != defs.ENONE {
				return nil, err
			}
			fi := &FuncInstance{Type: sig, Host: host, Mod: inst}
			store.Funcs = append(store.Funcs, fi)
			inst.FuncAddrs = append(inst.FuncAddrs, len(store.Funcs)-1)
			numImportedFuncs++
		case 0x01:
			t := NewTable(imp.TableType.Limits.Min, imp.TableType.Limits.HasMax, imp.TableType.Limits.Max)
			store.Tables = append(store.Tables, t)
			inst.TableAddrs = append(inst.TableAddrs, len(store.Tables)-1)
		case 0x02:
			mem := NewMemory(imp.MemType.Limits.Min, imp.MemType.Limits.HasMax, imp.MemType.Limits.Max)
			store.Memories = append(store.Memories, mem)
			inst.MemAddrs = append(inst.MemAddrs, len(store.Memories)-1)
		case 0x03:
			gi := &GlobalInstance{Type: imp.GlobalType}
			store.Globals = append(store.Globals, gi)
			inst.GlobalAddrs = append(inst.GlobalAddrs, len(store.Globals)-1)
		}
	}

	for i := range mod.Funcs {
		def := &mod.Funcs[i]
		fi := &FuncInstance{Type: mod.Types[def.TypeIdx], Mod: inst, Def: def}
		store.Funcs = append(store.Funcs, fi)
		inst.FuncAddrs = append(inst.FuncAddrs, len(store.Funcs)-1)
	}

	// Tables/memories declared (not imported) by this module. Import
	// decoding already appended imported table/memory types into
	// mod.Tables/mod.Memories, so walk the tail past what was imported.
	numImportedTables := len(inst.TableAddrs)
	for _, t := range mod.Tables[numImportedTables:] {
		store.Tables = append(store.Tables, NewTable(t.Limits.Min, t.Limits.HasMax, t.Limits.Max))
		inst.TableAddrs = append(inst.TableAddrs, len(store.Tables)-1)
	}
	numImportedMems := len(inst.MemAddrs)
	for _, mt := range mod.Memories[numImportedMems:] {
		store.Memories = append(store.Memories, NewMemory(mt.Limits.Min, mt.Limits.HasMax, mt.Limits.Max))
		inst.MemAddrs = append(inst.MemAddrs, len(store.Memories)-1)
	}

	// Globals: imports already populated the prefix; module-defined globals
	// append in declaration order and may reference only imported globals
	// or earlier constants in their initializer (core spec restriction).
	numImportedGlobals := len(inst.GlobalAddrs)
	for _, g := range mod.Globals[numImportedGlobals:] {
		v, err := inst.evalConst(g.Init)
		if err != defs.ENONE {
			return nil, err
		}
		store.Globals = append(store.Globals, &GlobalInstance{Type: g.Type, Value: v})
		inst.GlobalAddrs = append(inst.GlobalAddrs, len(store.Globals)-1)
	}

	for _, exp := range mod.Exports {
		inst.Exports[exp.Name] = exp
	}

	inst.elemSegs = mod.Elements
	for _, seg := range mod.Elements {
		if seg.Declarative || !seg.Active {
			continue
		}
		off, err := inst.evalConst(seg.Offset)
		if err != defs.ENONE {
			return nil, err
		}
		table := store.Tables[inst.TableAddrs[seg.TableIdx]]
		base := uint32(off.I32)
		for j, fidx := range seg.Funcs {
			idx := base + uint32(j)
			if idx >= uint32(len(table.Elems)) {
				return nil, defs.ETRAPTABLEOOB
			}
			table.Elems[idx] = int64(inst.FuncAddrs[fidx])
		}
	}

	inst.dataSegs = mod.Data
	for _, seg := range mod.Data {
		if !seg.Active {
			continue
		}
		off, err := inst.evalConst(seg.Offset)
		if err != defs.ENONE {
			return nil, err
		}
		mem := store.Memories[inst.MemAddrs[seg.MemIdx]]
		if werr := mem.store(uint32(off.I32), 0, seg.Bytes); werr != defs.ENONE {
			return nil, werr
		}
	}

	if mod.StartFunc >= 0 {
		m := NewMachine(store, DefaultFuel)
		if _, _, err := m.CallAddr(inst.FuncAddrs[mod.StartFunc], nil); err != defs.ENONE {
			return nil, err
		}
	}

	return inst, defs.ENONE
}

// evalConst evaluates a constant initializer expression (a single
// const/global.get instruction, per parser.decodeConstExpr's accepted
// forms).
func (inst *ModuleInstance) evalConst(expr []parser.Instr) (Value, defs.Err_t) {
	if len(expr) != 1 {
		return Value{}, defs.EWASMVALIDATION
	}
	in := expr[0]
	switch in.Op {
	case parser.OpI32Const:
		return ValI32(in.I32), defs.ENONE
	case parser.OpI64Const:
		return ValI64(in.I64), defs.ENONE
	case parser.OpF32Const:
		return ValF32(in.F32), defs.ENONE
	case parser.OpF64Const:
		return ValF64(in.F64), defs.ENONE
	case parser.OpGlobalGet:
		return inst.Store.Globals[inst.GlobalAddrs[in.Idx]].Value, defs.ENONE
	default:
		return Value{}, defs.EWASMVALIDATION
	}
}

// ExportedFunc resolves an exported function name to its store address.
func (inst *ModuleInstance) ExportedFunc(name string) (int, defs.Err_t) {
	exp, ok := inst.Exports[name]
	if !ok || exp.Kind != 0x00 {
		return 0, defs.ENOPATH
	}
	return inst.FuncAddrs[exp.Idx], defs.ENONE
}

// ExportedMemory resolves an exported memory name, the common WASI
// convention for a module's linear memory ("memory").
func (inst *ModuleInstance) ExportedMemory(name string) (*Memory, defs.Err_t) {
	exp, ok := inst.Exports[name]
	if !ok || exp.Kind != 0x02 {
		return nil, defs.ENOPATH
	}
	return inst.Store.Memories[inst.MemAddrs[exp.Idx]], defs.ENONE
}
