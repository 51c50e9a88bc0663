// Package intern implements Monty's interned-identifier tables: strings,
// byte strings, compiled functions, and external (host) function names.
// Every identifier that crosses the bytecode boundary is a dense integer
// into one of these tables rather than a pointer, which is what lets
// constant pools and opcodes stay small, comparable, and cheap to hash.
package intern

import "fmt"

// StringID addresses a deduplicated string in the string table.
type StringID uint32

// BytesID addresses a (non-deduplicated) byte string in the bytes table.
type BytesID uint32

// FunctionID addresses a compiled function record in the function table.
type FunctionID uint32

// ExtFunctionID addresses a host-provided external function's name.
type ExtFunctionID uint32

// ModuleStringID is the well-known id of the literal string "<module>",
// used as the synthetic frame name for top-level module execution.
const ModuleStringID StringID = 0

// Attribute/method name ids 1..=MaxAttrID. The order matches the grouped
// layout the bytecode compiler assumes: list methods, then dict methods,
// then methods shared across containers, then set methods, then string
// methods, then the three bytes-only methods. Renumbering any of these
// would silently break any compiled bytecode that references them, so the
// order below must never change.
const (
	AttrAppend StringID = iota + 1 // 1
	AttrExtend                    // 2
	AttrInsert                    // 3
	AttrPop                       // 4
	AttrSort                      // 5

	AttrKeys   // 6
	AttrValues // 7
	AttrItems  // 8
	AttrGet    // 9
	AttrSetdefault
	AttrUpdate
	AttrPopitem // 12

	AttrCount // 13
	AttrIndex // 14
	AttrCopy  // 15

	AttrAdd           // 16
	AttrRemove        // 17
	AttrDiscard       // 18
	AttrClear         // 19
	AttrUnion         // 20
	AttrIntersection  // 21
	AttrDifference    // 22
	AttrIssubset      // 23
	AttrIssuperset    // 24
	AttrSymmetricDiff // 25
	AttrUnionUpdate   // 26

	AttrUpper      // 27
	AttrLower      // 28
	AttrStrip      // 29
	AttrLstrip     // 30
	AttrRstrip     // 31
	AttrSplit      // 32
	AttrRsplit     // 33
	AttrJoin       // 34
	AttrReplace    // 35
	AttrStartswith // 36
	AttrEndswith   // 37
	AttrFind       // 38
	AttrRfind      // 39
	AttrFormat     // 40
	AttrEncode     // 41
	AttrTitle      // 42
	AttrCapitalize // 43
	AttrSwapcase   // 44
	AttrZfill      // 45
	AttrCenter     // 46
	AttrLjust      // 47
	AttrRjust      // 48
	AttrIsdigit    // 49
	AttrIsalpha    // 50
	AttrIsalnum    // 51
	AttrIsspace    // 52
	AttrIsupper    // 53
	AttrIslower    // 54
	AttrIstitle    // 55
	AttrPartition  // 56
	AttrRpartition // 57
	AttrSplitlines // 58
	AttrCount2     // 59 (str.count shares a slot family but a distinct id)
	AttrTranslate  // 60
	AttrMaketrans  // 61
	AttrExpandtabs // 62
	AttrCasefold   // 63
	AttrFormatMap  // 64
	AttrRemovePrefix
	AttrRemoveSuffix
	AttrIsnumeric // 67

	AttrDecode    // 68 (bytes-only)
	AttrHex       // 69 (bytes-only)
	AttrFromHex   // 70 (bytes-only)
)

// MaxAttrID is the highest well-known attribute/method id.
const MaxAttrID = 70

// EmptyStringID is the well-known id of "".
const EmptyStringID StringID = MaxAttrID + 1 // 71

// asciiStringStart is the id of the string containing the single byte 0x00.
const asciiStringStart = int(EmptyStringID) + 1 // 72

// AsciiStringCount is the number of pre-interned single-ASCII-byte strings.
const AsciiStringCount = 128

// AsciiStringID returns the interned id of the one-character string
// containing the given ASCII byte.
func AsciiStringID(b byte) StringID {
	return StringID(asciiStringStart + int(b))
}

// firstFreeStringID is the first id available to InternerBuilder.String
// for runtime-interned constants, after the fixed prefix.
const firstFreeStringID = asciiStringStart + AsciiStringCount // 200

var attrNames = [MaxAttrID + 1]string{
	ModuleStringID: "<module>",
	AttrAppend:     "append", AttrExtend: "extend", AttrInsert: "insert",
	AttrPop: "pop", AttrSort: "sort",
	AttrKeys: "keys", AttrValues: "values", AttrItems: "items", AttrGet: "get",
	AttrSetdefault: "setdefault", AttrUpdate: "update", AttrPopitem: "popitem",
	AttrCount: "count", AttrIndex: "index", AttrCopy: "copy",
	AttrAdd: "add", AttrRemove: "remove", AttrDiscard: "discard", AttrClear: "clear",
	AttrUnion: "union", AttrIntersection: "intersection", AttrDifference: "difference",
	AttrIssubset: "issubset", AttrIssuperset: "issuperset",
	AttrSymmetricDiff: "symmetric_difference", AttrUnionUpdate: "intersection_update",
	AttrUpper: "upper", AttrLower: "lower", AttrStrip: "strip",
	AttrLstrip: "lstrip", AttrRstrip: "rstrip", AttrSplit: "split", AttrRsplit: "rsplit",
	AttrJoin: "join", AttrReplace: "replace", AttrStartswith: "startswith",
	AttrEndswith: "endswith", AttrFind: "find", AttrRfind: "rfind", AttrFormat: "format",
	AttrEncode: "encode", AttrTitle: "title", AttrCapitalize: "capitalize",
	AttrSwapcase: "swapcase", AttrZfill: "zfill", AttrCenter: "center",
	AttrLjust: "ljust", AttrRjust: "rjust", AttrIsdigit: "isdigit", AttrIsalpha: "isalpha",
	AttrIsalnum: "isalnum", AttrIsspace: "isspace", AttrIsupper: "isupper",
	AttrIslower: "islower", AttrIstitle: "istitle", AttrPartition: "partition",
	AttrRpartition: "rpartition", AttrSplitlines: "splitlines", AttrCount2: "count",
	AttrTranslate: "translate", AttrMaketrans: "maketrans", AttrExpandtabs: "expandtabs",
	AttrCasefold: "casefold", AttrFormatMap: "format_map",
	AttrRemovePrefix: "removeprefix", AttrRemoveSuffix: "removesuffix",
	AttrIsnumeric: "isnumeric",
	AttrDecode:    "decode", AttrHex: "hex", AttrFromHex: "fromhex",
}

// Builder accumulates runtime-interned strings, bytes, functions, and
// external function names on top of the fixed base prefix, and produces a
// read-only Interns snapshot. One Builder is used per compiled program;
// it is never reused afterward.
type Builder struct {
	strings    []string
	stringIdx  map[string]StringID
	byteStrs   [][]byte
	functions  []FunctionRecord
	extFnNames []string
	extFnIdx   map[string]ExtFunctionID
}

// FunctionRecord is the minimal shape the intern package needs from a
// compiled function; the registry package defines the full record and
// satisfies this via embedding.
type FunctionRecord interface {
	FunctionName() string
}

// NewBuilder returns a Builder pre-seeded with the fixed id prefix
// (module string, attribute names, empty string, ASCII singletons).
func NewBuilder() *Builder {
	b := &Builder{
		stringIdx: make(map[string]StringID, 256),
		extFnIdx:  make(map[string]ExtFunctionID, 16),
	}
	b.strings = make([]string, firstFreeStringID)
	for id, name := range attrNames {
		b.strings[id] = name
		b.stringIdx[name] = StringID(id)
	}
	b.strings[EmptyStringID] = ""
	b.stringIdx[""] = EmptyStringID
	for i := 0; i < AsciiStringCount; i++ {
		s := string([]byte{byte(i)})
		id := AsciiStringID(byte(i))
		b.strings[id] = s
		// Only index the first occurrence; attribute names already cover
		// some single ASCII bytes indirectly via their own multi-char
		// names, but no attribute name is length 1, so no collision.
		if _, ok := b.stringIdx[s]; !ok {
			b.stringIdx[s] = id
		}
	}
	return b
}

// String interns s, returning its existing id if already present.
func (b *Builder) String(s string) StringID {
	if id, ok := b.stringIdx[s]; ok {
		return id
	}
	id := StringID(len(b.strings))
	b.strings = append(b.strings, s)
	b.stringIdx[s] = id
	return id
}

// Bytes interns a byte string. Unlike String, byte strings are never
// deduplicated: two equal-content byte slices get distinct ids, mirroring
// the original's non-deduped bytes table (bytes are mutated far less often
// than strings are compared, so the dedup cost isn't worth paying).
func (b *Builder) Bytes(data []byte) BytesID {
	id := BytesID(len(b.byteStrs))
	cp := make([]byte, len(data))
	copy(cp, data)
	b.byteStrs = append(b.byteStrs, cp)
	return id
}

// Function appends a compiled function record, returning its id.
func (b *Builder) Function(fn FunctionRecord) FunctionID {
	id := FunctionID(len(b.functions))
	b.functions = append(b.functions, fn)
	return id
}

// ExternalFunction interns the name of a host-provided external function.
func (b *Builder) ExternalFunction(name string) ExtFunctionID {
	if id, ok := b.extFnIdx[name]; ok {
		return id
	}
	id := ExtFunctionID(len(b.extFnNames))
	b.extFnNames = append(b.extFnNames, name)
	b.extFnIdx[name] = id
	return id
}

// Build freezes the builder into a read-only Interns table.
func (b *Builder) Build() *Interns {
	return &Interns{
		strings:    append([]string(nil), b.strings...),
		byteStrs:   append([][]byte(nil), b.byteStrs...),
		functions:  append([]FunctionRecord(nil), b.functions...),
		extFnNames: append([]string(nil), b.extFnNames...),
	}
}

// Interns is the frozen, read-only view of a program's intern tables,
// shared (never copied) across every frame of one interpreter run.
type Interns struct {
	strings    []string
	byteStrs   [][]byte
	functions  []FunctionRecord
	extFnNames []string
}

// String returns the string for id. Panics on an out-of-range id, since an
// out-of-range id can only come from a malformed bytecode program — a bug
// in the compiler or a corrupted persisted program, not a runtime
// condition callers are expected to recover from.
func (in *Interns) String(id StringID) string {
	return in.strings[id]
}

// Bytes returns the byte string for id.
func (in *Interns) Bytes(id BytesID) []byte {
	return in.byteStrs[id]
}

// Function returns the compiled function record for id.
func (in *Interns) Function(id FunctionID) FunctionRecord {
	return in.functions[id]
}

// ExternalFunctionName returns the host function name for id.
func (in *Interns) ExternalFunctionName(id ExtFunctionID) string {
	return in.extFnNames[id]
}

// StringCount reports how many strings are interned (fixed prefix plus
// program constants), for diagnostics and size-estimation.
func (in *Interns) StringCount() int { return len(in.strings) }

func (id StringID) String() string { return fmt.Sprintf("StringID(%d)", uint32(id)) }
