// Package bridge implements the host/interpreter value boundary (spec
// §6.1): a tagged host value type that travels across the embedding API in
// both directions, plus the conversion rules between it and package
// values's internal representation. Grounded on spec.md §6.1's tagged-
// variant grammar; the original's `convert.rs` was filtered out of the
// retrieval pack, so the exact conversion rules below follow the spec text
// directly, in the teacher's runtime-package style (small, table-driven
// constructors, one function per direction).
package bridge

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/wudi/monty/heap"
	"github.com/wudi/monty/intern"
	"github.com/wudi/monty/runtime"
	"github.com/wudi/monty/values"
)

// Kind tags a HostValue's variant, one per spec §6.1 entry. Repr and Cycle
// are output-only: ToInternal rejects them.
type Kind uint8

const (
	KindNone Kind = iota
	KindEllipsis
	KindBool
	KindInt
	KindBigInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindTuple
	KindNamedTuple
	KindDict
	KindSet
	KindFrozenSet
	KindDate
	KindDateTime
	KindTimeDelta
	KindTimeZone
	KindPath
	KindException
	KindType
	KindBuiltinFunction
	KindDataclass
	KindRepr  // output-only
	KindCycle // output-only
)

// DictEntry is one (key, value) pair of a HostValue Dict, order-preserving
// per spec §6.1 ("Dict(ordered [(k,v)])").
type DictEntry struct {
	Key   HostValue
	Value HostValue
}

// HostValue is the tagged value the host and the interpreter exchange
// across New/Run/Resume (spec §6.1). Only the fields relevant to Kind are
// populated; the rest are left zero.
type HostValue struct {
	Kind Kind

	Bool    bool
	Int     int64
	BigInt  *big.Int
	Float   float64
	Str     string // String, Path, Repr text, BuiltinFunction tag
	Bytes   []byte
	Items   []HostValue // List, Tuple, Set, FrozenSet, NamedTuple.Values
	Entries []DictEntry // Dict

	TypeName   string   // NamedTuple, Dataclass
	FieldNames []string // NamedTuple, Dataclass
	Attrs      []HostValue
	Frozen     bool   // Dataclass
	TypeID     string // Dataclass; uuid.UUID.String(), "" if unregistered

	Year, Month, Day                  int
	Hour, Minute, Second, Microsecond int
	OffsetSeconds                     int64
	HasOffset                         bool
	TZName                            string
	HasTZName                         bool
	Days, Seconds, Microseconds       int64 // TimeDelta

	ExcType values.ExceptionType
	ExcArg  *HostValue // Exception's optional arg

	TypeTag values.TypeTag // Type(tag)

	CycleID          int    // Cycle
	CyclePlaceholder string // Cycle, conventionally "[...]"
}

// ErrOutputOnly is returned by ToInternal when the host sends a Repr or
// Cycle variant as input (spec §6.1: "presence on input is an error").
var ErrOutputOnly = fmt.Errorf("bridge: Repr/Cycle are output-only variants")

// Converter holds the per-run state ToInternal/FromInternal need: the
// heap values are allocated into, the frozen intern table (for resolving
// KindInternString during equality checks the way vm.eqValues does), and
// the dataclass identity registry input Dataclass values auto-register
// into (spec §6.1).
type Converter struct {
	Heap      *heap.Heap
	Interns   *intern.Interns
	Dataclass *DataclassRegistry
}

// NewConverter builds a Converter sharing h/interns with the VM and a
// fresh dataclass registry (or reg, if the host wants identity to persist
// across multiple Run calls on the same program — spec §6.3's "persisted
// state").
func NewConverter(h *heap.Heap, interns *intern.Interns, reg *DataclassRegistry) *Converter {
	if reg == nil {
		reg = NewDataclassRegistry()
	}
	return &Converter{Heap: h, Interns: interns, Dataclass: reg}
}

func (c *Converter) eq(a, b values.Value) bool {
	if a.Kind == values.KindInternString && b.Kind == values.KindInternString {
		return c.Interns.String(a.Str) == c.Interns.String(b.Str)
	}
	return values.Eq(c.Heap, a, b, 256)
}

// ToInternal converts one host value into its internal representation,
// allocating heap records as needed (spec §6.1's input conversion rules).
func (c *Converter) ToInternal(v HostValue) (values.Value, error) {
	switch v.Kind {
	case KindNone:
		return values.None(), nil
	case KindEllipsis:
		return values.Ellipsis(), nil
	case KindBool:
		return values.Bool(v.Bool), nil
	case KindInt:
		return values.Int(v.Int), nil
	case KindBigInt:
		if v.BigInt == nil {
			return values.Value{}, fmt.Errorf("bridge: BigInt variant missing its value")
		}
		if v.BigInt.IsInt64() {
			return values.Int(v.BigInt.Int64()), nil
		}
		id, err := c.Heap.Allocate(&values.LongInt{V: new(big.Int).Set(v.BigInt)})
		if err != nil {
			return values.Value{}, err
		}
		return values.Ref(id), nil
	case KindFloat:
		return values.Float(v.Float), nil
	case KindString:
		id, err := c.Heap.Allocate(&values.String{V: v.Str})
		if err != nil {
			return values.Value{}, err
		}
		return values.Ref(id), nil
	case KindBytes:
		id, err := c.Heap.Allocate(&values.Bytes{V: append([]byte(nil), v.Bytes...)})
		if err != nil {
			return values.Value{}, err
		}
		return values.Ref(id), nil
	case KindList:
		items, err := c.toInternalSlice(v.Items)
		if err != nil {
			return values.Value{}, err
		}
		id, err := c.Heap.Allocate(&values.List{Items: items})
		if err != nil {
			return values.Value{}, err
		}
		return values.Ref(id), nil
	case KindTuple:
		items, err := c.toInternalSlice(v.Items)
		if err != nil {
			return values.Value{}, err
		}
		id, err := c.Heap.Allocate(&values.Tuple{Items: items})
		if err != nil {
			return values.Value{}, err
		}
		return values.Ref(id), nil
	case KindNamedTuple:
		items, err := c.toInternalSlice(v.Items)
		if err != nil {
			return values.Value{}, err
		}
		id, err := c.Heap.Allocate(&values.NamedTuple{
			TypeName:   v.TypeName,
			FieldNames: append([]string(nil), v.FieldNames...),
			Values:     items,
		})
		if err != nil {
			return values.Value{}, err
		}
		return values.Ref(id), nil
	case KindDict:
		d := values.NewDict()
		for _, e := range v.Entries {
			k, err := c.ToInternal(e.Key)
			if err != nil {
				return values.Value{}, err
			}
			val, err := c.ToInternal(e.Value)
			if err != nil {
				return values.Value{}, err
			}
			d.Set(c.Heap, k, val, c.eq)
		}
		id, err := c.Heap.Allocate(d)
		if err != nil {
			return values.Value{}, err
		}
		return values.Ref(id), nil
	case KindSet, KindFrozenSet:
		items, err := c.toInternalSlice(v.Items)
		if err != nil {
			return values.Value{}, err
		}
		set := &values.Set{Frozen: v.Kind == KindFrozenSet}
		for _, it := range items {
			dup := false
			for _, existing := range set.Items {
				if c.eq(existing, it) {
					dup = true
					break
				}
			}
			if !dup {
				set.Items = append(set.Items, it)
			}
		}
		id, err := c.Heap.Allocate(set)
		if err != nil {
			return values.Value{}, err
		}
		return values.Ref(id), nil
	case KindDate:
		d, err := values.NewDate(v.Year, v.Month, v.Day)
		if err != nil {
			return values.Value{}, err
		}
		id, err := c.Heap.Allocate(d)
		if err != nil {
			return values.Value{}, err
		}
		return values.Ref(id), nil
	case KindDateTime:
		if _, err := values.NewDate(v.Year, v.Month, v.Day); err != nil {
			return values.Value{}, err
		}
		if v.Hour < 0 || v.Hour > 23 || v.Minute < 0 || v.Minute > 59 ||
			v.Second < 0 || v.Second > 59 || v.Microsecond < 0 || v.Microsecond > 999999 {
			return values.Value{}, fmt.Errorf("bridge: DateTime component out of range")
		}
		dt := &values.DateTime{
			Year: v.Year, Month: v.Month, Day: v.Day,
			Hour: v.Hour, Minute: v.Minute, Second: v.Second, Microsecond: v.Microsecond,
			OffsetSeconds: v.OffsetSeconds, HasOffset: v.HasOffset, TZName: v.TZName,
		}
		if v.HasOffset {
			if _, err := values.NewTimeZone(v.OffsetSeconds, v.TZName, v.HasTZName); err != nil {
				return values.Value{}, err
			}
		}
		id, err := c.Heap.Allocate(dt)
		if err != nil {
			return values.Value{}, err
		}
		return values.Ref(id), nil
	case KindTimeDelta:
		td, err := values.NewTimeDelta(v.Days, v.Seconds, v.Microseconds)
		if err != nil {
			return values.Value{}, err
		}
		id, err := c.Heap.Allocate(td)
		if err != nil {
			return values.Value{}, err
		}
		return values.Ref(id), nil
	case KindTimeZone:
		tz, err := values.NewTimeZone(v.OffsetSeconds, v.TZName, v.HasTZName)
		if err != nil {
			return values.Value{}, err
		}
		id, err := c.Heap.Allocate(tz)
		if err != nil {
			return values.Value{}, err
		}
		return values.Ref(id), nil
	case KindPath:
		id, err := c.Heap.Allocate(&values.Path{V: v.Str})
		if err != nil {
			return values.Value{}, err
		}
		return values.Ref(id), nil
	case KindException:
		if v.ExcArg == nil {
			return values.NewException(v.ExcType), nil
		}
		arg, err := c.ToInternal(*v.ExcArg)
		if err != nil {
			return values.Value{}, err
		}
		argID, err := c.refOf(arg)
		if err != nil {
			return values.Value{}, err
		}
		return values.Value{Kind: values.KindException, ExcTyp: v.ExcType, ExcArg: argID}, nil
	case KindType:
		return values.Type(v.TypeTag), nil
	case KindBuiltinFunction:
		return values.Value{Kind: values.KindBuiltinFunction}, nil
	case KindDataclass:
		fields := append([]string(nil), v.FieldNames...)
		attrs, err := c.toInternalSlice(v.Attrs)
		if err != nil {
			return values.Value{}, err
		}
		typeID := v.TypeID
		if typeID == "" {
			typeID = uuid.New().String()
		}
		if id, err := uuid.Parse(typeID); err == nil {
			if _, known := c.Dataclass.Lookup(id); !known || v.TypeName != "" || len(fields) > 0 {
				c.Dataclass.Register(id, v.TypeName, fields)
			}
		}
		dc := &values.Dataclass{
			TypeName:   v.TypeName,
			TypeID:     typeID,
			FieldNames: fields,
			Attrs:      attrs,
			Frozen:     v.Frozen,
		}
		id, err := c.Heap.Allocate(dc)
		if err != nil {
			return values.Value{}, err
		}
		return values.Ref(id), nil
	case KindRepr, KindCycle:
		return values.Value{}, ErrOutputOnly
	default:
		return values.Value{}, fmt.Errorf("bridge: unknown host value kind %d", v.Kind)
	}
}

func (c *Converter) toInternalSlice(items []HostValue) ([]values.Value, error) {
	out := make([]values.Value, 0, len(items))
	for _, it := range items {
		v, err := c.ToInternal(it)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// refOf allocates arg as a standalone heap value when it isn't already one
// (exceptions carry their argument as a heap.HeapID, spec §4.3.3).
func (c *Converter) refOf(v values.Value) (heap.HeapID, error) {
	if v.Kind == values.KindRef {
		return v.Ref, nil
	}
	id, err := c.Heap.Allocate(&values.String{V: values.FormatStr(c.Heap, v, c.Interns)})
	if err != nil {
		return heap.HeapID{}, err
	}
	return id, nil
}

// FromInternal converts one internal Value back into the host tagged
// representation (spec §6.1's output conversion rules), detecting
// self-referential containers and emitting Cycle at the back-edge.
func (c *Converter) FromInternal(v values.Value) HostValue {
	return c.fromInternal(v, map[heap.HeapID]int{}, new(int))
}

func (c *Converter) fromInternal(v values.Value, visiting map[heap.HeapID]int, nextCycleID *int) HostValue {
	switch v.Kind {
	case values.KindNone:
		return HostValue{Kind: KindNone}
	case values.KindEllipsis:
		return HostValue{Kind: KindEllipsis}
	case values.KindBool:
		return HostValue{Kind: KindBool, Bool: v.Bool}
	case values.KindInt:
		return HostValue{Kind: KindInt, Int: v.Int}
	case values.KindFloat:
		return HostValue{Kind: KindFloat, Float: v.Float}
	case values.KindInternString:
		return HostValue{Kind: KindString, Str: c.Interns.String(v.Str)}
	case values.KindFunction, values.KindBuiltinFunction:
		return HostValue{Kind: KindBuiltinFunction, Str: fmt.Sprintf("function:%d", v.FnID)}
	case values.KindType:
		return HostValue{Kind: KindType, TypeTag: v.TypeTag}
	case values.KindException:
		hv := HostValue{Kind: KindException, ExcType: v.ExcTyp}
		if v.ExcArg.Valid() {
			msg := runtime.Message(c.Heap, v)
			arg := HostValue{Kind: KindString, Str: msg}
			hv.ExcArg = &arg
		}
		return hv
	case values.KindUndefined:
		return HostValue{Kind: KindNone}
	case values.KindRef:
		return c.fromRef(v.Ref, visiting, nextCycleID)
	default:
		return HostValue{Kind: KindNone}
	}
}

func (c *Converter) fromRef(id heap.HeapID, visiting map[heap.HeapID]int, nextCycleID *int) HostValue {
	if cid, ok := visiting[id]; ok {
		return HostValue{Kind: KindCycle, CycleID: cid, CyclePlaceholder: "[...]"}
	}
	data, err := c.Heap.Get(id)
	if err != nil {
		return HostValue{Kind: KindNone}
	}
	switch d := data.(type) {
	case *values.LongInt:
		return HostValue{Kind: KindBigInt, BigInt: new(big.Int).Set(d.V)}
	case *values.String:
		return HostValue{Kind: KindString, Str: d.V}
	case *values.Bytes:
		return HostValue{Kind: KindBytes, Bytes: append([]byte(nil), d.V...)}
	case *values.Path:
		return HostValue{Kind: KindPath, Str: d.V}
	case *values.List:
		*nextCycleID++
		cid := *nextCycleID
		visiting[id] = cid
		items := c.fromInternalSlice(d.Items, visiting, nextCycleID)
		delete(visiting, id)
		return HostValue{Kind: KindList, Items: items}
	case *values.Tuple:
		*nextCycleID++
		cid := *nextCycleID
		visiting[id] = cid
		items := c.fromInternalSlice(d.Items, visiting, nextCycleID)
		delete(visiting, id)
		return HostValue{Kind: KindTuple, Items: items}
	case *values.NamedTuple:
		*nextCycleID++
		cid := *nextCycleID
		visiting[id] = cid
		items := c.fromInternalSlice(d.Values, visiting, nextCycleID)
		delete(visiting, id)
		return HostValue{
			Kind: KindNamedTuple, TypeName: d.TypeName,
			FieldNames: append([]string(nil), d.FieldNames...), Items: items,
		}
	case *values.Dict:
		*nextCycleID++
		cid := *nextCycleID
		visiting[id] = cid
		entries := make([]DictEntry, 0, len(d.Entries))
		for _, e := range d.Entries {
			entries = append(entries, DictEntry{
				Key:   c.fromInternal(e.Key, visiting, nextCycleID),
				Value: c.fromInternal(e.Value, visiting, nextCycleID),
			})
		}
		delete(visiting, id)
		return HostValue{Kind: KindDict, Entries: entries}
	case *values.Set:
		*nextCycleID++
		cid := *nextCycleID
		visiting[id] = cid
		items := c.fromInternalSlice(d.Items, visiting, nextCycleID)
		delete(visiting, id)
		k := KindSet
		if d.Frozen {
			k = KindFrozenSet
		}
		return HostValue{Kind: k, Items: items}
	case *values.Date:
		return HostValue{Kind: KindDate, Year: d.Year, Month: d.Month, Day: d.Day}
	case *values.DateTime:
		return HostValue{
			Kind: KindDateTime, Year: d.Year, Month: d.Month, Day: d.Day,
			Hour: d.Hour, Minute: d.Minute, Second: d.Second, Microsecond: d.Microsecond,
			OffsetSeconds: d.OffsetSeconds, HasOffset: d.HasOffset, TZName: d.TZName,
			HasTZName: d.TZName != "",
		}
	case *values.TimeDelta:
		return HostValue{Kind: KindTimeDelta, Days: d.Days, Seconds: d.Seconds, Microseconds: d.Microseconds}
	case *values.TimeZone:
		return HostValue{Kind: KindTimeZone, OffsetSeconds: d.OffsetSeconds, TZName: d.Name, HasTZName: d.HasName}
	case *values.Dataclass:
		*nextCycleID++
		cid := *nextCycleID
		visiting[id] = cid
		attrs := c.fromInternalSlice(d.Attrs, visiting, nextCycleID)
		delete(visiting, id)
		typeID := d.TypeID
		if parsed, err := uuid.Parse(typeID); err == nil {
			if t, ok := c.Dataclass.Lookup(parsed); ok {
				return HostValue{
					Kind: KindDataclass, TypeName: t.Name, TypeID: typeID,
					FieldNames: append([]string(nil), t.FieldNames...), Attrs: attrs, Frozen: d.Frozen,
				}
			}
		}
		return HostValue{
			Kind: KindDataclass, TypeName: d.TypeName, TypeID: "",
			FieldNames: append([]string(nil), d.FieldNames...), Attrs: attrs, Frozen: d.Frozen,
		}
	case *values.Module:
		return HostValue{Kind: KindRepr, Str: values.FormatRepr(c.Heap, values.Ref(id), c.Interns)}
	default:
		return HostValue{Kind: KindRepr, Str: values.FormatRepr(c.Heap, values.Ref(id), c.Interns)}
	}
}

func (c *Converter) fromInternalSlice(items []values.Value, visiting map[heap.HeapID]int, nextCycleID *int) []HostValue {
	out := make([]HostValue, 0, len(items))
	for _, it := range items {
		out = append(out, c.fromInternal(it, visiting, nextCycleID))
	}
	return out
}
