// Package cqltype catalogs the CQL data-type model (spec.md component C2):
// the primitive set, collection constructors, tuple, user-defined type and
// frozen wrapper, plus the alterability rule the class-info compiler (C3)
// consults when diffing schemas.
package cqltype

import "fmt"

// Kind identifies the shape of a Type: a primitive, or one of the
// constructors (list/set/map/sorted-map/tuple/UDT/frozen).
type Kind int

const (
	KindPrimitive Kind = iota
	KindList
	KindSet
	KindMap
	KindSortedMap
	KindTuple
	KindUDT
	KindFrozen
)

// Primitive is the fixed CQL primitive set riftcql's codec registry (C1)
// maps native Go values onto.
type Primitive string

const (
	Ascii     Primitive = "ascii"
	BigInt    Primitive = "bigint"
	Blob      Primitive = "blob"
	Boolean   Primitive = "boolean"
	Counter   Primitive = "counter"
	Date      Primitive = "date"
	Decimal   Primitive = "decimal"
	Double    Primitive = "double"
	Duration  Primitive = "duration"
	Float     Primitive = "float"
	Inet      Primitive = "inet"
	Int       Primitive = "int"
	SmallInt  Primitive = "smallint"
	Text      Primitive = "text"
	Time      Primitive = "time"
	Timestamp Primitive = "timestamp"
	TimeUUID  Primitive = "timeuuid"
	TinyInt   Primitive = "tinyint"
	UUID      Primitive = "uuid"
	VarChar   Primitive = "varchar"
	VarInt    Primitive = "varint"
)

// Type is one fully-formed CQL data type: a primitive, or a constructor
// applied to one or more element Types.
type Type struct {
	Kind      Kind
	Primitive Primitive // valid when Kind == KindPrimitive
	Elements  []Type    // list/set/frozen: 1 element; map/sorted-map: 2; tuple: N
	UDTName   string    // valid when Kind == KindUDT
}

// Prim builds a primitive Type.
func Prim(p Primitive) Type { return Type{Kind: KindPrimitive, Primitive: p} }

// List, Set, Frozen build single-element constructors.
func List(elem Type) Type   { return Type{Kind: KindList, Elements: []Type{elem}} }
func Set(elem Type) Type    { return Type{Kind: KindSet, Elements: []Type{elem}} }
func Frozen(elem Type) Type { return Type{Kind: KindFrozen, Elements: []Type{elem}} }

// Map and SortedMap build two-element constructors; SortedMap additionally
// asserts ordered iteration (CQL map is naturally sorted by key already, but
// riftcql keeps the distinction so the compiler can require a key type with
// a defined ordering).
func Map(key, value Type) Type       { return Type{Kind: KindMap, Elements: []Type{key, value}} }
func SortedMap(key, value Type) Type { return Type{Kind: KindSortedMap, Elements: []Type{key, value}} }

// Tuple builds an N-element tuple type.
func Tuple(elems ...Type) Type { return Type{Kind: KindTuple, Elements: elems} }

// UDT references a user-defined type by name.
func UDT(name string) Type { return Type{Kind: KindUDT, UDTName: name} }

// CQL renders the type as the CQL DDL would spell it, e.g. "frozen<list<int>>".
func (t Type) CQL() string {
	switch t.Kind {
	case KindPrimitive:
		return string(t.Primitive)
	case KindList:
		return fmt.Sprintf("list<%s>", t.Elements[0].CQL())
	case KindSet:
		return fmt.Sprintf("set<%s>", t.Elements[0].CQL())
	case KindMap, KindSortedMap:
		return fmt.Sprintf("map<%s, %s>", t.Elements[0].CQL(), t.Elements[1].CQL())
	case KindTuple:
		s := "tuple<"
		for i, e := range t.Elements {
			if i > 0 {
				s += ", "
			}
			s += e.CQL()
		}
		return s + ">"
	case KindUDT:
		return t.UDTName
	case KindFrozen:
		return fmt.Sprintf("frozen<%s>", t.Elements[0].CQL())
	default:
		return "unknown"
	}
}

// IsCollection reports whether t is a list/set/map/sorted-map, i.e. a type
// whose ColumnBinding may carry the "mandatory collection" nil<->empty
// rewrite rule (spec.md §3 ColumnBinding).
func (t Type) IsCollection() bool {
	switch t.Kind {
	case KindList, KindSet, KindMap, KindSortedMap:
		return true
	default:
		return false
	}
}

// IsCounter reports whether t is the counter primitive.
func (t Type) IsCounter() bool { return t.Kind == KindPrimitive && t.Primitive == Counter }

// equal reports structural equality between two Types.
func (t Type) equal(other Type) bool {
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case KindPrimitive:
		return t.Primitive == other.Primitive
	case KindUDT:
		return t.UDTName == other.UDTName
	default:
		if len(t.Elements) != len(other.Elements) {
			return false
		}
		for i := range t.Elements {
			if !t.Elements[i].equal(other.Elements[i]) {
				return false
			}
		}
		return true
	}
}

// alterableNumeric lists primitive widenings CQL permits in ALTER TABLE
// (e.g. int -> bigint is not actually allowed by Cassandra, but int -> varint
// and ascii -> text are; this mirrors the documented subset the storage
// layer accepts).
var alterableNumeric = map[Primitive]map[Primitive]bool{
	Ascii:    {Text: true},
	Int:      {VarInt: true},
	TinyInt:  {SmallInt: true, Int: true, BigInt: true, VarInt: true},
	SmallInt: {Int: true, BigInt: true, VarInt: true},
	BigInt:   {VarInt: true},
	Float:    {Double: true},
}

// IsAlterableTo reports whether a column declared as `from` may be ALTERed
// to `to` without rebuilding the table, per C2's "is A alterable to B?"
// contract. Identical types are always alterable (a no-op ALTER is elided
// upstream by the diff, not here).
func IsAlterableTo(from, to Type) bool {
	if from.equal(to) {
		return true
	}
	if from.Kind != KindPrimitive || to.Kind != KindPrimitive {
		return false
	}
	if widenings, ok := alterableNumeric[from.Primitive]; ok {
		return widenings[to.Primitive]
	}
	return false
}
