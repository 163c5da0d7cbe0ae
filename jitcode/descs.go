package jitcode

import (
	"fmt"

	"github.com/npillmayer/tinct/flow"
)

// Descriptor tables are part of the wire format. Field names double as CBOR
// keys.

// ConstDesc is an entry of the constant table.
type ConstDesc struct {
	Type  string      `cbor:"type"`
	Kind  string      `cbor:"kind"`
	Value interface{} `cbor:"value"`
}

func (c ConstDesc) String() string {
	return fmt.Sprintf("%v:%s", c.Value, c.Type)
}

// KeyDesc describes the green input arguments of a merge point.
type KeyDesc struct {
	Types []string `cbor:"types"`
	Kinds []string `cbor:"kinds"`
}

// StructTypeDesc describes the layout of a struct type.
type StructTypeDesc struct {
	Name          string   `cbor:"name"`
	Fields        []string `cbor:"fields"`
	Varsize       bool     `cbor:"varsize"`
	Immutable     bool     `cbor:"immutable"`
	Virtualizable bool     `cbor:"virtualizable"`
}

// FieldDesc describes a field of a struct type.
type FieldDesc struct {
	Struct    string `cbor:"struct"`
	Field     string `cbor:"field"`
	Index     int    `cbor:"index"`
	Type      string `cbor:"type"`
	Kind      string `cbor:"kind"`
	Immutable bool   `cbor:"immutable"`
}

// ArrayFieldDesc describes the items of an array type.
type ArrayFieldDesc struct {
	Array     string `cbor:"array"`
	ItemType  string `cbor:"itemtype"`
	ItemKind  string `cbor:"itemkind"`
	Immutable bool   `cbor:"immutable"`
}

// InteriorDesc describes a path into a container. Empty path elements stand
// for array indices, which are operands of the instruction.
type InteriorDesc struct {
	Type string   `cbor:"type"`
	Path []string `cbor:"path"`
	Kind string   `cbor:"kind"`
}

// OopArgDesc is an argument of an oopspec operation: a parameter index, or a
// literal if Param is -1.
type OopArgDesc struct {
	Param   int `cbor:"param"`
	Literal int `cbor:"literal"`
}

// OopSpecDesc describes a built-in high-level operation.
type OopSpecDesc struct {
	Func      string       `cbor:"func"`
	Name      string       `cbor:"name"`
	Args      []OopArgDesc `cbor:"args"`
	IsMethod  bool         `cbor:"method"`
	CanRaise  bool         `cbor:"canraise"`
	CouldFold bool         `cbor:"couldfold"`
}

// PromotionDesc describes a promotion site. Promotion descriptors are shared
// between all sites promoting values of the same erased type.
type PromotionDesc struct {
	Erased string `cbor:"erased"`
}

// CallDesc describes the signature of a called function.
type CallDesc struct {
	Sig        string   `cbor:"sig"`
	ResultKind string   `cbor:"resultkind"`
	VoidArgs   []string `cbor:"voidargs"`
}

// --- Kinds -----------------------------------------------------------------

// kindToken classifies a type for register sizing.
func kindToken(t *flow.Type) string {
	switch t.Kind {
	case flow.VoidKind:
		return "void"
	case flow.FloatKind:
		return "float"
	case flow.PtrKind, flow.FuncKind:
		return "ptr"
	case flow.StructKind, flow.ArrayKind:
		return "container"
	}
	return "word"
}

// redboxClass names the runtime box class for red values of a type.
func redboxClass(t *flow.Type) string {
	switch kindToken(t) {
	case "float":
		return "DoubleRedBox"
	case "ptr":
		return "PtrRedBox"
	case "void":
		return ""
	}
	return "IntRedBox"
}

// erasedType maps a type to the type the execution engine stores it as.
func erasedType(t *flow.Type) string {
	switch kindToken(t) {
	case "float":
		return "Float"
	case "ptr", "container":
		return "GCREF"
	case "void":
		return "Void"
	}
	return "Signed"
}

// wireValue converts the value of a constant to a representation which may
// be serialized.
func wireValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, int, uint, bool, byte, float64, string:
		return x
	case *flow.Func:
		return "@" + x.Name
	case *flow.Type:
		return x.String()
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprintf("%v", v)
}
