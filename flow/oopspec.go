package flow

import (
	"fmt"
	"strconv"
	"strings"
)

// OopSpec is a parsed declaration of a built-in high-level operation, e.g.
//
//    list.getitem(l, index)
//
// Arguments refer to parameters of the function by name or are integer literals.
type OopSpec struct {
	TypeName string // "list"
	OpName   string // "getitem"
	Args     []OopArg
}

// OopArg is an argument of an oopspec: either the index of a function parameter
// or a literal.
type OopArg struct {
	Param   int // -1 for literals
	Literal int
}

// IsMethod is true for operations on a receiver (first argument).
func (spec *OopSpec) IsMethod() bool {
	return spec.TypeName != "" && len(spec.Args) > 0
}

// Name returns the qualified name of the operation.
func (spec *OopSpec) Name() string {
	if spec.TypeName == "" {
		return spec.OpName
	}
	return spec.TypeName + "." + spec.OpName
}

// ParseOopSpec parses the oopspec declaration of a function.
func ParseOopSpec(fn *Func) (*OopSpec, error) {
	s := strings.TrimSpace(fn.OopSpec)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("malformed oopspec %q of %s", s, fn.Name)
	}
	spec := &OopSpec{}
	name := s[:open]
	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		spec.TypeName, spec.OpName = name[:dot], name[dot+1:]
	} else {
		spec.OpName = name
	}
	inner := strings.TrimSpace(s[open+1 : len(s)-1])
	if inner == "" {
		return spec, nil
	}
	for _, a := range strings.Split(inner, ",") {
		a = strings.TrimSpace(a)
		if n, err := strconv.Atoi(a); err == nil {
			spec.Args = append(spec.Args, OopArg{Param: -1, Literal: n})
			continue
		}
		idx := -1
		for i, p := range fn.ParamNames {
			if p == a {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("oopspec of %s refers to unknown parameter %q", fn.Name, a)
		}
		spec.Args = append(spec.Args, OopArg{Param: idx})
	}
	return spec, nil
}
