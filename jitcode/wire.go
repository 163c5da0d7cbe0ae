package jitcode

import (
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/npillmayer/tinct"
)

// WireOpcode is an entry of the instruction table of a bundle.
type WireOpcode struct {
	Name   string `cbor:"name"`
	Format string `cbor:"format"`
}

// WireCode is the serialized form of a JitCode. Called bytecodes are
// referenced by their index in the bundle.
type WireCode struct {
	Name                string           `cbor:"name"`
	Code                []byte           `cbor:"code"`
	Constants           []ConstDesc      `cbor:"constants"`
	TypeKinds           []string         `cbor:"typekinds"`
	RedBoxClasses       []string         `cbor:"redboxclasses"`
	KeyDescs            []KeyDesc        `cbor:"keydescs"`
	StructTypeDescs     []StructTypeDesc `cbor:"structtypedescs"`
	FieldDescs          []FieldDesc      `cbor:"fielddescs"`
	ArrayFieldDescs     []ArrayFieldDesc `cbor:"arrayfielddescs"`
	InteriorDescs       []InteriorDesc   `cbor:"interiordescs"`
	OopSpecDescs        []OopSpecDesc    `cbor:"oopspecdescs"`
	PromotionDescs      []PromotionDesc  `cbor:"promotiondescs"`
	CallDescs           []CallDesc       `cbor:"calldescs"`
	Called              []int            `cbor:"called"`
	NumLocalMergePoints int              `cbor:"localmergepoints"`
	GraphColor          string           `cbor:"color"`
	IsPortal            bool             `cbor:"portal"`
}

// Bundle is the serializable result of a compilation session. Codes[0] is
// the portal.
type Bundle struct {
	Opcodes              []WireOpcode `cbor:"opcodes"`
	Codes                []WireCode   `cbor:"codes"`
	NumGlobalMergePoints int          `cbor:"globalmergepoints"`
}

// Bundle collects the bytecode reachable from a portal.
func (c *Compiler) Bundle(portal *JitCode) *Bundle {
	b := &Bundle{NumGlobalMergePoints: c.numGlobalMergePoints}
	for _, opc := range c.opcodes.list {
		b.Opcodes = append(b.Opcodes, WireOpcode{Name: opc.Name, Format: opc.Format})
	}
	index := make(map[*JitCode]int)
	var order []*JitCode
	var collect func(*JitCode)
	collect = func(jc *JitCode) {
		if _, ok := index[jc]; ok {
			return
		}
		index[jc] = len(order)
		order = append(order, jc)
		for _, called := range jc.CalledBytecodes {
			collect(called)
		}
	}
	collect(portal)
	for _, jc := range order {
		wc := WireCode{
			Name: jc.Name, Code: jc.Code, Constants: jc.Constants,
			TypeKinds: jc.TypeKinds, RedBoxClasses: jc.RedBoxClasses,
			KeyDescs: jc.KeyDescs, StructTypeDescs: jc.StructTypeDescs,
			FieldDescs: jc.FieldDescs, ArrayFieldDescs: jc.ArrayFieldDescs,
			InteriorDescs: jc.InteriorDescs, OopSpecDescs: jc.OopSpecDescs,
			PromotionDescs: jc.PromotionDescs, CallDescs: jc.CallDescs,
			NumLocalMergePoints: jc.NumLocalMergePoints,
			GraphColor:          jc.GraphColor, IsPortal: jc.IsPortal,
		}
		for _, called := range jc.CalledBytecodes {
			wc.Called = append(wc.Called, index[called])
		}
		b.Codes = append(b.Codes, wc)
	}
	return b
}

// Encode writes a bundle in canonical CBOR.
func (b *Bundle) Encode(w io.Writer) error {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return err
	}
	return em.NewEncoder(w).Encode(b)
}

// DecodeBundle reads a bundle written by Encode.
func DecodeBundle(r io.Reader) (*Bundle, error) {
	b := &Bundle{}
	if err := cbor.NewDecoder(r).Decode(b); err != nil {
		return nil, err
	}
	return b, nil
}

// JitCodes reconstructs the bytecode objects of a bundle. The portal is the
// first element.
func (b *Bundle) JitCodes() ([]*JitCode, error) {
	opcodes := &Opcodes{byName: make(map[string]*Opcode), kinds: make(map[string]int)}
	for _, wo := range b.Opcodes {
		opcodes.add(wo.Name, wo.Format)
	}
	codes := make([]*JitCode, len(b.Codes))
	for i, wc := range b.Codes {
		codes[i] = &JitCode{
			Name: wc.Name, Code: wc.Code, Constants: wc.Constants,
			TypeKinds: wc.TypeKinds, RedBoxClasses: wc.RedBoxClasses,
			KeyDescs: wc.KeyDescs, StructTypeDescs: wc.StructTypeDescs,
			FieldDescs: wc.FieldDescs, ArrayFieldDescs: wc.ArrayFieldDescs,
			InteriorDescs: wc.InteriorDescs, OopSpecDescs: wc.OopSpecDescs,
			PromotionDescs: wc.PromotionDescs, CallDescs: wc.CallDescs,
			NumLocalMergePoints: wc.NumLocalMergePoints,
			GraphColor:          wc.GraphColor, IsPortal: wc.IsPortal,
			opcodes: opcodes,
		}
	}
	for i, wc := range b.Codes {
		for _, ci := range wc.Called {
			if ci < 0 || ci >= len(codes) {
				return nil, tinct.Errorf(tinct.UnsupportedConstruct, "bundle refers to missing code %d", ci)
			}
			codes[i].CalledBytecodes = append(codes[i].CalledBytecodes, codes[ci])
		}
	}
	return codes, nil
}
