package flowtext

/*
License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>

*/

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/npillmayer/tinct"
	"github.com/timtadh/lexmachine"
	"github.com/timtadh/lexmachine/machines"
)

// Token categories which are not single characters.
const (
	EOF    tinct.TokType = -1
	Ident  tinct.TokType = -2
	Number tinct.TokType = -3
	String tinct.TokType = -4
)

// The tokens representing literal one-char lexemes
var literals = []string{"(", ")", "{", "}", "[", "]", ",", ":", "=", "*", "@", "%"}

// tokenIds will be set in initTokens()
var tokenIds map[string]int // A map from the token names to their token types

var initOnce sync.Once // monitors one-time initialization
func initTokens() {
	initOnce.Do(func() {
		tokenIds = make(map[string]int)
		tokenIds["ID"] = int(Ident)
		tokenIds["NUM"] = int(Number)
		tokenIds["STRING"] = int(String)
		for _, lit := range literals {
			r := lit[0]
			tokenIds[lit] = int(r)
		}
	})
}

var lexer *lexmachine.Lexer
var lexerErr error
var lexerOnce sync.Once

// newLexer creates and compiles the lexmachine lexer for the notation. The DFA
// is compiled once and shared between scanners.
func newLexer() (*lexmachine.Lexer, error) {
	lexerOnce.Do(func() {
		initTokens()
		lexer = lexmachine.NewLexer()
		lexer.Add([]byte(`#[^\n]*\n?`), skip) // skip comments
		lexer.Add([]byte(`\"[^"]*\"`), makeToken("STRING"))
		lexer.Add([]byte(`([a-z]|[A-Z]|_)([a-z]|[A-Z]|[0-9]|_)*`), makeToken("ID"))
		lexer.Add([]byte(`\-?[0-9]+(\.[0-9]+)?`), makeToken("NUM"))
		lexer.Add([]byte(`( |\t|\n|\r)+`), skip)
		for _, lit := range literals {
			r := "\\" + strings.Join(strings.Split(lit, ""), "\\")
			lexer.Add([]byte(r), makeToken(lit))
		}
		if lexerErr = lexer.Compile(); lexerErr != nil {
			tracer().Errorf("Error compiling DFA: %v", lexerErr)
		}
	})
	return lexer, lexerErr
}

func skip(*lexmachine.Scanner, *machines.Match) (interface{}, error) {
	return nil, nil
}

func makeToken(s string) lexmachine.Action {
	id, ok := tokenIds[s]
	if !ok {
		panic(fmt.Errorf("unknown token: %s", s))
	}
	return func(scan *lexmachine.Scanner, m *machines.Match) (interface{}, error) {
		return scan.Token(id, string(m.Bytes), m), nil
	}
}

// FlowToken is the token type of the flow graph notation.
type FlowToken struct {
	toktype tinct.TokType
	lexeme  string
	value   interface{}
	span    tinct.Span
	line    int
}

var _ tinct.Token = FlowToken{}

// TokType is part of interface tinct.Token.
func (t FlowToken) TokType() tinct.TokType {
	return t.toktype
}

// Lexeme is part of interface tinct.Token.
func (t FlowToken) Lexeme() string {
	return t.lexeme
}

// Value is part of interface tinct.Token.
// Numbers carry an int64 or a float64, strings carry their unquoted text.
func (t FlowToken) Value() interface{} {
	return t.value
}

// Span is part of interface tinct.Token.
func (t FlowToken) Span() tinct.Span {
	return t.span
}

func (t FlowToken) String() string {
	if t.toktype == EOF {
		return "<EOF>"
	}
	return fmt.Sprintf("%q", t.lexeme)
}

// Tokenize splits an input text into tokens. The returned slice is terminated
// by an EOF token.
func Tokenize(input string) ([]FlowToken, error) {
	lx, err := newLexer()
	if err != nil {
		return nil, err
	}
	scan, err := lx.Scanner([]byte(input))
	if err != nil {
		return nil, err
	}
	var toks []FlowToken
	for tok, err, eof := scan.Next(); !eof; tok, err, eof = scan.Next() {
		if err != nil {
			if ui, is := err.(*machines.UnconsumedInput); is {
				return nil, fmt.Errorf("line %d: unexpected input %q", ui.StartLine, excerpt(ui.Text))
			}
			return nil, err
		}
		lt := tok.(*lexmachine.Token)
		ft := FlowToken{
			toktype: tinct.TokType(lt.Type),
			lexeme:  string(lt.Lexeme),
			span:    tinct.Span{uint64(lt.TC), uint64(lt.TC + len(lt.Lexeme))},
			line:    lt.StartLine,
		}
		if ft.value, err = tokenValue(ft); err != nil {
			return nil, fmt.Errorf("line %d: %v", ft.line, err)
		}
		toks = append(toks, ft)
	}
	end := uint64(len(input))
	toks = append(toks, FlowToken{toktype: EOF, span: tinct.Span{end, end}, line: lastLine(toks)})
	tracer().Debugf("scanned %d tokens", len(toks))
	return toks, nil
}

func tokenValue(t FlowToken) (interface{}, error) {
	switch t.toktype {
	case Number:
		if strings.Contains(t.lexeme, ".") {
			return strconv.ParseFloat(t.lexeme, 64)
		}
		return strconv.ParseInt(t.lexeme, 10, 64)
	case String:
		return t.lexeme[1 : len(t.lexeme)-1], nil
	}
	return nil, nil
}

func excerpt(text []byte) string {
	if len(text) > 12 {
		return string(text[:12]) + "…"
	}
	return string(text)
}

func lastLine(toks []FlowToken) int {
	if len(toks) == 0 {
		return 1
	}
	return toks[len(toks)-1].line
}
