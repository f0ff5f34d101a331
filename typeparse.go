package ffibridge

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseType reads the textual type syntax:
//
//	bool i8 i16 i32 i64 f32 f64 char string unit bytes ref
//	u8 u16 u32 u64 u128 i128
//	int8array int16array int32array uint8array uint16array uint32array
//	option<T>  seq<T>  stream<T>  map<K,V>
//	struct Name{field:T,...}
//	enum Name{A,B,...}  enum{S:string,F64:f64,Null}
//
// Typed arrays may also be written with their reserved names, e.g.
// "@Int16Array", and "@AniRef" means ref.
func ParseType(src string) (*Type, error) {
	p := &typeParser{src: src}
	p.next()
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if p.tok != tokEOF {
		return nil, p.errorf("unexpected %s after type", p.describe())
	}
	return t, nil
}

// MustParseType is ParseType for known-good literals. It panics on error.
func MustParseType(src string) *Type {
	t, err := ParseType(src)
	if err != nil {
		panic(err)
	}
	return t
}

type token uint8

const (
	tokEOF token = iota
	tokIdent
	tokPunct
	tokInvalid
)

type typeParser struct {
	src string
	pos int

	tok   token
	text  string
	start int
	depth int
}

const maxTypeDepth = 64

var scalarTypes = map[string]*Type{
	"bool":   BoolType,
	"i8":     I8Type,
	"i16":    I16Type,
	"i32":    I32Type,
	"i64":    I64Type,
	"f32":    F32Type,
	"f64":    F64Type,
	"char":   CharType,
	"string": StringType,
	"unit":   UnitType,
	"bytes":  BytesType,
	"ref":    RefType,
	"u8":     U8Type,
	"u16":    U16Type,
	"u32":    U32Type,
	"u64":    U64Type,
	"u128":   U128Type,
	"i128":   I128Type,
}

func isIdentRune(r rune, first bool) bool {
	switch {
	case r == '_' || r == '$' || r == '@':
		return true
	case r == '.':
		return !first
	case unicode.IsLetter(r):
		return true
	case unicode.IsDigit(r):
		return !first
	}
	return false
}

func (p *typeParser) next() {
	for p.pos < len(p.src) && p.src[p.pos] < utf8.RuneSelf && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
	p.start = p.pos
	if p.pos >= len(p.src) {
		p.tok, p.text = tokEOF, ""
		return
	}
	r, size := utf8.DecodeRuneInString(p.src[p.pos:])
	if strings.ContainsRune("<>{},:", r) {
		p.tok, p.text = tokPunct, string(r)
		p.pos += size
		return
	}
	if r == utf8.RuneError || !isIdentRune(r, true) {
		p.tok, p.text = tokInvalid, p.src[p.pos:p.pos+size]
		p.pos += size
		return
	}
	end := p.pos + size
	for end < len(p.src) {
		c, n := utf8.DecodeRuneInString(p.src[end:])
		if c == utf8.RuneError || !isIdentRune(c, false) {
			break
		}
		end += n
	}
	p.tok, p.text = tokIdent, p.src[p.pos:end]
	p.pos = end
}

func (p *typeParser) describe() string {
	switch p.tok {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return fmt.Sprintf("identifier %q", p.text)
	}
	return fmt.Sprintf("%q", p.text)
}

func (p *typeParser) errorf(format string, args ...any) error {
	return newError(ConversionError, "parse type").name(p.src).
		detail("offset %d: %s", p.start, fmt.Sprintf(format, args...)).build()
}

func (p *typeParser) expect(punct string) error {
	if p.tok != tokPunct || p.text != punct {
		return p.errorf("expected %q, found %s", punct, p.describe())
	}
	p.next()
	return nil
}

func (p *typeParser) ident() (string, error) {
	if p.tok != tokIdent {
		return "", p.errorf("expected identifier, found %s", p.describe())
	}
	s := p.text
	p.next()
	return s, nil
}

func (p *typeParser) parseType() (*Type, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxTypeDepth {
		return nil, p.errorf("type nested too deeply")
	}

	word, err := p.ident()
	if err != nil {
		return nil, err
	}
	if t, ok := scalarTypes[word]; ok {
		return t, nil
	}
	if kind, passthrough := BufferKindByMarker(word); passthrough {
		return RefType, nil
	} else if kind != BufferNone {
		return TypedArrayType(kind), nil
	}
	for k := BufferInt8; k <= BufferUint32; k++ {
		if word == k.String() {
			return TypedArrayType(k), nil
		}
	}

	switch word {
	case "option", "seq", "stream":
		elem, err := p.parseArgs(1)
		if err != nil {
			return nil, err
		}
		kind := map[string]Kind{"option": KindOption, "seq": KindSeq, "stream": KindStream}[word]
		return &Type{Kind: kind, Elem: elem[0]}, nil
	case "map":
		kv, err := p.parseArgs(2)
		if err != nil {
			return nil, err
		}
		return MapType(kv[0], kv[1]), nil
	case "struct":
		return p.parseStruct()
	case "enum":
		return p.parseEnum()
	}
	return nil, p.errorf("unknown type %q", word)
}

func (p *typeParser) parseArgs(n int) ([]*Type, error) {
	if err := p.expect("<"); err != nil {
		return nil, err
	}
	args := make([]*Type, 0, n)
	for i := range n {
		if i > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		args = append(args, t)
	}
	if err := p.expect(">"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *typeParser) parseStruct() (*Type, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	t := StructType(name)
	seen := make(map[string]bool)
	for !(p.tok == tokPunct && p.text == "}") {
		if len(t.Fields) > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
		field, err := p.ident()
		if err != nil {
			return nil, err
		}
		if seen[field] {
			return nil, p.errorf("duplicate field %q", field)
		}
		seen[field] = true
		if err := p.expect(":"); err != nil {
			return nil, err
		}
		ft, err := p.parseType()
		if err != nil {
			return nil, err
		}
		t.Fields = append(t.Fields, FieldOf(field, ft))
	}
	p.next()
	return t, nil
}

func (p *typeParser) parseEnum() (*Type, error) {
	t := EnumType("")
	if p.tok == tokIdent {
		t.Name = p.text
		p.next()
	}
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for !(p.tok == tokPunct && p.text == "}") {
		if len(t.Variants) > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, p.errorf("duplicate variant %q", name)
		}
		seen[name] = true
		v := UnitVariant(name)
		if p.tok == tokPunct && p.text == ":" {
			p.next()
			if v.Type, err = p.parseType(); err != nil {
				return nil, err
			}
		}
		t.Variants = append(t.Variants, v)
	}
	p.next()
	if len(t.Variants) == 0 {
		return nil, p.errorf("enum without variants")
	}
	return t, nil
}
