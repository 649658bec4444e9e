package dsl

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// reportLookahead lets an optional block give back the newlines it consumed
// when no '{' follows, e.g. across a # or /* */ comment line.
const reportLookahead = 16

var (
	reportLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Whitespace", Pattern: `[ \t\r]+`},
		// 空白行与整行 // 注释并入同一个换行记号。
		{Name: "Newline", Pattern: `\n(?:[ \t\r]*(?://[^\n]*)?\n)*`},
		{Name: "BlockComment", Pattern: `/\*[^*]*\*+(?:[^/*][^*]*\*+)*/`},
		{Name: "LineComment", Pattern: `//[^\n]*`},
		// 颜色必须先于 # 注释匹配。
		{Name: "Color", Pattern: `#(?:[0-9A-Fa-f]{8}|[0-9A-Fa-f]{6}|[0-9A-Fa-f]{3})\b`},
		{Name: "HashComment", Pattern: `#[^\n]*`},
		{Name: "Number", Pattern: `-?(?:\d+\.\d+|\d+)(?:px|pt|mm|cm|in)?`},
		{Name: "String", Pattern: `"(?:\\.|[^"])*"`},
		{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_-]*`},
		{Name: "Punct", Pattern: `[][{}:;,.]`},
	})

	reportParser = participle.MustBuild[Document](
		participle.Lexer(reportLexer),
		participle.Elide("Whitespace", "LineComment", "BlockComment", "HashComment"),
		participle.UseLookahead(reportLookahead),
	)
)

// Document is the root of a report description:
//
//	report Weekly v1 { ... }
//
// The body is an ordinary block; its commands (meta, page, capacity,
// header, watermark, chart, image) are interpreted by the report package.
type Document struct {
	Pos     lexer.Position `parser:"" json:"-"`
	Name    string         `parser:"Newline* 'report' @Ident"`
	Version string         `parser:"@Ident"`
	Body    *Block         `parser:"@@ Newline*"`
}

// Block 为花括号内的语句列表，语句之间以换行或分号分隔。
type Block struct {
	Statements []*Statement `parser:"'{' Newline* ( @@ ( ';' | Newline )* )* '}'"`
}

// Statement 是赋值（key: value）或命令（name args... { block }）。
type Statement struct {
	Assignment *Assignment `parser:"  @@"`
	Command    *Command    `parser:"| @@"`
}

type Assignment struct {
	Pos   lexer.Position `parser:"" json:"-"`
	Key   string         `parser:"@Ident ':' Newline*"`
	Value *Value         `parser:"@@"`
}

type Command struct {
	Pos   lexer.Position `parser:"" json:"-"`
	Name  string         `parser:"@Ident"`
	Args  []*Arg         `parser:"@@*"`
	Block *Block         `parser:"( Newline* @@ )?"`
}

// Arg 是命令的单个位置参数。
type Arg struct {
	String *StringLiteral `parser:"  @String"`
	Number *string        `parser:"| @Number"`
	Color  *string        `parser:"| @Color"`
	Ident  *string        `parser:"| @Ident"`
}

// Value 是赋值右侧的值。Ref 为未加引号的标识符或点分路径，例如 data.temp 或 true。
type Value struct {
	String *StringLiteral `parser:"  @String"`
	Number *string        `parser:"| @Number"`
	Color  *string        `parser:"| @Color"`
	Array  *ArrayValue    `parser:"| @@"`
	Ref    *Ref           `parser:"| @@"`
}

// ArrayValue captures `[ a, b ]`; newlines may replace the commas.
type ArrayValue struct {
	Values []*Value `parser:"'[' Newline* ( @@ ( ( ',' | Newline+ ) Newline* @@ )* )? Newline* ']'"`
}

type Ref struct {
	Parts []string `parser:"@Ident ( '.' @Ident )*"`
}

// StringLiteral unquotes Go-style strings on capture.
type StringLiteral string

// Capture implements participle.Capture.
func (s *StringLiteral) Capture(values []string) error {
	if len(values) == 0 {
		return fmt.Errorf("string literal capture requires value")
	}
	val, err := strconv.Unquote(values[0])
	if err != nil {
		return err
	}
	*s = StringLiteral(val)
	return nil
}

// Parse parses a report description from r.
func Parse(r io.Reader) (*Document, error) {
	return reportParser.Parse("", r)
}

// ParseString parses a report description held in memory.
func ParseString(input string) (*Document, error) {
	return reportParser.ParseString("", input)
}

// ParseFile parses the file at path; error positions carry its name.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return reportParser.ParseBytes(path, data)
}
