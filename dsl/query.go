package dsl

import "strings"

// Commands returns the commands named name directly inside b, in source order.
func (b *Block) Commands(name string) []*Command {
	if b == nil {
		return nil
	}
	var out []*Command
	for _, st := range b.Statements {
		if st.Command != nil && st.Command.Name == name {
			out = append(out, st.Command)
		}
	}
	return out
}

// Command returns the first command named name, or nil.
func (b *Block) Command(name string) *Command {
	if cmds := b.Commands(name); len(cmds) > 0 {
		return cmds[0]
	}
	return nil
}

// Value returns the value assigned to key, or nil. Later assignments win.
func (b *Block) Value(key string) *Value {
	if b == nil {
		return nil
	}
	var out *Value
	for _, st := range b.Statements {
		if st.Assignment != nil && st.Assignment.Key == key {
			out = st.Assignment.Value
		}
	}
	return out
}

// Assignments returns every key/value pair of b in source order.
func (b *Block) Assignments() []*Assignment {
	if b == nil {
		return nil
	}
	var out []*Assignment
	for _, st := range b.Statements {
		if st.Assignment != nil {
			out = append(out, st.Assignment)
		}
	}
	return out
}

// Words returns the decoded argument values of c.
func (c *Command) Words() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.Args))
	for i, a := range c.Args {
		out[i] = a.Text()
	}
	return out
}

// Text returns the argument with string quotes removed.
func (a *Arg) Text() string {
	switch {
	case a == nil:
		return ""
	case a.String != nil:
		return string(*a.String)
	case a.Number != nil:
		return *a.Number
	case a.Color != nil:
		return *a.Color
	case a.Ident != nil:
		return *a.Ident
	default:
		return ""
	}
}

// Text renders v as plain text. Arrays are joined with ", " and
// references with ".".
func (v *Value) Text() string {
	switch {
	case v == nil:
		return ""
	case v.String != nil:
		return string(*v.String)
	case v.Number != nil:
		return *v.Number
	case v.Color != nil:
		return *v.Color
	case v.Array != nil:
		return strings.Join(v.Strings(), ", ")
	case v.Ref != nil:
		return strings.Join(v.Ref.Parts, ".")
	default:
		return ""
	}
}

// Strings flattens an array value; scalars become a one-element slice.
func (v *Value) Strings() []string {
	if v == nil {
		return nil
	}
	if v.Array == nil {
		return []string{v.Text()}
	}
	out := make([]string, 0, len(v.Array.Values))
	for _, item := range v.Array.Values {
		out = append(out, item.Text())
	}
	return out
}
