package xmlstream

import (
    "strings"
)

// Element is one outbound subtree of the client stream. Attribute order is
// preserved because some legacy desktops parse positionally.
type Element struct {
    Name     string
    Attrs    []Attr
    Children []*Element
    Text     string
}

type Attr struct {
    Key   string
    Value string
}

func NewElement(name string) *Element {
    return &Element{Name: name}
}

func (e *Element) Attr(key, value string) *Element {
    e.Attrs = append(e.Attrs, Attr{Key: key, Value: value})
    return e
}

func (e *Element) Child(child *Element) *Element {
    e.Children = append(e.Children, child)
    return e
}

func (e *Element) SetText(text string) *Element {
    e.Text = text
    return e
}

// render writes the subtree using the requested attribute quote character
func (e *Element) render(sb *strings.Builder, quote byte) {
    sb.WriteByte('<')
    sb.WriteString(e.Name)

    for _, attr := range e.Attrs {
        sb.WriteByte(' ')
        sb.WriteString(attr.Key)
        sb.WriteByte('=')
        sb.WriteByte(quote)
        escapeInto(sb, attr.Value, quote)
        sb.WriteByte(quote)
    }

    if len(e.Children) == 0 && e.Text == "" {
        sb.WriteString("/>")
        return
    }

    sb.WriteByte('>')
    if e.Text != "" {
        escapeInto(sb, e.Text, 0)
    }
    for _, child := range e.Children {
        child.render(sb, quote)
    }
    sb.WriteString("</")
    sb.WriteString(e.Name)
    sb.WriteByte('>')
}

// escapeInto escapes markup characters; quote is additionally escaped when
// non-zero (attribute context).
func escapeInto(sb *strings.Builder, s string, quote byte) {
    for i := 0; i < len(s); i++ {
        c := s[i]
        switch {
        case c == '&':
            sb.WriteString("&amp;")
        case c == '<':
            sb.WriteString("&lt;")
        case c == '>':
            sb.WriteString("&gt;")
        case c == quote && quote == '"':
            sb.WriteString("&quot;")
        case c == quote && quote == '\'':
            sb.WriteString("&apos;")
        default:
            sb.WriteByte(c)
        }
    }
}
