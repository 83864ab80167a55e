package bpmn

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
)

// element is a lossless XML element. name.Space holds the raw prefix as
// written in the source; uri holds the resolved namespace.
type element struct {
	name     xml.Name
	uri      string
	attrs    []xml.Attr
	children []any // *element, xml.CharData, xml.Comment, xml.ProcInst, xml.Directive
	parent   *element
	scope    map[string]string // prefix -> namespace visible at this element
}

// tree is a parsed XML document: prolog tokens plus the root element.
type tree struct {
	prolog []any
	root   *element
}

func parseTree(r io.Reader) (*tree, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true

	t := &tree{}
	var stack []*element
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch tk := tok.(type) {
		case xml.StartElement:
			var parentScope map[string]string
			var parent *element
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
				parentScope = parent.scope
			}
			el := &element{
				name:   tk.Name,
				attrs:  append([]xml.Attr(nil), tk.Attr...),
				parent: parent,
				scope:  extendScope(parentScope, tk.Attr),
			}
			el.uri = el.scope[tk.Name.Space]
			if parent != nil {
				parent.children = append(parent.children, el)
			} else if t.root == nil {
				t.root = el
			} else {
				return nil, fmt.Errorf("multiple root elements")
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unexpected end element %s", tk.Name.Local)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			appendToken(t, stack, tk.Copy())
		case xml.Comment:
			appendToken(t, stack, tk.Copy())
		case xml.ProcInst:
			appendToken(t, stack, tk.Copy())
		case xml.Directive:
			appendToken(t, stack, tk.Copy())
		}
	}
	if t.root == nil {
		return nil, fmt.Errorf("empty document")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unclosed element %s", stack[len(stack)-1].name.Local)
	}
	return t, nil
}

func appendToken(t *tree, stack []*element, tok any) {
	if len(stack) == 0 {
		if t.root == nil {
			t.prolog = append(t.prolog, tok)
		}
		return
	}
	parent := stack[len(stack)-1]
	parent.children = append(parent.children, tok)
}

func extendScope(parent map[string]string, attrs []xml.Attr) map[string]string {
	var scope map[string]string
	for _, a := range attrs {
		prefix, ok := "", false
		switch {
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			ok = true
		case a.Name.Space == "xmlns":
			prefix, ok = a.Name.Local, true
		}
		if !ok {
			continue
		}
		if scope == nil {
			scope = make(map[string]string, len(parent)+1)
			for k, v := range parent {
				scope[k] = v
			}
		}
		scope[prefix] = a.Value
	}
	if scope == nil {
		return parent
	}
	return scope
}

// prefixFor returns the prefix bound to uri at el, if any. When several
// prefixes are bound the lexically smallest wins.
func (el *element) prefixFor(uri string) (string, bool) {
	var matches []string
	for p, u := range el.scope {
		if u == uri {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}

func (el *element) is(uri, local string) bool {
	return el.uri == uri && el.name.Local == local
}

func (el *element) attr(local string) string {
	for _, a := range el.attrs {
		if a.Name.Space == "" && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func (el *element) setAttr(space, local, value string) {
	for i, a := range el.attrs {
		if a.Name.Space == space && a.Name.Local == local {
			el.attrs[i].Value = value
			return
		}
	}
	el.attrs = append(el.attrs, xml.Attr{Name: xml.Name{Space: space, Local: local}, Value: value})
}

func (el *element) removeAttr(space, local string) {
	out := el.attrs[:0]
	for _, a := range el.attrs {
		if a.Name.Space == space && a.Name.Local == local {
			continue
		}
		out = append(out, a)
	}
	el.attrs = out
}

func (el *element) elements() []*element {
	var out []*element
	for _, c := range el.children {
		if ce, ok := c.(*element); ok {
			out = append(out, ce)
		}
	}
	return out
}

func (el *element) child(uri, local string) *element {
	for _, c := range el.elements() {
		if c.is(uri, local) {
			return c
		}
	}
	return nil
}

func (el *element) text() string {
	var b strings.Builder
	for _, c := range el.children {
		if cd, ok := c.(xml.CharData); ok {
			b.Write(cd)
		}
	}
	return b.String()
}

func (el *element) setText(s string) {
	kept := el.children[:0]
	for _, c := range el.children {
		if _, ok := c.(xml.CharData); ok {
			continue
		}
		kept = append(kept, c)
	}
	el.children = append(kept, xml.CharData(s))
}

func (el *element) removeChild(target *element) {
	out := el.children[:0]
	for _, c := range el.children {
		if c == any(target) {
			continue
		}
		out = append(out, c)
	}
	el.children = out
}

// newChild creates an element in namespace uri. It is inserted after the
// last child element whose local name is in after; when none match it
// becomes the first child element. Without after it is appended.
func (el *element) newChild(uri, local string, after ...string) *element {
	prefix, _ := el.prefixFor(uri)
	child := &element{
		name:   xml.Name{Space: prefix, Local: local},
		uri:    uri,
		parent: el,
		scope:  el.scope,
	}
	if len(after) == 0 {
		el.children = append(el.children, child)
		return child
	}
	pos := -1
	firstElement := -1
	for i, c := range el.children {
		ce, ok := c.(*element)
		if !ok {
			continue
		}
		if firstElement < 0 {
			firstElement = i
		}
		if slices.Contains(after, ce.name.Local) {
			pos = i + 1
		}
	}
	if pos < 0 {
		pos = firstElement
	}
	if pos < 0 {
		el.children = append(el.children, child)
		return child
	}
	el.children = slices.Insert(el.children, pos, any(child))
	return child
}

// declare binds a prefix for uri on the root element when none is visible
// and returns the prefix to use.
func (el *element) declare(prefix, uri string) string {
	if p, ok := el.prefixFor(uri); ok {
		return p
	}
	candidate := prefix
	for i := 2; ; i++ {
		if _, taken := el.scope[candidate]; !taken {
			break
		}
		candidate = fmt.Sprintf("%s%d", prefix, i)
	}
	el.setAttr("xmlns", candidate, uri)
	bindPrefix(el, candidate, uri)
	return candidate
}

func bindPrefix(el *element, prefix, uri string) {
	if _, taken := el.scope[prefix]; taken && el.parent != nil {
		return
	}
	scope := make(map[string]string, len(el.scope)+1)
	for k, v := range el.scope {
		scope[k] = v
	}
	scope[prefix] = uri
	el.scope = scope
	for _, c := range el.elements() {
		bindPrefix(c, prefix, uri)
	}
}

func (t *tree) write(w io.Writer) error {
	var buf bytes.Buffer
	for _, tok := range t.prolog {
		writeToken(&buf, tok)
	}
	writeElement(&buf, t.root)
	_, err := w.Write(buf.Bytes())
	return err
}

func writeToken(buf *bytes.Buffer, tok any) {
	switch tk := tok.(type) {
	case *element:
		writeElement(buf, tk)
	case xml.CharData:
		buf.WriteString(textEscaper.Replace(string(tk)))
	case xml.Comment:
		buf.WriteString("<!--")
		buf.Write(tk)
		buf.WriteString("-->")
	case xml.ProcInst:
		buf.WriteString("<?")
		buf.WriteString(tk.Target)
		if len(tk.Inst) > 0 {
			buf.WriteByte(' ')
			buf.Write(tk.Inst)
		}
		buf.WriteString("?>")
	case xml.Directive:
		buf.WriteString("<!")
		buf.Write(tk)
		buf.WriteString(">")
	}
}

func writeElement(buf *bytes.Buffer, el *element) {
	buf.WriteByte('<')
	writeName(buf, el.name)
	for _, a := range el.attrs {
		buf.WriteByte(' ')
		writeName(buf, a.Name)
		buf.WriteString(`="`)
		writeAttrValue(buf, a.Value)
		buf.WriteByte('"')
	}
	if len(el.children) == 0 {
		buf.WriteString("/>")
		return
	}
	buf.WriteByte('>')
	for _, c := range el.children {
		writeToken(buf, c)
	}
	buf.WriteString("</")
	writeName(buf, el.name)
	buf.WriteByte('>')
}

func writeName(buf *bytes.Buffer, n xml.Name) {
	if n.Space != "" {
		buf.WriteString(n.Space)
		buf.WriteByte(':')
	}
	buf.WriteString(n.Local)
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"\n", "&#10;",
	"\t", "&#9;",
	"\r", "&#13;",
)

func writeAttrValue(buf *bytes.Buffer, v string) {
	buf.WriteString(attrEscaper.Replace(v))
}
