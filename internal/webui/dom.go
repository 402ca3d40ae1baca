package webui

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attribute names of the page's DOM contract.
const (
	attrExpenseID = "data-expense-id"
	attrField     = "data-field"
	attrRow       = "data-expense-row"
	attrFormatted = "data-formatted"
	attrEditable  = "contenteditable"
	attrSelected  = "selected"
	attrValue     = "value"
	attrName      = "name"
	attrType      = "type"
)

// FieldKey identifies one editable field of one expense.
type FieldKey struct {
	ExpenseID int64
	Field     string
}

func (k FieldKey) String() string {
	return strconv.FormatInt(k.ExpenseID, 10) + "/" + k.Field
}

// Document is a parsed page. It is not safe for concurrent use; the
// PageController owns the live one.
type Document struct {
	root *html.Node
}

// Element wraps one element node of a Document.
type Element struct {
	node *html.Node
}

// ParseDocument parses an HTML page.
func ParseDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Document{root: root}, nil
}

// Render writes the document back out as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

func (d *Document) String() string {
	var buf bytes.Buffer
	_ = d.Render(&buf)
	return buf.String()
}

// ByID returns the element with the given id, or nil.
func (d *Document) ByID(id string) *Element {
	return find(d.root, func(n *html.Node) bool { return attr(n, "id") == id })
}

// ByClass returns every element carrying class, in document order.
func (d *Document) ByClass(class string) []*Element {
	return (&Element{node: d.root}).ByClass(class)
}

// Editable returns every element bound to an expense field.
func (d *Document) Editable() []*Element {
	return findAll(d.root, func(n *html.Node) bool {
		return hasAttr(n, attrExpenseID) && hasAttr(n, attrField)
	})
}

// Row returns the table row of an expense, or nil.
func (d *Document) Row(id int64) *Element {
	want := strconv.FormatInt(id, 10)
	return find(d.root, func(n *html.Node) bool { return attr(n, attrRow) == want })
}

// Rows returns every expense row in document order.
func (d *Document) Rows() []*Element {
	return findAll(d.root, func(n *html.Node) bool { return hasAttr(n, attrRow) })
}

func (e *Element) Tag() string { return e.node.Data }

// Attr returns the value of an attribute and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (e *Element) SetAttr(name, value string) {
	for i, a := range e.node.Attr {
		if a.Key == name {
			e.node.Attr[i].Val = value
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
}

func (e *Element) RemoveAttr(name string) {
	kept := e.node.Attr[:0]
	for _, a := range e.node.Attr {
		if a.Key != name {
			kept = append(kept, a)
		}
	}
	e.node.Attr = kept
}

// HasClass reports whether the element's class list contains class.
func (e *Element) HasClass(class string) bool {
	return hasClass(e.node, class)
}

// ByClass returns the descendants of e carrying class.
func (e *Element) ByClass(class string) []*Element {
	return findAll(e.node, func(n *html.Node) bool { return hasClass(n, class) })
}

// Key returns the field key of an editable element.
func (e *Element) Key() (FieldKey, bool) {
	rawID, ok := e.Attr(attrExpenseID)
	if !ok {
		return FieldKey{}, false
	}
	field, ok := e.Attr(attrField)
	if !ok || field == "" {
		return FieldKey{}, false
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return FieldKey{}, false
	}
	return FieldKey{ExpenseID: id, Field: field}, true
}

// ContentEditable reports whether the element accepts free text input.
func (e *Element) ContentEditable() bool {
	v, ok := e.Attr(attrEditable)
	return ok && (v == "" || strings.EqualFold(v, "true"))
}

func (e *Element) IsSelect() bool { return e.node.DataAtom == atom.Select }

// Text returns the concatenated text content.
func (e *Element) Text() string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.node)
	return b.String()
}

// SetText replaces all children with a single text node.
func (e *Element) SetText(s string) {
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		c = next
	}
	e.node.AppendChild(&html.Node{Type: html.TextNode, Data: s})
}

// Value is the current value of a field element: the selected option of a
// select, the value attribute of an input, the text of anything else.
func (e *Element) Value() string {
	switch e.node.DataAtom {
	case atom.Select:
		return e.selected()
	case atom.Input:
		v, _ := e.Attr(attrValue)
		return v
	}
	return e.Text()
}

// SetValue is the inverse of Value. Selecting a value that has no option
// reports false and leaves the select unchanged.
func (e *Element) SetValue(v string) bool {
	switch e.node.DataAtom {
	case atom.Select:
		return e.selectOption(v)
	case atom.Input:
		e.SetAttr(attrValue, v)
		return true
	}
	e.SetText(v)
	return true
}

func (e *Element) options() []*Element {
	return findAll(e.node, func(n *html.Node) bool { return n.DataAtom == atom.Option })
}

func optionValue(o *Element) string {
	if v, ok := o.Attr(attrValue); ok {
		return v
	}
	return strings.TrimSpace(o.Text())
}

func (e *Element) selected() string {
	opts := e.options()
	for _, o := range opts {
		if _, ok := o.Attr(attrSelected); ok {
			return optionValue(o)
		}
	}
	if len(opts) > 0 {
		return optionValue(opts[0])
	}
	return ""
}

func (e *Element) selectOption(v string) bool {
	opts := e.options()
	var match *Element
	for _, o := range opts {
		if optionValue(o) == v {
			match = o
			break
		}
	}
	if match == nil {
		return false
	}
	for _, o := range opts {
		o.RemoveAttr(attrSelected)
	}
	match.SetAttr(attrSelected, "")
	return true
}

// formControls returns the named controls of a form in document order.
func (e *Element) formControls() []*Element {
	return findAll(e.node, func(n *html.Node) bool {
		switch n.DataAtom {
		case atom.Input, atom.Select, atom.Textarea:
			return attr(n, attrName) != ""
		}
		return false
	})
}

// FormValues collects the successful controls of a form element.
func (e *Element) FormValues() url.Values {
	out := url.Values{}
	for _, c := range e.formControls() {
		if c.node.DataAtom == atom.Input {
			switch strings.ToLower(attr(c.node, attrType)) {
			case "submit", "button", "reset", "image", "file":
				continue
			}
		}
		name, _ := c.Attr(attrName)
		out.Add(name, c.Value())
	}
	return out
}

// SetFormValue sets the control called name. It reports false when the
// form has no such control or the value is not a valid option.
func (e *Element) SetFormValue(name, value string) bool {
	for _, c := range e.formControls() {
		if n, _ := c.Attr(attrName); n == name {
			return c.SetValue(value)
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func find(root *html.Node, match func(*html.Node) bool) *Element {
	var found *html.Node
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && match(n) {
			found = n
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	if walk(root) {
		return &Element{node: found}
	}
	return nil
}

func findAll(root *html.Node, match func(*html.Node) bool) []*Element {
	var out []*Element
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n != root && n.Type == html.ElementNode && match(n) {
			out = append(out, &Element{node: n})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}
