package xmldoc

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

var (
	// ErrMalformed is returned when raw text cannot be parsed as XML.
	ErrMalformed = errors.New("malformed XML document")
	// ErrPathNotFound is returned when a path does not resolve to an element.
	ErrPathNotFound = errors.New("path not found")
)

// procInst matches XML processing instructions, including the declaration.
// The remote protocol embeds documents within documents, where inner
// declarations are illegal, so every document is stripped before parsing.
var procInst = regexp.MustCompile(`(?s)<\?.*?\?>`)

// CodeMessage is one (code, message) pair extracted from an error or
// observation container.
type CodeMessage struct {
	Code int
	Msg  string
}

// Document is an XML tree with a fixed prefix-to-URI binding table.
type Document struct {
	doc *etree.Document
	ns  map[string]string
}

// Parse builds a Document from raw XML text. Processing instructions are
// stripped first; the remainder must be well-formed.
func Parse(raw string, ns map[string]string) (*Document, error) {
	cleaned := procInst.ReplaceAllString(raw, "")
	doc := etree.NewDocument()
	if err := doc.ReadFromString(cleaned); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformed)
	}
	return &Document{doc: doc, ns: cloneBindings(ns)}, nil
}

// New builds an empty Document with the given root tag, which may carry a
// namespace prefix ("soapenv:Envelope"). Every binding in ns is declared as an
// xmlns attribute on the root, in sorted prefix order so serialization is
// byte-reproducible.
func New(root string, ns map[string]string) *Document {
	doc := etree.NewDocument()
	elem := doc.CreateElement(root)
	declareBindings(elem, ns)
	return &Document{doc: doc, ns: cloneBindings(ns)}
}

func cloneBindings(ns map[string]string) map[string]string {
	out := make(map[string]string, len(ns))
	for prefix, uri := range ns {
		out[prefix] = uri
	}
	return out
}

func declareBindings(elem *etree.Element, ns map[string]string) {
	prefixes := make([]string, 0, len(ns))
	for prefix := range ns {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		elem.CreateAttr("xmlns:"+prefix, ns[prefix])
	}
}

// AddElement appends a new empty element under the parent selected by path.
// An empty parent path appends under the root.
func (d *Document) AddElement(parent, name string) error {
	_, err := d.addElement(parent, name)
	return err
}

// AddElementText appends a new element with the given text content.
func (d *Document) AddElementText(parent, name, text string) error {
	elem, err := d.addElement(parent, name)
	if err != nil {
		return err
	}
	elem.SetText(text)
	return nil
}

func (d *Document) addElement(parent, name string) (*etree.Element, error) {
	parentElem, err := d.resolveParent(parent)
	if err != nil {
		return nil, err
	}
	elem := etree.NewElement(name)
	parentElem.AddChild(elem)
	return elem, nil
}

// AddFragment parses raw XML (processing instructions stripped) and appends
// its root under the parent selected by path. Used to splice independently
// built sub-documents into a larger envelope.
func (d *Document) AddFragment(parent, raw string) error {
	parentElem, err := d.resolveParent(parent)
	if err != nil {
		return err
	}
	fragment := etree.NewDocument()
	if err := fragment.ReadFromString(procInst.ReplaceAllString(raw, "")); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	root := fragment.Root()
	if root == nil {
		return fmt.Errorf("%w: fragment has no root element", ErrMalformed)
	}
	parentElem.AddChild(root.Copy())
	return nil
}

// SetText replaces the text content of the first element matching path.
func (d *Document) SetText(path, text string) error {
	elem := d.first(path)
	if elem == nil {
		return fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	elem.SetText(text)
	return nil
}

// Has reports whether at least one element matches path.
func (d *Document) Has(path string) bool {
	return d.first(path) != nil
}

// Text returns the text of the first element matching path. The second value
// is false when nothing matches.
func (d *Document) Text(path string) (string, bool) {
	elem := d.first(path)
	if elem == nil {
		return "", false
	}
	return elem.Text(), true
}

// TextAll returns the text of every element matching path, in document order.
func (d *Document) TextAll(path string) []string {
	matches := d.findAll(path)
	out := make([]string, len(matches))
	for i, elem := range matches {
		out[i] = elem.Text()
	}
	return out
}

// Count returns the number of elements matching path.
func (d *Document) Count(path string) int {
	return len(d.findAll(path))
}

// Extract returns the index-th element matching path as its own freestanding
// Document, carrying the same namespace bindings. The element is serialized
// and re-parsed so the sub-document is fully independent of this tree.
func (d *Document) Extract(path string, index int) (*Document, error) {
	matches := d.findAll(path)
	if index < 0 || index >= len(matches) {
		return nil, fmt.Errorf("%w: %s[%d]", ErrPathNotFound, path, index)
	}

	elem := matches[index]
	copied := elem.Copy()
	// The element leaves the scope of its ancestors' xmlns declarations, so
	// every prefix the subtree actually uses must be re-declared on the new
	// root, resolved against the original tree. The document's own bindings
	// are declared first so real in-scope bindings win on a prefix clash.
	declareBindings(copied, d.ns)
	for prefix, uri := range effectiveBindings(elem) {
		if prefix == "" {
			copied.CreateAttr("xmlns", uri)
		} else {
			copied.CreateAttr("xmlns:"+prefix, uri)
		}
	}

	sub := etree.NewDocument()
	sub.AddChild(copied)
	raw, err := sub.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Parse(raw, d.ns)
}

// CodeMessages returns the ordered (Code, Msg) pairs of every item element
// under the first container matching container. An absent container yields an
// empty result, not an error: the protocol omits the section entirely when
// there is nothing to report.
func (d *Document) CodeMessages(container, item string) ([]CodeMessage, error) {
	parent := d.first(container)
	if parent == nil {
		return nil, nil
	}
	var out []CodeMessage
	for _, entry := range d.findFrom(parent, splitPath(item)) {
		code := childText(entry, "Code")
		msg := childText(entry, "Msg")
		n, err := strconv.Atoi(strings.TrimSpace(code))
		if err != nil {
			return nil, fmt.Errorf("%w: non-numeric code %q under %s", ErrMalformed, code, container)
		}
		out = append(out, CodeMessage{Code: n, Msg: msg})
	}
	return out, nil
}

// String serializes the document without an XML declaration.
func (d *Document) String() string {
	raw, _ := d.doc.WriteToString()
	return raw
}

// StringWithDeclaration serializes the document with a UTF-8 declaration
// header, as the transport envelopes require.
func (d *Document) StringWithDeclaration() string {
	return `<?xml version="1.0" encoding="UTF-8"?>` + d.String()
}

// path resolution

func (d *Document) resolveParent(parent string) (*etree.Element, error) {
	if parent == "" {
		return d.doc.Root(), nil
	}
	elem := d.first(parent)
	if elem == nil {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, parent)
	}
	return elem, nil
}

func (d *Document) first(path string) *etree.Element {
	matches := d.findAll(path)
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

func (d *Document) findAll(path string) []*etree.Element {
	segments := splitPath(path)
	if len(segments) == 0 {
		return []*etree.Element{d.doc.Root()}
	}
	return d.findFrom(d.doc.Root(), segments)
}

func (d *Document) findFrom(context *etree.Element, segments []string) []*etree.Element {
	if context == nil || len(segments) == 0 {
		return nil
	}
	matches := d.descendants(context, segments[0])
	if len(segments) == 1 {
		return matches
	}
	var out []*etree.Element
	for _, match := range matches {
		out = append(out, d.findFrom(match, segments[1:])...)
	}
	return out
}

// descendants collects every descendant of context matching one path segment,
// in document order.
func (d *Document) descendants(context *etree.Element, segment string) []*etree.Element {
	local := segment
	uri := ""
	qualified := false
	if i := strings.IndexByte(segment, ':'); i >= 0 {
		qualified = true
		uri = d.ns[segment[:i]]
		local = segment[i+1:]
	}

	var out []*etree.Element
	var walk func(elem *etree.Element)
	walk = func(elem *etree.Element) {
		for _, child := range elem.ChildElements() {
			if child.Tag == local {
				if !qualified || child.NamespaceURI() == uri {
					out = append(out, child)
				}
			}
			walk(child)
		}
	}
	walk(context)
	return out
}

// effectiveBindings maps every namespace prefix used in the subtree rooted at
// elem (the empty prefix for default-namespace elements) to the URI it
// resolves to in the original tree. Unresolvable prefixes are skipped.
func effectiveBindings(elem *etree.Element) map[string]string {
	out := make(map[string]string)
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		if _, seen := out[e.Space]; !seen {
			if uri := e.NamespaceURI(); uri != "" {
				out[e.Space] = uri
			}
		}
		for _, child := range e.ChildElements() {
			walk(child)
		}
	}
	walk(elem)
	return out
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// childText returns the text of the first descendant with the given local
// name, ignoring namespaces.
func childText(elem *etree.Element, local string) string {
	var found string
	var walk func(e *etree.Element) bool
	walk = func(e *etree.Element) bool {
		for _, child := range e.ChildElements() {
			if child.Tag == local {
				found = child.Text()
				return true
			}
			if walk(child) {
				return true
			}
		}
		return false
	}
	walk(elem)
	return found
}
