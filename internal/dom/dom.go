// Package dom wraps an HTML node tree with guarded mutation and
// MutationObserver-style change notification.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed HTML document. All access to the tree must go through
// Read or the mutation methods.
type Document struct {
	mu      sync.RWMutex
	root    *html.Node
	reloads map[*html.Node]int

	omu       sync.Mutex
	observers map[*Observer]struct{}
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return New(root), nil
}

// ParseString is Parse for an in-memory document.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// New wraps an existing document node.
func New(root *html.Node) *Document {
	return &Document{
		root:      root,
		reloads:   make(map[*html.Node]int),
		observers: make(map[*Observer]struct{}),
	}
}

// Read calls fn with the document element under a read lock. fn must not
// call mutation methods.
func (d *Document) Read(fn func(root *html.Node)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(documentElement(d.root))
}

// Render serializes the document.
func (d *Document) Render(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return html.Render(w, d.root)
}

// String renders the document, returning "" on error.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// AppendChild inserts child as the last child of parent.
func (d *Document) AppendChild(parent, child *html.Node) {
	d.mu.Lock()
	parent.AppendChild(child)
	d.mu.Unlock()
	d.emit(MutationRecord{Type: ChildList, Target: parent, AddedNodes: []*html.Node{child}})
}

// RemoveChild detaches child from parent.
func (d *Document) RemoveChild(parent, child *html.Node) {
	d.mu.Lock()
	parent.RemoveChild(child)
	d.mu.Unlock()
	d.emit(MutationRecord{Type: ChildList, Target: parent})
}

// SetAttr sets (or adds) an attribute on n.
func (d *Document) SetAttr(n *html.Node, key, val string) {
	d.mu.Lock()
	setAttr(n, key, val)
	d.mu.Unlock()
	d.emit(MutationRecord{Type: Attributes, Target: n, AttributeName: key})
}

// SetText replaces all children of n with a single text node.
func (d *Document) SetText(n *html.Node, text string) {
	t := &html.Node{Type: html.TextNode, Data: text}
	d.mu.Lock()
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(t)
	d.mu.Unlock()
	d.emit(MutationRecord{Type: ChildList, Target: n, AddedNodes: []*html.Node{t}})
}

// SetData changes the content of a text node in place.
func (d *Document) SetData(n *html.Node, data string) {
	d.mu.Lock()
	n.Data = data
	d.mu.Unlock()
	d.emit(MutationRecord{Type: CharacterData, Target: n})
}

// Reload restarts playback of a media element so it picks up new sources.
func (d *Document) Reload(n *html.Node) {
	d.mu.Lock()
	d.reloads[n]++
	d.mu.Unlock()
}

// ReloadCount reports how many times n was reloaded.
func (d *Document) ReloadCount(n *html.Node) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.reloads[n]
}

// Parent returns the parent of n.
func (d *Document) Parent(n *html.Node) *html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return n.Parent
}

func documentElement(root *html.Node) *html.Node {
	if root.Type != html.DocumentNode {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return root
}

// Attr returns the value of attribute key on n.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// HasElementChildren reports whether n has at least one element child.
func HasElementChildren(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return true
		}
	}
	return false
}

// InnerHTML serializes the children of n.
func InnerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return ""
		}
	}
	return buf.String()
}

// IsMedia reports whether n is an audio or video element.
func IsMedia(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && (n.DataAtom == atom.Video || n.DataAtom == atom.Audio)
}

// Walk visits every element under root (inclusive) in document order.
func Walk(root *html.Node, fn func(n *html.Node)) {
	if root == nil {
		return
	}
	if root.Type == html.ElementNode {
		fn(root)
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// Element builds a detached element node.
func Element(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
}

// Text builds a detached text node.
func Text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// FindByID returns the first element whose id attribute equals id.
func FindByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	Walk(root, func(n *html.Node) {
		if found != nil {
			return
		}
		if v, ok := Attr(n, "id"); ok && v == id {
			found = n
		}
	})
	return found
}
