// Package scanner finds encrypted content in an HTML tree: PGP-armored text
// blocks and references to encrypted files.
package scanner

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/starford/decryptor/internal/dom"
)

// Kind distinguishes the two candidate types.
type Kind int

const (
	KindText Kind = iota
	KindFile
)

func (k Kind) String() string {
	if k == KindFile {
		return "file"
	}
	return "text"
}

const (
	// LocatorAttr is the attribute that references an encrypted file.
	LocatorAttr = "src"

	armorHeader = "-----BEGIN PGP MESSAGE-----"
)

var (
	armoredRe = regexp.MustCompile(`^-----BEGIN PGP MESSAGE-----[A-Za-z0-9/+=\r\n]+-----END PGP MESSAGE-----$`)

	// FileSuffixes are the recognised encrypted-file extensions.
	FileSuffixes = []string{".gpg", ".asc"}
)

// Candidate is an element that needs decryption.
type Candidate struct {
	Node *html.Node
	Kind Kind
	// Content is the trimmed armored block for KindText.
	Content string
	// Locator is the raw src attribute for KindFile.
	Locator string
}

// Scan walks root in document order and returns every candidate under it
// (root included). It does not modify the tree.
func Scan(root *html.Node) []Candidate {
	var out []Candidate
	dom.Walk(root, func(n *html.Node) {
		if loc, ok := dom.Attr(n, LocatorAttr); ok && IsEncryptedFile(loc) {
			out = append(out, Candidate{Node: n, Kind: KindFile, Locator: loc})
		}
		if dom.HasElementChildren(n) {
			return
		}
		text := strings.TrimSpace(dom.InnerHTML(n))
		if IsArmored(text) {
			out = append(out, Candidate{Node: n, Kind: KindText, Content: text})
		}
	})
	return out
}

// IsEncryptedFile reports whether locator ends in a recognised suffix.
func IsEncryptedFile(locator string) bool {
	l := strings.ToLower(locator)
	for _, s := range FileSuffixes {
		if strings.HasSuffix(l, s) {
			return true
		}
	}
	return false
}

// IsArmored reports whether text is exactly one armored PGP message.
func IsArmored(text string) bool {
	return strings.HasPrefix(text, armorHeader) && armoredRe.MatchString(text)
}
