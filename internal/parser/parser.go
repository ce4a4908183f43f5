// Package parser reduces a regulatory XML document to a word count.
//
// Markup is stripped and entities decoded, then every maximal run of
// non-space characters is one word. Only whitespace ends a word: inline
// markup does not, so "(<E>a</E>)" is one word. Comments, processing
// instructions and attribute values are not text.
package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
)

var encodingDecl = regexp.MustCompile(`^\s*<\?xml[^>]*\bencoding\s*=\s*["']([^"']+)["']`)

// CountWords counts the words in doc. Only an empty or non-text payload is
// an error; malformed or truncated markup yields whatever text is
// recoverable. The result depends only on the bytes of doc.
func CountWords(doc []byte) (int64, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return 0, &domain.ParseError{Reason: domain.ErrEmptyDocument, Size: len(doc)}
	}
	if !isText(doc) {
		return 0, &domain.ParseError{Reason: domain.ErrNonText, Size: len(doc)}
	}

	n, err := countXML(doc)
	if err == nil {
		return n, nil
	}
	return countHTML(doc)
}

// isText rejects binary payloads: NUL bytes anywhere, or bytes that are not
// UTF-8 when the prolog declares no other encoding.
func isText(doc []byte) bool {
	if bytes.IndexByte(doc, 0) >= 0 {
		return false
	}
	if utf8.Valid(doc) {
		return true
	}
	return encodingDecl.Match(doc)
}

// countXML streams the document through a lenient decoder. Any decoder
// error makes the caller fall back to the HTML tokenizer, which recovers
// text from documents the XML decoder gives up on.
func countXML(doc []byte) (int64, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel

	var w wordCounter
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			return w.n, nil
		}
		if err != nil {
			return 0, err
		}
		if cd, ok := tok.(xml.CharData); ok {
			w.write(cd)
		}
	}
}

// countHTML parses with the HTML5 algorithm, which never fails, and counts
// words in every text node.
func countHTML(doc []byte) (int64, error) {
	r, err := charset.NewReader(bytes.NewReader(doc), "text/xml")
	if err != nil {
		r = bytes.NewReader(doc)
	}

	gq, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return 0, &domain.ParseError{Reason: err, Size: len(doc)}
	}

	var w wordCounter
	for _, root := range gq.Nodes {
		w.walk(root)
	}
	return w.n, nil
}

// wordCounter counts words across consecutive text chunks. A word left open
// at the end of one chunk continues into the next.
type wordCounter struct {
	n      int64
	inWord bool
}

func (w *wordCounter) write(b []byte) {
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		w.rune(r)
	}
}

func (w *wordCounter) writeString(s string) {
	for _, r := range s {
		w.rune(r)
	}
}

func (w *wordCounter) rune(r rune) {
	if unicode.IsSpace(r) {
		w.inWord = false
		return
	}
	if !w.inWord {
		w.n++
		w.inWord = true
	}
}

// walk feeds text nodes in document order.
func (w *wordCounter) walk(node *html.Node) {
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			w.writeString(c.Data)
		case html.ElementNode, html.DocumentNode:
			w.walk(c)
		default:
		}
	}
}
