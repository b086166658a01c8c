package ics

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// DefaultCharset is what the university feeds are served in, regardless of
// what their Content-Type claims.
const DefaultCharset = "ISO-8859-1"

// Decoder converts fetched feed bytes to text. Bytes that are invalid in the
// charset become U+FFFD instead of failing.
type Decoder struct {
	charset string
	enc     encoding.Encoding
}

func NewDecoder(charset string) (*Decoder, error) {
	if strings.TrimSpace(charset) == "" {
		charset = DefaultCharset
	}

	var enc encoding.Encoding
	switch strings.ToUpper(charset) {
	case "ISO-8859-1", "LATIN1":
		enc = charmap.ISO8859_1
	case "UTF-8", "UTF8":
		enc = unicode.UTF8
	default:
		var err error
		enc, err = ianaindex.IANA.Encoding(charset)
		if err != nil {
			return nil, fmt.Errorf("charset %q: %w", charset, err)
		}
		if enc == nil {
			return nil, fmt.Errorf("charset %q is not supported", charset)
		}
	}
	return &Decoder{charset: charset, enc: enc}, nil
}

func (d *Decoder) Charset() string {
	return d.charset
}

func (d *Decoder) Decode(body []byte) string {
	out, err := d.enc.NewDecoder().Bytes(body)
	if err != nil {
		// Single-byte charmaps and UTF-8 never fail; other encodings may.
		return strings.ToValidUTF8(string(body), "�")
	}
	return string(out)
}
