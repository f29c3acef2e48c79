package iac

import (
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// Decoder turns process output into text. It never fails: undecodable
// bytes become U+FFFD.
type Decoder struct {
	enc encoding.Encoding
}

// NewLocaleDecoder returns a decoder for the host locale's preferred encoding,
// taken from LC_ALL, LC_CTYPE or LANG in that order. UTF-8 is the default.
func NewLocaleDecoder() *Decoder {
	return NewDecoder(LocaleCodeset(os.Getenv))
}

// NewDecoder returns a decoder for an IANA charset name. Unknown names fall back to UTF-8.
func NewDecoder(charset string) *Decoder {
	if charset == "" {
		return &Decoder{}
	}
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil || enc == nil || enc == unicode.UTF8 {
		return &Decoder{}
	}
	return &Decoder{enc: enc}
}

// Decode converts raw bytes into a string
func (d *Decoder) Decode(raw []byte) string {
	if d == nil || d.enc == nil {
		return toValidUTF8(raw)
	}
	out, err := d.enc.NewDecoder().Bytes(raw)
	if err != nil {
		return toValidUTF8(raw)
	}
	return toValidUTF8(out)
}

func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// LocaleCodeset extracts the codeset of the effective locale, e.g.
// "ISO-8859-1" from "pt_BR.ISO-8859-1@euro". C and POSIX locales yield "".
func LocaleCodeset(getenv func(string) string) string {
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		value := getenv(key)
		if value == "" {
			continue
		}
		if i := strings.IndexByte(value, '@'); i >= 0 {
			value = value[:i]
		}
		if i := strings.IndexByte(value, '.'); i >= 0 {
			return value[i+1:]
		}
		return ""
	}
	return ""
}
