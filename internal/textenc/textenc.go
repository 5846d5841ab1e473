// Package textenc resolves the character encodings used to decode
// captured command output.
package textenc

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// ErrUnknownEncoding is returned by Lookup for names it cannot resolve.
var ErrUnknownEncoding = errors.New("unknown encoding")

// aliases maps charset spellings common in locale strings to WHATWG labels.
var aliases = map[string]string{
	"eucjp":     "euc-jp",
	"euckr":     "euc-kr",
	"cp932":     "windows-31j",
	"cp936":     "gbk",
	"cp949":     "euc-kr",
	"cp1252":    "windows-1252",
	"iso88591":  "iso-8859-1",
	"iso885915": "iso-8859-15",
}

// Lookup returns the encoding registered under name. An empty name
// resolves to Default.
func Lookup(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Default(), nil
	}
	if enc, err := htmlindex.Get(name); err == nil {
		return enc, nil
	}
	if label, ok := aliases[normalize(name)]; ok {
		if enc, err := htmlindex.Get(label); err == nil {
			return enc, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
}

// Default returns the platform default text encoding, taken from the
// charset part of LC_ALL, LC_CTYPE or LANG (first one set wins). It falls
// back to UTF-8.
func Default() encoding.Encoding {
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		if enc, ok := fromLocale(v); ok {
			return enc
		}
		// The first locale variable that is set decides, even without a
		// charset (e.g. "C").
		break
	}
	return unicode.UTF8
}

// Name returns the canonical name of enc, or "utf-8" for nil.
func Name(enc encoding.Encoding) string {
	if enc == nil {
		return "utf-8"
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return "unknown"
	}
	return name
}

// Decode converts b from enc to UTF-8. Invalid input bytes are replaced
// with U+FFFD. A nil enc means Default.
func Decode(enc encoding.Encoding, b []byte) ([]byte, error) {
	if enc == nil {
		enc = Default()
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", Name(enc), err)
	}
	return out, nil
}

// fromLocale extracts the charset from a locale such as "ja_JP.eucJP@euro".
func fromLocale(locale string) (encoding.Encoding, bool) {
	_, charset, ok := strings.Cut(locale, ".")
	if !ok {
		return nil, false
	}
	charset, _, _ = strings.Cut(charset, "@")
	if strings.TrimSpace(charset) == "" {
		return nil, false
	}
	enc, err := Lookup(charset)
	if err != nil {
		return nil, false
	}
	return enc, true
}

func normalize(name string) string {
	name = strings.ToLower(name)
	return strings.NewReplacer("-", "", "_", "").Replace(name)
}
