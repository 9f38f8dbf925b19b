package xml

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF16LE = []byte{0xFF, 0xFE}
)

// decodeInput turns the raw bytes of a document or an external entity into
// UTF-8 text. The byte order mark wins over the encoding declared in the XML
// (or text) declaration.
func decodeInput(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return string(data[len(bomUTF8):]), nil
	case bytes.HasPrefix(data, bomUTF16BE):
		return decodeWith(unicode.UTF16(unicode.BigEndian, unicode.UseBOM), data)
	case bytes.HasPrefix(data, bomUTF16LE):
		return decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), data)
	}
	name := declaredEncoding(data)
	if isUTF8(name) {
		return string(data), nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return "", fmt.Errorf("%s: unsupported encoding", name)
	}
	return decodeWith(enc, data)
}

func decodeWith(enc encoding.Encoding, data []byte) (string, error) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func isUTF8(name string) bool {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return true
	default:
		return false
	}
}

// declaredEncoding extracts the value of the encoding pseudo attribute of a
// leading <?xml ...?> declaration without decoding the input.
func declaredEncoding(data []byte) string {
	if !bytes.HasPrefix(data, []byte("<?xml")) {
		return ""
	}
	end := bytes.Index(data, []byte("?>"))
	if end < 0 {
		return ""
	}
	attrs := parsePseudoAttributes(string(data[5:end]))
	return attrs["encoding"]
}

// parsePseudoAttributes parses the name="value" pairs found in XML and text
// declarations and in processing instructions such as xml-stylesheet.
func parsePseudoAttributes(str string) map[string]string {
	attrs := make(map[string]string)
	for {
		str = strings.TrimLeft(str, " \t\r\n")
		name, rest, ok := strings.Cut(str, "=")
		if !ok {
			break
		}
		name = strings.TrimSpace(name)
		rest = strings.TrimLeft(rest, " \t\r\n")
		if rest == "" || (rest[0] != '"' && rest[0] != '\'') {
			break
		}
		end := strings.IndexByte(rest[1:], rest[0])
		if end < 0 {
			break
		}
		attrs[name] = rest[1 : end+1]
		str = rest[end+2:]
	}
	return attrs
}

// encodeOutput wraps w so that text written to it is encoded in the named
// encoding. Characters the encoding can not represent are written as
// character references.
func encodeOutput(w io.Writer, name string) (io.Writer, error) {
	if isUTF8(name) {
		return w, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%s: unsupported encoding", name)
	}
	return encoding.HTMLEscapeUnsupported(enc.NewEncoder()).Writer(w), nil
}
