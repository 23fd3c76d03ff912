package services

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// EncodeWechatXML renders a flat parameter map as <xml><k><![CDATA[v]]></k>...</xml>, keys sorted
func EncodeWechatXML(params map[string]string) []byte {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b bytes.Buffer
	b.WriteString("<xml>")
	for _, k := range keys {
		b.WriteString("<" + k + "><![CDATA[")
		b.WriteString(strings.ReplaceAll(params[k], "]]>", "]]]]><![CDATA[>"))
		b.WriteString("]]></" + k + ">")
	}
	b.WriteString("</xml>")
	return b.Bytes()
}

// DecodeWechatXML parses a flat <xml> document into a map. Field values are kept byte for
// byte. Nested elements, repeated keys and trailing content are rejected rather than guessed at.
func DecodeWechatXML(body []byte) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	out := make(map[string]string)

	var (
		depth   int
		current string
		value   strings.Builder
		closed  bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if closed {
				return nil, fmt.Errorf("%w: content after root element", ErrMalformedPayload)
			}
			depth++
			switch depth {
			case 1:
				// root, name is not significant
			case 2:
				current = t.Name.Local
				value.Reset()
				if _, dup := out[current]; dup {
					return nil, fmt.Errorf("%w: repeated field %s", ErrMalformedPayload, current)
				}
			default:
				return nil, fmt.Errorf("%w: nested element %s", ErrMalformedPayload, t.Name.Local)
			}
		case xml.CharData:
			// whitespace between fields sits at depth 1; field text is signed as sent
			if depth == 2 {
				value.Write(t)
			}
		case xml.EndElement:
			if depth == 2 {
				out[current] = value.String()
			}
			depth--
			if depth == 0 {
				closed = true
			}
		}
	}

	if !closed {
		return nil, fmt.Errorf("%w: missing root element", ErrMalformedPayload)
	}
	return out, nil
}
