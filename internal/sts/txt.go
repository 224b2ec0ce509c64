package sts

import (
	"strings"
	"unicode"
)

// attribute is a single name=value pair of a discovery record.
type attribute struct {
	name  string
	value string
}

// stripSpace removes every whitespace character from s.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// attributes splits a whitespace-free record into its name=value pairs, in order of appearance.
// Tokens without an "=" are dropped. Everything after the first "=" of a token is its value,
// including any further "=".
func attributes(record string) []attribute {
	var attrs []attribute

	for _, token := range strings.Split(record, ";") {
		idx := strings.IndexByte(token, '=')
		if idx < 0 {
			continue
		}

		attrs = append(attrs, attribute{name: token[:idx], value: token[idx+1:]})
	}

	return attrs
}

// parseRecord reads the version flag and id from a discovery record. Names are matched
// case-insensitively and a later occurrence of id overrides an earlier one. A "v" attribute only
// counts when its value is STSv1 in any case; other values are ignored.
func parseRecord(record string) (version bool, id string) {
	for _, attr := range attributes(stripSpace(record)) {
		switch strings.ToLower(attr.name) {
		case "v":
			if strings.EqualFold(attr.value, "stsv1") {
				version = true
			}
		case "id":
			id = attr.value
		}
	}

	return version, id
}
