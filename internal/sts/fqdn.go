package sts

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/idna"
)

var (
	errTrailingDot = errors.New("fqdn: trailing dot")
	errSingleLabel = errors.New("fqdn: missing top-level label")
	errTopLevel    = errors.New("fqdn: top-level label must be alphabetic")
)

// toASCII validates host as a fully-qualified domain name and returns its A-label form. Labels
// may be ASCII or Unicode, but only in canonical form: code points that IDNA mapping would rewrite
// or drop, such as full-width letters, spaces, and invisible characters, are rejected.
func toASCII(host string) (string, error) {
	if strings.HasSuffix(host, ".") {
		return "", errTrailingDot
	}

	ascii, err := idna.Registration.ToASCII(strings.ToLower(host))
	if err != nil {
		return "", fmt.Errorf("fqdn: invalid domain: host=%q err=%w", host, err)
	}

	i := strings.LastIndexByte(ascii, '.')
	if i < 0 {
		return "", errSingleLabel
	}

	if tld := ascii[i+1:]; !strings.HasPrefix(tld, "xn--") && !isAlpha(tld) {
		return "", errTopLevel
	}

	return ascii, nil
}

// IsFQDN reports whether host is a fully-qualified domain name: at least two labels, an alphabetic
// (or internationalized) top-level label, and no underscores, no trailing dot, and no empty labels.
func IsFQDN(host string) bool {
	_, err := toASCII(host)
	return err == nil
}

// isAlpha reports whether label has at least two characters, all ASCII letters.
func isAlpha(label string) bool {
	if len(label) < 2 {
		return false
	}

	for _, r := range label {
		if r < 'a' || r > 'z' {
			return false
		}
	}

	return true
}
