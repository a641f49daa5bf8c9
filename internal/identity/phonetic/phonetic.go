// Package phonetic computes the indexed pre-filter key and the ranking
// distance used for duplicate-beneficiary matching.
package phonetic

import (
	"strings"

	"github.com/agnivade/levenshtein"

	pstrings "benefits/pkg/platform/strings"
)

// soundexCodes maps A..Z to American Soundex digits. '0' marks vowels (and Y),
// which separate equal codes; '-' marks H and W, which do not.
const soundexCodes = "01230120022455012623010202"

// Soundex returns the four-character American Soundex code of name. Letters
// outside A-Z are ignored, so "De la Cruz" and "DELACRUZ" encode the same.
// A name with no letters encodes to "".
func Soundex(name string) string {
	var letters []byte
	for _, r := range strings.ToUpper(name) {
		if r >= 'A' && r <= 'Z' {
			letters = append(letters, byte(r))
		}
	}
	if len(letters) == 0 {
		return ""
	}

	out := []byte{letters[0]}
	prev := code(letters[0])
	for _, c := range letters[1:] {
		if len(out) == 4 {
			break
		}
		d := code(c)
		switch {
		case d == '-':
			continue
		case d == '0':
			prev = '0'
		case d != prev:
			out = append(out, d)
			prev = d
		}
	}
	for len(out) < 4 {
		out = append(out, '0')
	}
	return string(out)
}

func code(c byte) byte {
	if c == 'H' || c == 'W' {
		return '-'
	}
	return soundexCodes[c-'A']
}

// Distance is the Levenshtein distance between the normalized "first last"
// forms of two names.
func Distance(firstA, lastA, firstB, lastB string) int {
	return levenshtein.ComputeDistance(pstrings.FullName(firstA, lastA), pstrings.FullName(firstB, lastB))
}
