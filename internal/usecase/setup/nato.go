package setup

import (
	"strings"
	"unicode"
)

var natoAlphabet = map[rune]string{
	'A': "Alpha", 'B': "Bravo", 'C': "Charlie", 'D': "Delta", 'E': "Echo",
	'F': "Foxtrot", 'G': "Golf", 'H': "Hotel", 'I': "India", 'J': "Juliet",
	'K': "Kilo", 'L': "Lima", 'M': "Mike", 'N': "November", 'O': "Oscar",
	'P': "Papa", 'Q': "Quebec", 'R': "Romeo", 'S': "Sierra", 'T': "Tango",
	'U': "Uniform", 'V': "Victor", 'W': "Whiskey", 'X': "X-ray", 'Y': "Yankee",
	'Z': "Zulu",
	'0': "Zero", '1': "One", '2': "Two", '3': "Three", '4': "Four",
	'5': "Five", '6': "Six", '7': "Seven", '8': "Eight", '9': "Nine",
}

// SpellNATO spells code with the NATO phonetic alphabet, one word per
// character joined by ". " and ending with a period. Characters without a
// phonetic word are spoken as themselves.
func SpellNATO(code string) string {
	words := make([]string, 0, len(code))
	for _, r := range code {
		r = unicode.ToUpper(r)
		if w, ok := natoAlphabet[r]; ok {
			words = append(words, w)
		} else if !unicode.IsSpace(r) {
			words = append(words, string(r))
		}
	}
	if len(words) == 0 {
		return ""
	}
	return strings.Join(words, ". ") + "."
}
