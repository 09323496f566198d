package theme

import (
	"os"
	"strings"
)

type symbolSet struct {
	success, err, warning, bullet, speaker string
}

var (
	unicodeSymbols = symbolSet{"✓", "✗", "⚠", "•", "♪"}
	asciiSymbols   = symbolSet{"[OK]", "[ERR]", "[!]", "*", ">"}
)

// DetectUnicodeSupport reports whether the terminal likely renders Unicode.
// DEVICEPAIR_ASCII_SYMBOLS=1 forces ASCII.
func DetectUnicodeSupport() bool {
	if v := os.Getenv("DEVICEPAIR_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return false
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if val == "c" || val == "posix" {
			return false
		}
		if strings.Contains(val, "utf-8") || strings.Contains(val, "utf8") {
			return true
		}
	}
	return true
}

// InitSymbols selects the symbol set for the current environment.
func InitSymbols() {
	set := unicodeSymbols
	if !DetectUnicodeSupport() {
		set = asciiSymbols
	}
	SymbolSuccess = set.success
	SymbolError = set.err
	SymbolWarning = set.warning
	SymbolBullet = set.bullet
	SymbolSpeaker = set.speaker
}

func init() {
	InitSymbols()
}
