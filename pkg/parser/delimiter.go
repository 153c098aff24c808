package parser

import (
	"path"
	"strings"
	"unicode/utf8"

	"github.com/datazip-inc/filetap/constants"
	"github.com/datazip-inc/filetap/pkg/errs"
)

// extensionDelimiters is the single lookup table used when the delimiter is detect.
var extensionDelimiters = map[string]rune{
	".csv": ',',
	".tsv": '\t',
}

// ResolveDelimiter returns the configured delimiter, or under detect the one
// implied by the decoded file name.
func ResolveDelimiter(configured, name string) (rune, error) {
	if configured == "" || configured == constants.DetectValue {
		if d, ok := extensionDelimiters[strings.ToLower(path.Ext(name))]; ok {
			return d, nil
		}
		return 0, errs.New(errs.UnsupportedDelimiter,
			"cannot detect a delimiter for extension %q, set 'delimiter' explicitly", path.Ext(name)).WithFile(name, 0)
	}

	d, err := singleRune("delimiter", configured)
	if err != nil {
		return 0, err
	}
	return d, nil
}

// singleRune parses an option that must hold exactly one character. The
// escaped form "\t" is accepted for tab.
func singleRune(option, value string) (rune, error) {
	if value == `\t` {
		return '\t', nil
	}
	if utf8.RuneCountInString(value) != 1 {
		return 0, errs.New(errs.Configuration, "'%s' must be a single character, got %q", option, value)
	}
	r, _ := utf8.DecodeRuneInString(value)
	if r == '\n' || r == '\r' || r == utf8.RuneError {
		return 0, errs.New(errs.Configuration, "'%s' cannot be %q", option, value)
	}
	return r, nil
}
