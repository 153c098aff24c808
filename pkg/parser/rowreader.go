package parser

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

var errUnterminatedQuote = errors.New("unterminated quoted field")

// rowReader splits delimited text into rows with a configurable quote
// character. A field that starts with the quote character is quoted; inside
// it delimiters and newlines are literal and a doubled quote is one quote.
// Quote characters inside an unquoted field are literal.
type rowReader struct {
	r     *bufio.Reader
	delim rune
	quote rune
	// physical line of the next rune, 1-based
	line int
}

func newRowReader(r io.Reader, delim, quote rune) *rowReader {
	return &rowReader{r: bufio.NewReader(r), delim: delim, quote: quote, line: 1}
}

// Read returns the next row and the physical line it started on. A blank line
// yields an empty row. At the end of input it returns io.EOF.
func (rr *rowReader) Read() ([]string, int, error) {
	start := rr.line
	var (
		fields  []string
		field   strings.Builder
		content bool
	)

	for {
		ch, _, err := rr.r.ReadRune()
		if err == io.EOF {
			if !content && len(fields) == 0 {
				return nil, start, io.EOF
			}
			return append(fields, field.String()), start, nil
		}
		if err != nil {
			return nil, start, err
		}

		switch {
		case ch == rr.quote && field.Len() == 0:
			content = true
			if err := rr.readQuoted(&field); err != nil {
				return nil, start, err
			}
		case ch == rr.delim:
			content = true
			fields = append(fields, field.String())
			field.Reset()
		case ch == '\n':
			rr.line++
			if !content {
				return []string{}, start, nil
			}
			return append(fields, field.String()), start, nil
		case ch == '\r':
			if next, _, err := rr.r.ReadRune(); err == nil && next != '\n' {
				_ = rr.r.UnreadRune()
			}
			rr.line++
			if !content {
				return []string{}, start, nil
			}
			return append(fields, field.String()), start, nil
		default:
			content = true
			field.WriteRune(ch)
		}
	}
}

// readQuoted consumes a quoted section after its opening quote. Text after
// the closing quote is appended to the field as in standard CSV readers.
func (rr *rowReader) readQuoted(field *strings.Builder) error {
	for {
		ch, _, err := rr.r.ReadRune()
		if err == io.EOF {
			return errUnterminatedQuote
		}
		if err != nil {
			return err
		}
		if ch == '\n' {
			rr.line++
		}
		if ch != rr.quote {
			field.WriteRune(ch)
			continue
		}

		next, _, err := rr.r.ReadRune()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if next == rr.quote {
			field.WriteRune(rr.quote)
			continue
		}
		return rr.r.UnreadRune()
	}
}
