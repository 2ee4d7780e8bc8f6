package backend

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Response terminators the Knot Resolver control socket emits.
const (
	blankLine  = "\n"
	promptLine = "> \n"
)

// ResponseReader reads framed responses from a control socket. A response is
// any number of lines ending with a blank line or a bare prompt line; the
// terminator is included in the returned text.
type ResponseReader struct {
	r *bufio.Reader
}

// NewResponseReader wraps r. A *bufio.Reader is used as is.
func NewResponseReader(r io.Reader) *ResponseReader {
	if br, ok := r.(*bufio.Reader); ok {
		return &ResponseReader{r: br}
	}
	return &ResponseReader{r: bufio.NewReader(r)}
}

// ReadResponse accumulates lines until a terminator. Running out of input
// before the terminator is io.ErrUnexpectedEOF; the partial text is still
// returned.
func (rr *ResponseReader) ReadResponse() (string, error) {
	var b strings.Builder
	for {
		line, err := rr.r.ReadString('\n')
		b.WriteString(line)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return b.String(), io.ErrUnexpectedEOF
			}
			return b.String(), err
		}
		if line == blankLine || line == promptLine {
			return b.String(), nil
		}
	}
}
