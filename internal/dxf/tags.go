package dxf

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// tag is one group code / value pair.
type tag struct {
	code  int
	value string
}

func (t tag) is(code int, value string) bool {
	return t.code == code && strings.EqualFold(strings.TrimSpace(t.value), value)
}

func (t tag) float() float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(t.value), 64)
	return f
}

func (t tag) int() int {
	s := strings.TrimSpace(t.value)
	n, err := strconv.Atoi(s)
	if err != nil {
		f, _ := strconv.ParseFloat(s, 64)
		n = int(f)
	}
	return n
}

func (t tag) text() string {
	return strings.TrimSpace(t.value)
}

// scanTags splits an ASCII DXF body into tags.
func scanTags(data string) ([]tag, error) {
	lines := strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n")
	tags := make([]tag, 0, len(lines)/2)
	for i := 0; i+1 < len(lines); i += 2 {
		codeText := strings.TrimSpace(lines[i])
		if codeText == "" && i+2 >= len(lines) {
			break
		}
		code, err := strconv.Atoi(codeText)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad group code %q", ErrMalformed, i+1, codeText)
		}
		tags = append(tags, tag{code: code, value: strings.TrimRight(lines[i+1], "\r")})
		if code == 0 && strings.TrimSpace(lines[i+1]) == "EOF" {
			break
		}
	}
	return tags, nil
}

// cursor walks a tag slice record by record.
type cursor struct {
	tags []tag
	pos  int
}

func (c *cursor) done() bool { return c.pos >= len(c.tags) }

func (c *cursor) peek() (tag, bool) {
	if c.done() {
		return tag{}, false
	}
	return c.tags[c.pos], true
}

// record consumes a code 0 tag and every following tag up to the next code
// 0, returning the record type and its body.
func (c *cursor) record() (string, []tag) {
	head := c.tags[c.pos]
	c.pos++
	start := c.pos
	for c.pos < len(c.tags) && c.tags[c.pos].code != 0 {
		c.pos++
	}
	return strings.ToUpper(head.text()), c.tags[start:c.pos]
}

// tagWriter emits tags as ASCII DXF.
type tagWriter struct {
	w       io.Writer
	err     error
	handles bool
	seed    int
}

func (tw *tagWriter) put(code int, value string) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.w, "%3d\n%s\n", code, value)
}

func (tw *tagWriter) str(code int, value string) { tw.put(code, value) }

func (tw *tagWriter) num(code int, v float64) {
	tw.put(code, strconv.FormatFloat(v, 'f', -1, 64))
}

func (tw *tagWriter) integer(code, v int) { tw.put(code, strconv.Itoa(v)) }

func (tw *tagWriter) point(code int, x, y float64) {
	tw.num(code, x)
	tw.num(code+10, y)
	tw.num(code+20, 0)
}

// handle emits the next entity handle when handles are enabled.
func (tw *tagWriter) handle() {
	if !tw.handles {
		return
	}
	tw.seed++
	tw.put(5, strings.ToUpper(strconv.FormatInt(int64(tw.seed), 16)))
}
