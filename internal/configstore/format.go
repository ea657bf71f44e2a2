package configstore

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// ParseError reports a malformed line in the backing file.
type ParseError struct {
	Line int
	Text string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// Parse reads the INI-style text format:
//
//	[Section]
//	Key = Value
//	  continuation line
//
// Key case and order are kept. Values are stripped; indented lines inside
// a value are joined with \n. Whole-line # and ; comments are skipped.
func Parse(r io.Reader) (*Document, error) {
	doc := NewDocument()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		cur     *Section
		curKey  string
		curVals []string
		lineNo  int
	)

	flush := func() {
		if cur == nil || curKey == "" {
			return
		}
		cur.values[curKey] = strings.TrimRight(strings.Join(curVals, "\n"), " \t\n")
		curKey, curVals = "", nil
	}

	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			if curKey != "" {
				curVals = append(curVals, "")
			}
			continue
		}

		if curKey != "" && (line[0] == ' ' || line[0] == '\t') {
			curVals = append(curVals, trimmed)
			continue
		}

		// Comments inside a multi-line value do not end it.
		if trimmed[0] == '#' || trimmed[0] == ';' {
			continue
		}

		if trimmed[0] == '[' {
			end := strings.LastIndexByte(trimmed, ']')
			if end < 2 {
				return nil, &ParseError{Line: lineNo, Text: line, Msg: "malformed section header"}
			}
			flush()
			name := trimmed[1:end]
			if doc.HasSection(name) {
				return nil, &ParseError{Line: lineNo, Text: line, Msg: "duplicate section"}
			}
			s, err := doc.AddSection(name)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Text: line, Msg: err.Error()}
			}
			cur = s
			continue
		}

		if cur == nil {
			return nil, &ParseError{Line: lineNo, Text: line, Msg: "missing section header"}
		}

		flush()
		idx := strings.IndexAny(trimmed, "=:")
		if idx < 0 {
			return nil, &ParseError{Line: lineNo, Text: line, Msg: "expected key = value"}
		}
		key := strings.TrimSpace(trimmed[:idx])
		if key == "" {
			return nil, &ParseError{Line: lineNo, Text: line, Msg: "empty key"}
		}
		if cur.Has(key) {
			return nil, &ParseError{Line: lineNo, Text: line, Msg: "duplicate key"}
		}
		cur.keys = append(cur.keys, key)
		curKey = key
		curVals = []string{strings.TrimSpace(trimmed[idx+1:])}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	flush()
	return doc, nil
}

// WriteTo serializes d in the backing file format. Every section is
// followed by a blank line, empty values keep the trailing space after the
// delimiter and continuation lines are tab-indented.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	write := func(s string) error {
		m, err := bw.WriteString(s)
		n += int64(m)
		return err
	}

	for _, s := range d.sections {
		if err := write("[" + s.name + "]\n"); err != nil {
			return n, err
		}
		for _, k := range s.keys {
			v := strings.ReplaceAll(s.values[k], "\n", "\n\t")
			if err := write(k + " = " + v + "\n"); err != nil {
				return n, err
			}
		}
		if err := write("\n"); err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// Bytes returns the serialized document.
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	d.WriteTo(&buf)
	return buf.Bytes()
}
