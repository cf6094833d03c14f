// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package sqlite3

import (
	"bytes"
	"fmt"

	"modernc.org/libc"
)

// MaxParams is the largest number of argument-consuming placeholders
// a command template may contain.
const MaxParams = 256

// minQuoteNullVersion is the first engine version code that supports %Q.
const minQuoteNullVersion = 0x020500

// formatOp is the operation name used in formatter errors.
const formatOp = "format"

// countPlaceholders scans template once and returns the number of
// arguments it consumes.
func countPlaceholders(template []byte, version int) (int, error) {
	n := 0
	for i := 0; i < len(template); i++ {
		if template[i] != '%' {
			continue
		}
		i++
		if i >= len(template) {
			return 0, usageErrorf(formatOp, "bad %% specification in query")
		}
		switch template[i] {
		case '%':
		case 'q', 's':
			n++
		case 'Q':
			if version < minQuoteNullVersion {
				return 0, usageErrorf(formatOp, "bad %% specification in query")
			}
			n++
		default:
			return 0, usageErrorf(formatOp, "bad %% specification in query")
		}
		if n > MaxParams {
			return 0, usageErrorf(formatOp, "too many SQL parameters (limit %d)", MaxParams)
		}
	}
	return n, nil
}

// formatCommand expands template against args. Each non-nil argument is
// transcoded into enc's narrow encoding before substitution. The result is
// a single engine allocation that the caller must free.
func formatCommand(tls *libc.TLS, enc Encoding, version int, template string, args []any) (cbuf, error) {
	tmpl, err := enc.toEngineNarrow(tls, template)
	if err != nil {
		return cbuf{}, err
	}
	defer tmpl.free(tls)
	n, err := countPlaceholders(tmpl.bytes(), version)
	if err != nil {
		return cbuf{}, err
	}
	if len(args) < n {
		return cbuf{}, usageErrorf(formatOp, "query has %d placeholders but only %d arguments", n, len(args))
	}

	argBufs := make([]cbuf, n)
	isNull := make([]bool, n)
	defer func() {
		for i := range argBufs {
			argBufs[i].free(tls)
		}
	}()
	for i := 0; i < n; i++ {
		s, ok := formatArg(args[i])
		if !ok {
			isNull[i] = true
			continue
		}
		argBufs[i], err = enc.toEngineNarrow(tls, s)
		if err != nil {
			return cbuf{}, fmt.Errorf("sqlite3: format: argument %d: %w", i+1, err)
		}
	}

	var out bytes.Buffer
	src := tmpl.bytes()
	next := 0
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c != '%' {
			out.WriteByte(c)
			continue
		}
		i++
		verb := src[i]
		if verb == '%' {
			out.WriteByte('%')
			continue
		}
		arg, null := argBufs[next].bytes(), isNull[next]
		next++
		if null {
			out.WriteString("NULL")
			continue
		}
		switch verb {
		case 's':
			out.Write(arg)
		case 'q':
			writeQuoted(&out, arg)
		case 'Q':
			out.WriteByte('\'')
			writeQuoted(&out, arg)
			out.WriteByte('\'')
		}
	}
	return newCBuf(tls, out.Bytes(), 1)
}

// formatArg converts a formatter argument to text.
// It reports false for a nil argument.
func formatArg(arg any) (string, bool) {
	switch arg := arg.(type) {
	case nil:
		return "", false
	case string:
		return arg, true
	case *string:
		if arg == nil {
			return "", false
		}
		return *arg, true
	case []byte:
		if arg == nil {
			return "", false
		}
		return string(arg), true
	case fmt.Stringer:
		return arg.String(), true
	default:
		return fmt.Sprint(arg), true
	}
}

// writeQuoted writes b with each single quote doubled.
func writeQuoted(out *bytes.Buffer, b []byte) {
	for len(b) > 0 {
		i := bytes.IndexByte(b, '\'')
		if i < 0 {
			out.Write(b)
			return
		}
		out.Write(b[:i+1])
		out.WriteByte('\'')
		b = b[i+1:]
	}
}

// Format expands a command template the same way Exec does and returns the
// resulting SQL. %q and %s consume an argument (%q doubles single quotes),
// %Q also surrounds the argument in single quotes, and %% is a literal
// percent sign. A nil argument is written as NULL.
func (c *Conn) Format(template string, args ...any) (string, error) {
	s, err := c.open("format")
	if err != nil {
		return "", err
	}
	enc := s.enc.narrow()
	buf, err := formatCommand(s.tls, enc, s.version, template, args)
	if err != nil {
		return "", err
	}
	defer buf.free(s.tls)
	return enc.fromEngineNarrow(buf.p, buf.n)
}
