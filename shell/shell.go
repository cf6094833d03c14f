// Copyright 2021 Ross Light
// SPDX-License-Identifier: ISC

// Package shell provides a minimal SQLite REPL, similar to the built-in one.
// This is useful for providing a REPL with custom functions.
package shell

import (
	"bufio"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/chzyer/readline"
	"zombiezen.com/go/sqlite3"
)

const (
	prompt             = "sqlite> "
	continuationPrompt = "   ...> "
)

// Printer is a sqlite3.RowObserver that writes rows as pipe-separated
// values, like the sqlite3 CLI's list mode. NULL is written as NullValue.
type Printer struct {
	W io.Writer
	// Headers prints each statement's column names before its rows.
	Headers bool
	// NullValue is the text written for NULL.
	NullValue string
}

// Columns implements sqlite3.RowObserver.
func (p *Printer) Columns(names, declTypes []string) error {
	if !p.Headers {
		return nil
	}
	_, err := fmt.Fprintln(p.W, strings.Join(names, "|"))
	return err
}

// Row implements sqlite3.RowObserver.
func (p *Printer) Row(values []sql.NullString) (bool, error) {
	row := new(strings.Builder)
	for i, v := range values {
		if i > 0 {
			row.WriteString("|")
		}
		if v.Valid {
			row.WriteString(v.String)
		} else {
			row.WriteString(p.NullValue)
		}
	}
	row.WriteString("\n")
	_, err := io.WriteString(p.W, row.String())
	return err == nil, err
}

// Done implements sqlite3.RowObserver.
func (p *Printer) Done() error { return nil }

// Run runs an interactive shell on the process's standard I/O.
func Run(conn *sqlite3.Conn) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt: prompt,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	defer rl.Close()

	if readline.DefaultIsTerminal() {
		fmt.Printf("SQLite version %s\n", sqlite3.Version())
	}
	sh := &session{conn: conn, out: rl.Stdout(), errOut: rl.Stderr()}
	sh.printer = &Printer{W: sh.out}
	for {
		if sh.pending() {
			rl.SetPrompt(continuationPrompt)
		} else {
			rl.SetPrompt(prompt)
		}
		line, err := rl.Readline()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		if !sh.feed(line) {
			return
		}
	}
}

// RunScript runs the statements and dot commands read from r without
// prompting, writing results to w and errors to errOut. Errors do not stop
// the script.
func RunScript(conn *sqlite3.Conn, r io.Reader, w, errOut io.Writer) error {
	sh := &session{conn: conn, out: w, errOut: errOut}
	sh.printer = &Printer{W: w}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if !sh.feed(scanner.Text()) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if sh.pending() {
		sh.run(sh.sql)
	}
	return nil
}

type session struct {
	conn    *sqlite3.Conn
	out     io.Writer
	errOut  io.Writer
	printer *Printer
	sql     string
}

func (sh *session) pending() bool {
	return strings.TrimSpace(sh.sql) != ""
}

// feed consumes one input line. It reports false on ".quit".
func (sh *session) feed(line string) bool {
	if !sh.pending() && strings.HasPrefix(line, ".") {
		return sh.command(line)
	}
	line = strings.TrimLeftFunc(line, unicode.IsSpace)
	if line == "" {
		return true
	}
	sh.sql += line + "\n"
	if strings.Contains(line, ";") && sqlite3.Complete(sh.sql) {
		sh.run(sh.sql)
		sh.sql = ""
	}
	return true
}

func (sh *session) run(query string) {
	if err := sh.conn.Exec(query, sh.printer); err != nil {
		fmt.Fprintln(sh.errOut, err)
	}
}

func (sh *session) command(line string) bool {
	fields := strings.Fields(line)
	switch word := strings.TrimPrefix(fields[0], "."); word {
	case "schema":
		sh.run(`SELECT sql || ';' FROM sqlite_master WHERE sql IS NOT NULL;`)
	case "tables":
		sh.run(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY 1;`)
	case "headers":
		if len(fields) != 2 {
			fmt.Fprintln(sh.errOut, "usage: .headers on|off")
			break
		}
		sh.printer.Headers = fields[1] == "on"
	case "nullvalue":
		if len(fields) != 2 {
			fmt.Fprintln(sh.errOut, "usage: .nullvalue STRING")
			break
		}
		sh.printer.NullValue = fields[1]
	case "version":
		fmt.Fprintf(sh.out, "SQLite %s\n", sqlite3.Version())
	case "quit", "exit":
		return false
	default:
		fmt.Fprintf(sh.errOut, "unknown command .%s\n", word)
	}
	return true
}
