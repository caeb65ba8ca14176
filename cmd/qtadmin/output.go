package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/pavelanni/qtadmin/internal/model"
)

func (a *app) out() io.Writer { return a.cmd.OutOrStdout() }

func (a *app) wantJSON() bool { return a.v.GetBool("json") }

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func (a *app) println(s string) {
	_, _ = fmt.Fprintln(a.out(), s)
}

// table writes rows under header with aligned columns.
func (a *app) table(header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
	write := func(cols []string) {
		for i, c := range cols {
			if i > 0 {
				_, _ = fmt.Fprint(tw, "\t")
			}
			_, _ = fmt.Fprint(tw, c)
		}
		_, _ = fmt.Fprintln(tw)
	}
	write(header)
	for _, r := range rows {
		write(r)
	}
	return tw.Flush()
}

// failure turns a failed store result into a command error, listing field
// errors in a stable order.
func failure[T any](res model.Result[T]) error {
	if len(res.FieldErrors) == 0 {
		return errors.New(res.Error)
	}
	fields := make([]string, 0, len(res.FieldErrors))
	for f := range res.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	msg := res.Error
	for _, f := range fields {
		msg += "\n  " + f + ": " + res.FieldErrors[f]
	}
	return errors.New(msg)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// readJSON decodes path ("-" for stdin) into v.
func (a *app) readJSON(path string, v any) error {
	var r io.Reader
	if path == "" || path == "-" {
		r = a.cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
