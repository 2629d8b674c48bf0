package output

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"
)

// TextFormatter writes human-readable text. A *Table renders as columns,
// a struct as aligned "field: value" lines, a slice of structs as a table
// and anything else as indented JSON.
type TextFormatter struct {
	NoHeaders bool
}

// Format implements Formatter.
func (f *TextFormatter) Format(w io.Writer, data any) error {
	if data == nil {
		return nil
	}
	switch d := data.(type) {
	case *Table:
		return d.render(w, f.NoHeaders)
	case string:
		_, err := fmt.Fprintln(w, d)
		return err
	}

	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	switch {
	case v.Kind() == reflect.Struct:
		return structTable(v).render(w, true)
	case v.Kind() == reflect.Slice && elemKind(v.Type()) == reflect.Struct:
		return sliceTable(v).render(w, f.NoHeaders)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func elemKind(t reflect.Type) reflect.Kind {
	t = t.Elem()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind()
}

type column struct {
	name  string
	index int
}

func columns(t reflect.Type) []column {
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || field.Tag.Get("text") == "-" {
			continue
		}
		name := field.Name
		if tag, _, _ := strings.Cut(field.Tag.Get("json"), ","); tag == "-" {
			continue
		} else if tag != "" {
			name = tag
		}
		cols = append(cols, column{name: name, index: i})
	}
	return cols
}

func structTable(v reflect.Value) *Table {
	t := &Table{}
	for _, c := range columns(v.Type()) {
		t.AddRow(c.name+":", formatValue(v.Field(c.index)))
	}
	return t
}

func sliceTable(v reflect.Value) *Table {
	et := v.Type().Elem()
	if et.Kind() == reflect.Ptr {
		et = et.Elem()
	}
	cols := columns(et)

	t := &Table{}
	for _, c := range cols {
		t.Headers = append(t.Headers, strings.ToUpper(c.name))
	}
	for i := 0; i < v.Len(); i++ {
		elem := v.Index(i)
		if elem.Kind() == reflect.Ptr {
			if elem.IsNil() {
				continue
			}
			elem = elem.Elem()
		}
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j] = formatValue(elem.Field(c.index))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
)

func formatValue(v reflect.Value) string {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "-"
		}
		v = v.Elem()
	}

	switch v.Type() {
	case timeType:
		ts := v.Interface().(time.Time)
		if ts.IsZero() {
			return "-"
		}
		return ts.Local().Format("2006-01-02 15:04:05")
	case durationType:
		return v.Interface().(time.Duration).String()
	}

	if s, ok := v.Interface().(fmt.Stringer); ok {
		return orDash(s.String())
	}

	switch v.Kind() {
	case reflect.String:
		return orDash(v.String())
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "-"
		}
		if v.Type().Elem().Kind() == reflect.String {
			parts := make([]string, v.Len())
			for i := range parts {
				parts[i] = v.Index(i).String()
			}
			return strings.Join(parts, ", ")
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map, reflect.Struct:
		raw, err := json.Marshal(v.Interface())
		if err != nil {
			return fmt.Sprintf("%v", v.Interface())
		}
		return string(raw)
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Table is column-aligned text.
type Table struct {
	Headers []string
	Rows    [][]string
}

// NewTable returns a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers}
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render writes the table with its headers.
func (t *Table) Render(w io.Writer) error {
	return t.render(w, false)
}

func (t *Table) render(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !noHeaders && len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
