package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DecodeError reports a figure record that could not be taken at face value.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode figure: field %q: %s", e.Field, e.Reason)
}

// Fields that must be present on every record. Everything else defaults to
// its zero value when absent.
var requiredFigureFields = []string{"id", "name", "file_name", "updated_date"}

func (id *FigureID) UnmarshalJSON(b []byte) error {
	b = unbox(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = FigureID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("figure id: %w", err)
	}
	*id = FigureID(n.String())
	return nil
}

func (f *Figure) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, k := range requiredFigureFields {
		v, ok := raw[k]
		if !ok || bytes.Equal(unbox(v), []byte("null")) {
			return &DecodeError{Field: k, Reason: "missing"}
		}
	}

	var out Figure
	if err := json.Unmarshal(raw["id"], &out.ID); err != nil {
		return &DecodeError{Field: "id", Reason: err.Error()}
	}
	if out.ID.Empty() {
		return &DecodeError{Field: "id", Reason: "empty"}
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"name", &out.Name},
		{"file_name", &out.FileName},
		{"code_updated", &out.Code},
		{"created_date", &out.CreatedDate},
		{"updated_date", &out.UpdatedDate},
	}
	for _, s := range strs {
		v, ok := raw[s.key]
		if !ok {
			continue
		}
		got, err := decodeString(v)
		if err != nil {
			return &DecodeError{Field: s.key, Reason: err.Error()}
		}
		*s.dst = got
	}

	if v, ok := raw["units"]; ok {
		u, err := decodeString(v)
		if err != nil {
			return &DecodeError{Field: "units", Reason: err.Error()}
		}
		out.Units = Units(u)
	}

	nums := []struct {
		key string
		dst *float64
	}{
		{"height", &out.Height},
		{"width", &out.Width},
	}
	for _, n := range nums {
		v, ok := raw[n.key]
		if !ok {
			continue
		}
		got, err := decodeNumber(v)
		if err != nil {
			return &DecodeError{Field: n.key, Reason: err.Error()}
		}
		*n.dst = got
	}
	if v, ok := raw["dpi"]; ok {
		got, err := decodeNumber(v)
		if err != nil {
			return &DecodeError{Field: "dpi", Reason: err.Error()}
		}
		if math.IsInf(got, 0) || got != math.Trunc(got) {
			return &DecodeError{Field: "dpi", Reason: fmt.Sprintf("not a whole number: %v", got)}
		}
		out.DPI = int(got)
	}

	*f = out
	return nil
}

// unbox strips a single-element JSON array wrapper: ["x"] -> "x".
func unbox(b []byte) []byte {
	t := bytes.TrimSpace(b)
	if len(t) < 2 || t[0] != '[' {
		return t
	}
	var xs []json.RawMessage
	if err := json.Unmarshal(t, &xs); err != nil || len(xs) != 1 {
		return t
	}
	return bytes.TrimSpace(xs[0])
}

func decodeString(b []byte) (string, error) {
	b = unbox(b)
	if bytes.Equal(b, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s, nil
	}
	// Dates and names occasionally arrive as bare numbers.
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("not a string: %s", string(b))
}

func decodeNumber(b []byte) (float64, error) {
	b = unbox(b)
	if bytes.Equal(b, []byte("null")) {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return 0, fmt.Errorf("not a number: %s", string(b))
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return f, nil
}
