package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
)

// value is a resolved JSON value with its type.
type value struct {
	raw []byte
	typ jsonparser.ValueType
}

// lookup returns the first candidate present in data, unwrapping the API v2
// {"value": x} envelope. Nulls count as absent.
func lookup(data []byte, candidates []Path) (value, bool) {
	for _, path := range candidates {
		raw, typ, _, err := jsonparser.Get(data, path...)
		if err != nil || typ == jsonparser.NotExist || typ == jsonparser.Null {
			continue
		}
		if typ == jsonparser.Object {
			if inner, innerTyp, _, err := jsonparser.Get(raw, "value"); err == nil {
				if innerTyp == jsonparser.Null {
					continue
				}
				raw, typ = inner, innerTyp
			}
		}
		return value{raw: raw, typ: typ}, true
	}
	return value{}, false
}

var leadingInt = regexp.MustCompile(`^\s*(-?\d+)`)

// asInt coerces v to an integer score: JSON numbers, numeric strings and
// form labels such as "6: marginally above the acceptance threshold".
func (v value) asInt() *int {
	switch v.typ {
	case jsonparser.Number:
		f, err := jsonparser.ParseFloat(v.raw)
		if err != nil {
			return nil
		}
		n := int(math.Round(f))
		return &n
	case jsonparser.String:
		s, err := jsonparser.ParseString(v.raw)
		if err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			n := int(math.Round(f))
			return &n
		}
		if m := leadingInt.FindStringSubmatch(s); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return &n
			}
		}
	}
	return nil
}

// asString coerces v to text. Arrays of strings are joined by ", ".
func (v value) asString() string {
	switch v.typ {
	case jsonparser.String:
		s, err := jsonparser.ParseString(v.raw)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case jsonparser.Number, jsonparser.Boolean:
		return string(v.raw)
	case jsonparser.Array:
		return strings.Join(v.asStrings(), ", ")
	}
	return ""
}

// asStrings coerces v to a list: string arrays as-is, a single string split
// on commas.
func (v value) asStrings() []string {
	var out []string
	switch v.typ {
	case jsonparser.Array:
		_, _ = jsonparser.ArrayEach(v.raw, func(item []byte, typ jsonparser.ValueType, _ int, _ error) {
			if typ != jsonparser.String {
				return
			}
			if s, err := jsonparser.ParseString(item); err == nil {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		})
	case jsonparser.String:
		s, err := jsonparser.ParseString(v.raw)
		if err != nil {
			return nil
		}
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// asTime coerces v to a UTC time: epoch milliseconds or RFC 3339 text.
func (v value) asTime() time.Time {
	switch v.typ {
	case jsonparser.Number:
		ms, err := jsonparser.ParseInt(v.raw)
		if err != nil {
			return time.Time{}
		}
		return time.UnixMilli(ms).UTC()
	case jsonparser.String:
		s, err := jsonparser.ParseString(v.raw)
		if err != nil {
			return time.Time{}
		}
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(s)); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Typed field accessors over a note.

func (n *Normalizer) intField(note []byte, f Field) *int {
	if v, ok := lookup(note, n.fields.Candidates(f)); ok {
		return v.asInt()
	}
	return nil
}

func (n *Normalizer) stringField(note []byte, f Field) string {
	if v, ok := lookup(note, n.fields.Candidates(f)); ok {
		return v.asString()
	}
	return ""
}

func (n *Normalizer) listField(note []byte, f Field) []string {
	if v, ok := lookup(note, n.fields.Candidates(f)); ok {
		return v.asStrings()
	}
	return nil
}

func (n *Normalizer) timeField(note []byte, f Field) time.Time {
	if v, ok := lookup(note, n.fields.Candidates(f)); ok {
		return v.asTime()
	}
	return time.Time{}
}
