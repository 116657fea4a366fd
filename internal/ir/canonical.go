package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

var (
	errCanonicalNull  = errors.New("canonical JSON: null not allowed")
	errCanonicalFloat = errors.New("canonical JSON: floating point not allowed")
)

// MarshalCanonical encodes v in the byte-stable form used for hashes and
// golden files. Object keys are ordered by UTF-16 code unit, strings are
// NFC-normalized and HTML characters are left alone. Floats and null are
// rejected because they have no single spelling.
//
// v may be built from string, bool, int, int64, []string, []any,
// map[string]any and Schedule.
func MarshalCanonical(v any) ([]byte, error) {
	var c canonEncoder
	if err := c.value(v); err != nil {
		return nil, err
	}
	return c.buf.Bytes(), nil
}

type canonEncoder struct {
	buf bytes.Buffer
}

func (c *canonEncoder) value(v any) error {
	switch v := v.(type) {
	case nil:
		return errCanonicalNull
	case float32, float64:
		return fmt.Errorf("%w: %v", errCanonicalFloat, v)
	case string:
		return c.str(v)
	case bool:
		c.buf.WriteString(strconv.FormatBool(v))
	case int:
		c.buf.WriteString(strconv.Itoa(v))
	case int64:
		c.buf.WriteString(strconv.FormatInt(v, 10))
	case []string:
		return list(c, v, c.str)
	case []any:
		return list(c, v, c.value)
	case map[string]any:
		return c.object(v)
	case Schedule:
		return c.value(v.canonical())
	default:
		return fmt.Errorf("canonical JSON: unsupported type %T", v)
	}
	return nil
}

func list[T any](c *canonEncoder, items []T, each func(T) error) error {
	c.buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			c.buf.WriteByte(',')
		}
		if err := each(item); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	c.buf.WriteByte(']')
	return nil
}

func (c *canonEncoder) object(m map[string]any) error {
	keys := slices.SortedFunc(maps.Keys(m), func(a, b string) int {
		return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
	})
	c.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			c.buf.WriteByte(',')
		}
		if err := c.str(k); err != nil {
			return err
		}
		c.buf.WriteByte(':')
		if err := c.value(m[k]); err != nil {
			return fmt.Errorf("%q: %w", k, err)
		}
	}
	c.buf.WriteByte('}')
	return nil
}

// str leans on encoding/json for escaping and strips its trailing newline.
func (c *canonEncoder) str(s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	c.buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}
