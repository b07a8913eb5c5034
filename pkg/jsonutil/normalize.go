// Package jsonutil converts driver values into JSON-safe scalars.
package jsonutil

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TimeLayout is the layout temporal values are rendered with.
const TimeLayout = time.RFC3339Nano

type float64er interface {
	Float64() float64
}

// Normalize returns a JSON-safe form of a value scanned from a driver.
// dbType is the driver's DatabaseTypeName for the column and may be empty.
//
//   - time.Time becomes an RFC 3339 string with fractional seconds
//   - decimals become float64
//   - 16-byte UUID columns become canonical strings
//   - other binary becomes UTF-8 text with U+FFFD for invalid sequences
//   - slices and maps are normalized element-wise
func Normalize(v any, dbType string) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if isDecimalType(dbType) {
			return parseDecimal(t)
		}
		return t
	case bool, int, int8, int16, int32, int64, uint8, uint16, uint32:
		return t
	case uint64:
		if t > math.MaxInt64 {
			return strconv.FormatUint(t, 10)
		}
		return int64(t)
	case uint:
		return Normalize(uint64(t), dbType)
	case float32:
		return finite(float64(t))
	case float64:
		return finite(t)
	case time.Time:
		return t.Format(TimeLayout)
	case time.Duration:
		return t.String()
	case uuid.UUID:
		return t.String()
	case [16]byte:
		return uuid.UUID(t).String()
	case []byte:
		return normalizeBytes(t, dbType)
	case *big.Int:
		if t == nil {
			return nil
		}
		if t.IsInt64() {
			return t.Int64()
		}
		return t.String()
	case *big.Float:
		if t == nil {
			return nil
		}
		f, _ := t.Float64()
		return finite(f)
	case float64er:
		return finite(t.Float64())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e, "")
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Normalize(e, "")
		}
		return out
	}

	return normalizeReflect(v)
}

// NormalizeRow normalizes a scanned row in place. types may be shorter than values.
func NormalizeRow(values []any, types []string) []any {
	for i, v := range values {
		dbType := ""
		if i < len(types) {
			dbType = types[i]
		}
		values[i] = Normalize(v, dbType)
	}
	return values
}

func normalizeBytes(b []byte, dbType string) any {
	typ := strings.ToUpper(dbType)
	switch {
	case typ == "UUID" && len(b) == 16:
		return uuid.UUID(b).String()
	case typ == "UNIQUEIDENTIFIER" && len(b) == 16:
		return mssqlGUID(b)
	case isDecimalType(typ):
		return parseDecimal(string(b))
	}
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// mssqlGUID reorders SQL Server's mixed-endian uniqueidentifier bytes.
func mssqlGUID(b []byte) string {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:], b[8:])
	return u.String()
}

func isDecimalType(dbType string) bool {
	switch strings.ToUpper(dbType) {
	case "DECIMAL", "NUMERIC", "NUMBER", "MONEY", "SMALLMONEY", "NEWDECIMAL":
		return true
	}
	return false
}

func parseDecimal(s string) any {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return s
	}
	return finite(f)
}

// finite keeps NaN and infinities, which encoding/json rejects, as strings.
func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}

func normalizeReflect(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface(), "")
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			if rv.Kind() == reflect.Array && rv.Len() == 16 && strings.HasSuffix(rv.Type().Name(), "UUID") {
				var u uuid.UUID
				reflect.Copy(reflect.ValueOf(u[:]), rv)
				return u.String()
			}
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return strings.ToValidUTF8(string(b), "\uFFFD")
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface(), "")
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = Normalize(iter.Value().Interface(), "")
		}
		return out
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Normalize(rv.Uint(), "")
	case reflect.Float32, reflect.Float64:
		return finite(rv.Float())
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
