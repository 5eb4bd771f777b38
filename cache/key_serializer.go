package cache

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// KeySeparator defines the delimiter used between key segments in Key.String.
const KeySeparator = "::"

// ArgsSerializer turns the arguments of a statement-preparing call into a
// canonical string. Equal arguments must always produce equal strings.
type ArgsSerializer interface {
	SerializeArgs(args ...any) string
}

var defaultSerializer ArgsSerializer = &reflectArgsSerializer{}

// NewDefaultArgsSerializer returns the reflection based serializer used by NewKey.
func NewDefaultArgsSerializer() ArgsSerializer {
	return &reflectArgsSerializer{}
}

// reflectArgsSerializer writes top-level strings length-prefixed, so SQL text
// containing the separator (e.g. postgres "::" casts) cannot alias another
// argument list. Every other value is tagged with its kind and nested strings
// are quoted, so values of different types never serialize alike.
type reflectArgsSerializer struct{}

func (s *reflectArgsSerializer) SerializeArgs(args ...any) string {
	if len(args) == 0 {
		return ""
	}

	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		// Fast path: SQL text is by far the most common argument.
		if str, ok := arg.(string); ok {
			b.WriteString(strconv.Itoa(len(str)))
			b.WriteByte(':')
			b.WriteString(str)
			continue
		}
		b.WriteString(s.serializeValue(arg))
	}
	return b.String()
}

// serializeValue never returns output starting with a digit, which keeps it
// apart from length-prefixed top-level strings.
func (s *reflectArgsSerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}
	if str, ok := v.(string); ok {
		return strconv.Quote(str)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		// A pointer keys like the value it points to.
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return s.serializeSequence("slice", rv)
	case reflect.Array:
		return s.serializeSequence("array", rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)
	case reflect.Struct:
		// time.Time and friends keep their state in unexported fields.
		if _, ok := v.(json.Marshaler); ok {
			return s.jsonFallback(v)
		}
		return s.serializeStruct(rv)
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		// Only stable within one process, which is all a per-connection key needs.
		return fmt.Sprintf("%s:%p", rv.Kind(), v)
	case reflect.String:
		return "string:" + strconv.Quote(rv.String())
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return fmt.Sprintf("%s:%v", rv.Kind(), v)
	}

	return s.jsonFallback(v)
}

func (s *reflectArgsSerializer) serializeSequence(kind string, rv reflect.Value) string {
	n := rv.Len()
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}
	return fmt.Sprintf("%s[%d]{%s}", kind, n, strings.Join(parts, ","))
}

// serializeMap sorts entries by their serialized key.
func (s *reflectArgsSerializer) serializeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, s.serializeValue(iter.Key().Interface())+"="+s.serializeValue(iter.Value().Interface()))
	}
	sort.Strings(pairs)
	return fmt.Sprintf("map[%d]{%s}", len(pairs), strings.Join(pairs, ","))
}

// serializeStruct only looks at exported fields.
func (s *reflectArgsSerializer) serializeStruct(rv reflect.Value) string {
	rt := rv.Type()
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		fv := rv.Field(i)
		if !fv.CanInterface() {
			continue
		}
		parts = append(parts, field.Name+":"+s.serializeValue(fv.Interface()))
	}
	return fmt.Sprintf("struct:%s{%s}", strconv.Quote(rt.String()), strings.Join(parts, ","))
}

func (s *reflectArgsSerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + strconv.Quote(reflect.TypeOf(v).String())
	}
	return "json:" + strconv.Quote(string(data))
}
