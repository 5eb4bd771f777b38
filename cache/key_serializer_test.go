package cache

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultArgsSerializer_BasicTypes(t *testing.T) {
	serializer := NewDefaultArgsSerializer()

	tests := []struct {
		name string
		args []any
		want string
	}{
		{
			name: "no args",
			args: []any{},
			want: "",
		},
		{
			name: "sql text",
			args: []any{"select 1"},
			want: "8:select 1",
		},
		{
			name: "multiple basic types",
			args: []any{1, "hello", true, 3.14},
			want: "int:1,5:hello,bool:true,float64:3.14",
		},
		{
			name: "string with separator",
			args: []any{"select $1::int"},
			want: "14:select $1::int",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeArgs(tt.args...)
			if got != tt.want {
				t.Errorf("SerializeArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultArgsSerializer_NoAliasing(t *testing.T) {
	serializer := NewDefaultArgsSerializer()

	joined := serializer.SerializeArgs("a::b")
	split := serializer.SerializeArgs("a", "b")
	if joined == split {
		t.Errorf("expected distinct serializations, both were %q", joined)
	}

	commas := serializer.SerializeArgs("a,1:b")
	if commas == split {
		t.Errorf("expected distinct serializations, both were %q", commas)
	}
}

func TestDefaultArgsSerializer_Composite(t *testing.T) {
	serializer := NewDefaultArgsSerializer()

	type flags struct {
		A      int
		hidden string
		C      string
	}
	five := 5

	tests := []struct {
		name string
		arg  any
		want string
	}{
		{name: "nil", arg: nil, want: "nil"},
		{name: "pointer", arg: &five, want: "int:5"},
		{name: "nil pointer", arg: (*int)(nil), want: "nil"},
		{name: "slice", arg: []int{1, 2}, want: "slice[2]{int:1,int:2}"},
		{name: "nil slice", arg: []int(nil), want: "slice:nil"},
		{name: "array", arg: [2]string{"x", "y"}, want: `array[2]{"x","y"}`},
		{name: "map sorted", arg: map[string]int{"b": 2, "a": 1}, want: `map[2]{"a"=int:1,"b"=int:2}`},
		{name: "struct exported fields", arg: flags{A: 1, hidden: "x", C: "y"}, want: `struct:"cache.flags"{A:int:1,C:"y"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeArgs(tt.arg)
			if got != tt.want {
				t.Errorf("SerializeArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultArgsSerializer_Functions(t *testing.T) {
	serializer := NewDefaultArgsSerializer()
	fn := func() {}

	first := serializer.SerializeArgs(fn)
	second := serializer.SerializeArgs(fn)
	if first != second {
		t.Errorf("expected stable function serialization, got %q and %q", first, second)
	}
	if !strings.Contains(first, "func:0x") {
		t.Errorf("expected function pointer formatting, got %q", first)
	}
}

func TestDefaultArgsSerializer_Stability(t *testing.T) {
	serializer := NewDefaultArgsSerializer()
	args := []any{"select * from actor where first_name = ?", map[string]bool{"z": true, "a": false}, []string{"x"}}

	want := serializer.SerializeArgs(args...)
	for i := 0; i < 50; i++ {
		if got := serializer.SerializeArgs(args...); got != want {
			t.Fatalf("iteration %d: SerializeArgs() = %q, want %q", i, got, want)
		}
	}
}

func TestDefaultArgsSerializer_JSONFallback(t *testing.T) {
	serializer := NewDefaultArgsSerializer()

	morning := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC)

	got := serializer.SerializeArgs(morning)
	if !strings.HasPrefix(got, "json:") {
		t.Errorf("expected json serialization, got %q", got)
	}
	if got == serializer.SerializeArgs(evening) {
		t.Errorf("expected distinct times to serialize differently, both were %q", got)
	}
}

func TestDefaultArgsSerializer_TypesNeverAlias(t *testing.T) {
	serializer := NewDefaultArgsSerializer()

	type label string

	tests := []struct {
		name string
		a, b []any
	}{
		{name: "nil and string", a: []any{nil}, b: []any{"nil"}},
		{name: "int and string", a: []any{1}, b: []any{"1"}},
		{name: "bool and string", a: []any{true}, b: []any{"true"}},
		{name: "int and int64", a: []any{1}, b: []any{int64(1)}},
		{name: "int and float", a: []any{1}, b: []any{1.0}},
		{name: "tagged text as string", a: []any{1}, b: []any{"int:1"}},
		{name: "named string", a: []any{"x"}, b: []any{label("x")}},
		{name: "nested int and string", a: []any{[]any{1}}, b: []any{[]any{"1"}}},
		{name: "nested comma", a: []any{[]string{"a,b"}}, b: []any{[]string{"a", "b"}}},
		{name: "nil slice and empty slice", a: []any{[]int(nil)}, b: []any{[]int{}}},
		{name: "argument boundary", a: []any{"select 1", 1}, b: []any{"select 1,int:1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := serializer.SerializeArgs(tt.a...)
			b := serializer.SerializeArgs(tt.b...)
			if a == b {
				t.Errorf("expected distinct serializations, both were %q", a)
			}
		})
	}
}
