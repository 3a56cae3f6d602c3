package engine

import (
	"context"
	"errors"
	"testing"
)

func noop(context.Context, Arguments) (interface{}, error) {
	return nil, nil
}

func TestNewTransform_Validation(t *testing.T) {
	tests := []struct {
		name      string
		tname     string
		params    []string
		fn        Func
		opts      []TransformOption
		wantError bool
	}{
		{name: "valid", tname: "c", params: []string{"a", "b"}, fn: noop},
		{name: "no parameters", tname: "c", fn: noop},
		{name: "empty name", tname: "", params: []string{"a"}, fn: noop, wantError: true},
		{name: "nil behaviour", tname: "c", params: []string{"a"}, wantError: true},
		{name: "self parameter", tname: "c", params: []string{"a", "c"}, fn: noop, wantError: true},
		{name: "duplicate parameter", tname: "c", params: []string{"a", "a"}, fn: noop, wantError: true},
		{name: "empty parameter", tname: "c", params: []string{""}, fn: noop, wantError: true},
		{
			name:      "annotation on undeclared parameter",
			tname:     "c",
			params:    []string{"a"},
			fn:        noop,
			opts:      []TransformOption{WithParameterAnnotation("b", positive{})},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTransform(tt.tname, tt.params, tt.fn, tt.opts...)
			if tt.wantError {
				if !errors.Is(err, ErrInvalidTransform) {
					t.Fatalf("NewTransform() error = %v, want invalid transform", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTransform() error = %v", err)
			}
			if tr.Name() != tt.tname {
				t.Errorf("Name() = %q, want %q", tr.Name(), tt.tname)
			}
		})
	}
}

func TestMustTransform_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustTransform() did not panic")
		}
	}()
	MustTransform("x", []string{"x"}, noop)
}

func TestTransform_ParametersAreCopied(t *testing.T) {
	params := []string{"a", "b"}
	tr := MustTransform("c", params, noop)

	params[0] = "mutated"
	if tr.Parameters()[0] != "a" {
		t.Errorf("Parameters()[0] = %q after caller mutation, want a", tr.Parameters()[0])
	}

	got := tr.Parameters()
	got[1] = "mutated"
	if tr.Parameters()[1] != "b" {
		t.Errorf("Parameters()[1] = %q after result mutation, want b", tr.Parameters()[1])
	}
}

func TestTransform_Invoke(t *testing.T) {
	var seen Arguments
	tr := MustTransform("c", []string{"a", "b"}, func(_ context.Context, args Arguments) (interface{}, error) {
		seen = args
		return len(args), nil
	})

	got, err := tr.Invoke(context.Background(), map[string]interface{}{"a": 1.0, "b": 2.0, "extra": 3.0})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != 2 {
		t.Errorf("Invoke() = %v, want 2 bound arguments", got)
	}
	if _, ok := seen["extra"]; ok {
		t.Error("undeclared argument passed to behaviour")
	}
}

func TestTransform_InvokeMissingArgument(t *testing.T) {
	tr := MustTransform("c", []string{"a", "b"}, noop)

	_, err := tr.Invoke(context.Background(), map[string]interface{}{"a": 1.0})
	if !IsArgumentBinding(err) {
		t.Fatalf("Invoke() error = %v, want argument binding", err)
	}

	var engineErr *EngineError
	errors.As(err, &engineErr)
	if engineErr.Details["parameter"] != "b" {
		t.Errorf("parameter detail = %v, want b", engineErr.Details["parameter"])
	}
}

func TestTransform_Signature(t *testing.T) {
	tests := []struct {
		name string
		tr   *Transform
		want string
	}{
		{
			name: "plain",
			tr:   MustTransform("c", []string{"a", "b"}, noop),
			want: "c(a, b)",
		},
		{
			name: "annotated",
			tr: MustTransform("c", []string{"a", "b"}, noop,
				WithParameterAnnotation("a", positive{}),
				WithResultAnnotation(positive{})),
			want: "c(a [positive], b) -> positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tr.Signature(); got != tt.want {
				t.Errorf("Signature() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestArguments_Float(t *testing.T) {
	args := Arguments{"f": 1.5, "i": 2, "i64": int64(3), "s": "four"}

	tests := []struct {
		name      string
		want      float64
		wantError bool
	}{
		{name: "f", want: 1.5},
		{name: "i", want: 2},
		{name: "i64", want: 3},
		{name: "s", wantError: true},
		{name: "missing", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := args.Float(tt.name)
			if (err != nil) != tt.wantError {
				t.Fatalf("Float() error = %v, wantError %v", err, tt.wantError)
			}
			if !tt.wantError && got != tt.want {
				t.Errorf("Float() = %v, want %v", got, tt.want)
			}
		})
	}
}
