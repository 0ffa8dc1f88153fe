package shader

import (
	"strings"
	"testing"
)

func TestParseAnnotation(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    AnnotationType
		role    AnnotationArg
		wantNil bool
		wantErr string
	}{
		{name: "plain code", line: "let x = 1;", wantNil: true},
		{name: "plain comment", line: "// just a comment", wantNil: true},
		{name: "annotation not in comment", line: "let s = \"@oxy:include ball\";", wantNil: true},
		{name: "include", line: "//@oxy:include ball", want: annotationTypeInclude},
		{name: "indented include", line: "   // @oxy:include field_params", want: annotationTypeInclude},
		{name: "group", line: "//@oxy:group 0 1 storage_read balls array<ball>", want: AnnotationTypeBindingGroup, role: AnnotationArgBall},
		{name: "group uniform", line: "//@oxy:group 0 0 storage_uniform params field_params", want: AnnotationTypeBindingGroup, role: AnnotationArgFieldParams},
		{name: "provider with role", line: "//@oxy:provider 0 4 field field_texture", want: AnnotationTypeProvider, role: AnnotationArgFieldTexture},
		{name: "provider without role", line: "//@oxy:provider 0 2 normals", want: AnnotationTypeProvider},
		{name: "empty", line: "//@oxy:", wantErr: "empty"},
		{name: "unknown type", line: "//@oxy:frobnicate", wantErr: "unknown @oxy annotation type"},
		{name: "include arity", line: "//@oxy:include ball grid_cell", wantErr: "exactly one argument"},
		{name: "include unknown struct", line: "//@oxy:include light", wantErr: "unknown struct type"},
		{name: "group arity", line: "//@oxy:group 0 1 storage_read balls", wantErr: "five arguments"},
		{name: "group bad number", line: "//@oxy:group x 1 storage_read balls ball", wantErr: "invalid group number"},
		{name: "group bad address space", line: "//@oxy:group 0 1 private balls ball", wantErr: "unknown address space"},
		{name: "group unknown struct", line: "//@oxy:group 0 1 storage_read balls array<mesh>", wantErr: "unknown struct type"},
		{name: "provider unknown identity", line: "//@oxy:provider 0 1 shadow", wantErr: "unknown provider identity"},
		{name: "provider unknown role", line: "//@oxy:provider 0 1 field depth", wantErr: "unknown binding role"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, err := parseAnnotation(tc.line, 7)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
				}
				if !strings.Contains(err.Error(), "line 7") {
					t.Errorf("err = %v, want line number", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantNil {
				if a != nil {
					t.Fatalf("got %+v, want nil", a)
				}
				return
			}
			if a == nil {
				t.Fatal("got nil annotation")
			}
			if a.Type != tc.want {
				t.Errorf("type = %q, want %q", a.Type, tc.want)
			}
			if a.Role() != tc.role {
				t.Errorf("role = %q, want %q", a.Role(), tc.role)
			}
			if a.Line != 7 {
				t.Errorf("line = %d, want 7", a.Line)
			}
		})
	}
}

func TestParseAnnotation_GroupBinding(t *testing.T) {
	a, err := parseAnnotation("//@oxy:group 1 3 storage_read cells array<grid_cell>", 1)
	if err != nil {
		t.Fatal(err)
	}
	if *a.Group != 1 || *a.Binding != 3 {
		t.Errorf("group/binding = %d/%d, want 1/3", *a.Group, *a.Binding)
	}
	if string(a.Args[1]) != "cells" {
		t.Errorf("var name = %q, want cells", a.Args[1])
	}
}
