package treesitter

import (
	"context"
	"testing"
)

func parse(t *testing.T, lang Language, source string) Tree {
	t.Helper()
	backend, err := NewCGOBackend()
	if err != nil {
		t.Skipf("CGO backend not available: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	parser, err := backend.NewParser(lang)
	if err != nil {
		t.Fatalf("NewParser(%s) failed: %v", lang, err)
	}
	t.Cleanup(func() { _ = parser.Close() })

	tree, err := parser.Parse(context.Background(), []byte(source))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	t.Cleanup(func() { _ = tree.Close() })
	return tree
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGoImports(t *testing.T) {
	tree := parse(t, Go, `package main

import (
	"context"
	bar "github.com/example/bar"
)

import "os"
`)
	got := Imports(tree, Go)
	want := []string{"context", "github.com/example/bar", "os"}
	if !equal(got, want) {
		t.Errorf("Imports() = %v, want %v", got, want)
	}
}

func TestPythonImports(t *testing.T) {
	tree := parse(t, Python, `"""Motion drafting helpers."""
import os
import numpy as np, json
from collections import OrderedDict
from .local import thing
`)
	got := Imports(tree, Python)
	want := []string{"os", "numpy", "json", "collections", ".local"}
	if !equal(got, want) {
		t.Errorf("Imports() = %v, want %v", got, want)
	}
}

func TestJavaScriptImports(t *testing.T) {
	tree := parse(t, JavaScript, `import fs from 'fs';
const path = require("path");
`)
	got := Imports(tree, JavaScript)
	want := []string{"fs", "path"}
	if !equal(got, want) {
		t.Errorf("Imports() = %v, want %v", got, want)
	}
}

func TestUnsupportedLanguage(t *testing.T) {
	backend, err := NewCGOBackend()
	if err != nil {
		t.Skipf("CGO backend not available: %v", err)
	}
	defer backend.Close()

	if backend.SupportsLanguage(Language("cobol")) {
		t.Error("SupportsLanguage(cobol) = true, want false")
	}
	if _, err := backend.NewParser(Language("cobol")); err == nil {
		t.Error("NewParser(cobol) expected error")
	}
}

func TestBackendClosed(t *testing.T) {
	backend, err := NewCGOBackend()
	if err != nil {
		t.Skipf("CGO backend not available: %v", err)
	}
	_ = backend.Close()
	if _, err := backend.NewParser(Go); err == nil {
		t.Error("NewParser() after Close expected error")
	}
}

func TestLanguageForExt(t *testing.T) {
	tests := []struct {
		ext  string
		want Language
		ok   bool
	}{
		{".go", Go, true},
		{".PY", Python, true},
		{".mjs", JavaScript, true},
		{".ts", TypeScript, true},
		{".md", "", false},
	}
	for _, tt := range tests {
		got, ok := LanguageForExt(tt.ext)
		if got != tt.want || ok != tt.ok {
			t.Errorf("LanguageForExt(%q) = (%q, %v), want (%q, %v)", tt.ext, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNewBackendFromEnv(t *testing.T) {
	t.Setenv(EnvVarBackend, "wasm")
	if _, err := NewBackendFromEnv(); err == nil {
		t.Error("NewBackendFromEnv() expected error for unknown backend")
	}

	t.Setenv(EnvVarBackend, "")
	b, err := NewBackendFromEnv()
	if err != nil {
		if Available() {
			t.Fatalf("NewBackendFromEnv() error = %v", err)
		}
		return
	}
	_ = b.Close()
}
