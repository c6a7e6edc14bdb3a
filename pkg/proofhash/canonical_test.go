package proofhash

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func TestCanonicalizeJSON_Vectors(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.json"))
	if err != nil {
		t.Fatalf("glob vectors: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no vectors found")
	}
	sort.Strings(files)

	for _, jsonPath := range files {
		t.Run(filepath.Base(jsonPath), func(t *testing.T) {
			base := strings.TrimSuffix(jsonPath, ".json")
			input := readFile(t, jsonPath)
			expected := readFile(t, base+".jcs")
			expectedHex := strings.TrimSpace(string(readFile(t, base+".sha256.hex")))

			actual, err := CanonicalizeJSON(input)
			if err != nil {
				t.Fatalf("canonicalize %s: %v", jsonPath, err)
			}
			if !bytes.Equal(actual, expected) {
				t.Fatalf("canonical bytes mismatch: got %s want %s", actual, expected)
			}
			if got := HashBinary(actual); got != expectedHex {
				t.Fatalf("hash mismatch: got %s want %s", got, expectedHex)
			}
		})
	}
}

func TestCanonicalize_ReferenceVector(t *testing.T) {
	expectCanonical(t, map[string]any{"name": "Alice", "age": 30}, `{"age":30,"name":"Alice"}`)
}

func TestCanonicalize_Nil(t *testing.T) {
	expectCanonical(t, nil, "null")
}

func TestCanonicalize_PreservesArrayOrder(t *testing.T) {
	expectCanonical(t, []any{3, map[string]any{"b": 1, "a": 2}, "x"}, `[3,{"a":2,"b":1},"x"]`)
}

func TestCanonicalize_SortsKeysBytewise(t *testing.T) {
	expectCanonical(t, map[string]any{"b": 1, "B": 2, "a": 3, "é": 4}, `{"B":2,"a":3,"b":1,"é":4}`)
}

func TestCanonicalize_Numbers(t *testing.T) {
	cases := map[string]string{
		`1.0`:       `1`,
		`-0`:        `0`,
		`1.5`:       `1.5`,
		`1e21`:      `1e+21`,
		`1e20`:      `100000000000000000000`,
		`0.000001`:  `0.000001`,
		`0.0000001`: `1e-7`,
		`-12.25e-1`: `-1.225`,
	}
	for in, want := range cases {
		out, err := CanonicalizeJSON([]byte(in))
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if string(out) != want {
			t.Fatalf("%s: got %s want %s", in, out, want)
		}
	}
}

func TestCanonicalize_StringEscapes(t *testing.T) {
	expectCanonical(t, "a\"b\\c\u0001\t/€", `"a\"b\\c\u0001\t/€"`)
}

func TestCanonicalize_Struct(t *testing.T) {
	type doc struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	expectCanonical(t, doc{Name: "Alice", Age: 30}, `{"age":30,"name":"Alice"}`)
}

func TestCanonicalize_RejectsUnsupported(t *testing.T) {
	for _, v := range []any{map[string]any{"c": make(chan int)}, math.NaN()} {
		if _, err := Canonicalize(v); !errors.Is(err, ErrSerialization) {
			t.Fatalf("%v: expected serialization error, got %v", v, err)
		}
	}
}

func TestCanonicalize_RejectsDeepNesting(t *testing.T) {
	var v any = "leaf"
	for i := 0; i < MaxDepth+1; i++ {
		v = []any{v}
	}
	if _, err := Canonicalize(v); !errors.Is(err, ErrSerialization) {
		t.Fatalf("expected serialization error, got %v", err)
	}
}

func TestCanonicalizeJSON_RejectsTrailingData(t *testing.T) {
	if _, err := CanonicalizeJSON([]byte(`{"a":1} {"b":2}`)); !errors.Is(err, ErrInvalidJSON) {
		t.Fatalf("expected invalid json, got %v", err)
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	first, err := CanonicalizeJSON([]byte(`{"z":[1,{"y":2,"x":1}],"a":"b"}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	expectCanonical(t, json.RawMessage(first), string(first))
}

func expectCanonical(t *testing.T, v any, want string) {
	t.Helper()
	out, err := Canonicalize(v)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(out) != want {
		t.Fatalf("got %s want %s", out, want)
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return b
}
