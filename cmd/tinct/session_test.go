package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/npillmayer/schuko/tracing/gotestingadapter"
)

const module = `
type Mut struct { x: Signed }
graph bump(p: *Mut, n: Signed): Signed {
    v = getfield(p, "x")
    k = hint(n, {promote})
    w = int_add(v, k)
    setfield(p, "x", w)
    return w
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSessionWorkflow(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.cmd")
	defer teardown()
	//
	dir := t.TempDir()
	src := writeFile(t, dir, "bump.flow", module)
	pol := writeFile(t, dir, "policy.toml", "oopspec = true\n")
	var out bytes.Buffer
	s := NewSession(&out)
	for _, line := range []string{
		"policy " + pol,
		"load " + src,
		"graphs",
		"annotate bump r r",
		"colors bump",
		"compile",
		"dis bump",
	} {
		if _, err := s.Execute(line); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}
	if !s.policy.Oopspec {
		t.Errorf("Expected policy to be loaded")
	}
	listing := out.String()
	for _, expected := range []string{"red_getfield", "promote", "red_setfield", "red_return"} {
		if !strings.Contains(listing, expected) {
			t.Errorf("Expected disassembly to contain %s, is\n%s", expected, listing)
		}
	}
	bundle := filepath.Join(dir, "bump.cbor")
	if _, err := s.Execute("save " + bundle); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if _, err := s.Execute("inspect " + bundle); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "red_setfield") {
		t.Errorf("Expected saved bundle to disassemble, is\n%s", out.String())
	}
	dot := filepath.Join(dir, "bump.dot")
	if _, err := s.Execute("dot bump " + dot); err != nil {
		t.Fatal(err)
	}
	if content, err := os.ReadFile(dot); err != nil || !strings.Contains(string(content), ":red") {
		t.Errorf("Expected colored dot output, is %v", err)
	}
	if quit, _ := s.Execute("quit"); !quit {
		t.Errorf("Expected quit to end the session")
	}
}

func TestSessionErrors(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "tinct.cmd")
	defer teardown()
	//
	s := NewSession(&bytes.Buffer{})
	for _, line := range []string{"frobnicate", "annotate bump", "compile", "colors", "annotate"} {
		if _, err := s.Execute(line); err == nil {
			t.Errorf("Expected %q to fail", line)
		}
	}
	if quit, err := s.Execute("   "); quit || err != nil {
		t.Errorf("Expected empty line to be ignored")
	}
	dir := t.TempDir()
	src := writeFile(t, dir, "bump.flow", module)
	s.Execute("load " + src)
	if _, err := s.Execute("annotate bump r x"); err == nil {
		t.Errorf("Expected bad argument color to fail")
	}
	if _, err := s.Execute("annotate nothere"); err == nil {
		t.Errorf("Expected unknown graph to fail")
	}
}
