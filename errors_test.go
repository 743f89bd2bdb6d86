package tsnlat

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestErrorKindString(t *testing.T) {
	cases := []struct {
		kind ErrorKind
		want string
	}{
		{InvalidTopology, "InvalidTopology"},
		{PathNotFound, "PathNotFound"},
		{InvalidPriority, "InvalidPriority"},
		{PortOverflow, "PortOverflow"},
		{ErrorKind(99), "UnknownErrorKind"},
	}
	for _, cs := range cases {
		if got := cs.kind.String(); got != cs.want {
			t.Errorf("kind %d renders as %q, want %q", cs.kind, got, cs.want)
		}
	}
}

func TestEvalErrorFormat(t *testing.T) {
	full := &EvalError{
		Kind: PortOverflow, Stream: "x", Node: "a", Port: "p",
		Detail: "frame 1600 exceeds 1522",
	}
	if got := full.Error(); got != "PortOverflow: stream x node a port p: frame 1600 exceeds 1522" {
		t.Errorf("located error renders as %q", got)
	}

	streamOnly := &EvalError{Kind: PathNotFound, Stream: "x", Detail: "no path"}
	if got := streamOnly.Error(); got != "PathNotFound: stream x: no path" {
		t.Errorf("stream scoped error renders as %q", got)
	}

	topo := topoError("port %q unknown", "a-p")
	if topo.Kind != InvalidTopology {
		t.Errorf("topoError kind %v", topo.Kind)
	}
	if got := topo.Error(); got != `InvalidTopology: port "a-p" unknown` {
		t.Errorf("topology error renders as %q", got)
	}
}

func TestKindOf(t *testing.T) {
	if kind, ok := KindOf(topoError("x")); !ok || kind != InvalidTopology {
		t.Errorf("direct = %v, %v", kind, ok)
	}

	wrapped := fmt.Errorf("evaluating: %w", &EvalError{Kind: InvalidPriority, Detail: "d"})
	if kind, ok := KindOf(wrapped); !ok || kind != InvalidPriority {
		t.Errorf("wrapped = %v, %v", kind, ok)
	}

	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("foreign errors carry no kind")
	}
	if _, ok := KindOf(nil); ok {
		t.Error("nil carries no kind")
	}
}

func TestReportErrs(t *testing.T) {
	if err := ReportErrs(nil); err != nil {
		t.Errorf("empty list: %v", err)
	}
	if err := ReportErrs([]error{nil, nil}); err != nil {
		t.Errorf("all nil list: %v", err)
	}

	err := ReportErrs([]error{errors.New("a"), nil, errors.New("b")})
	if err == nil || err.Error() != "a,b" {
		t.Errorf("joined report %v", err)
	}
}

func TestCheckFiles(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.json")
	if err := os.WriteFile(present, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	// empty names and bare file names pass unprobed
	if ok, err := CheckReadableFiles([]string{"", present}); !ok || err != nil {
		t.Errorf("readable check = %v, %v", ok, err)
	}
	if ok, err := CheckOutputFiles([]string{"results.json", filepath.Join(dir, "new.json")}); !ok || err != nil {
		t.Errorf("output check = %v, %v", ok, err)
	}

	if ok, err := CheckReadableFiles([]string{filepath.Join(dir, "absent.json")}); ok || err == nil {
		t.Error("a missing input must fail the readable check")
	}
	if ok, err := CheckOutputFiles([]string{filepath.Join(dir, "no such dir", "out.json")}); ok || err == nil {
		t.Error("an output in a missing directory must fail")
	}
}

func TestCheckDirectories(t *testing.T) {
	dir := t.TempDir()

	if ok, err := CheckDirectories([]string{dir, ""}); !ok || err != nil {
		t.Errorf("existing directory = %v, %v", ok, err)
	}

	ok, err := CheckDirectories([]string{filepath.Join(dir, "missing")})
	if ok || err == nil || !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("missing directory = %v, %v", ok, err)
	}

	ok, err = CheckDirectories([]string{"data.json"})
	if ok || err == nil || !strings.Contains(err.Error(), "not a directory") {
		t.Errorf("file argument = %v, %v", ok, err)
	}
}
