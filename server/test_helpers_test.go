package server

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"connectrpc.com/connect"

	"github.com/chazu/ristretto/classfile"
	"github.com/chazu/ristretto/pkg/bytecode"
	"github.com/chazu/ristretto/store"
	"github.com/chazu/ristretto/vm"
	"github.com/chazu/ristretto/vm/image"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
//
// One server with a store is started in TestMain and shared. Tests that
// need a server without a store start their own with newIsolatedServer.
// ---------------------------------------------------------------------------

var (
	testStore  *store.Store
	testServer *Server
	testClient *Client
)

func TestMain(m *testing.M) {
	code, err := runTests(m)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(code)
}

func runTests(m *testing.M) (int, error) {
	dir, err := os.MkdirTemp("", "ristretto-server-test")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(dir)

	testStore, err = store.Open(filepath.Join(dir, "classes.db"))
	if err != nil {
		return 0, err
	}
	defer testStore.Close()

	testServer = New(WithStore(testStore), WithWorkers(2))
	defer testServer.Stop()

	ts := httptest.NewServer(testServer.Handler())
	defer ts.Close()
	testClient = NewClient(ts.Client(), ts.URL)

	return m.Run(), nil
}

// newIsolatedServer starts a server with no store.
func newIsolatedServer(t *testing.T) *Client {
	t.Helper()
	s := New(WithWorkers(1))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
	})
	return NewClient(ts.Client(), ts.URL)
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const calcEntry = "Calc.main:()I"

// calcImage holds one class:
//
//	static int add(int a, int b) { return a + b; }
//	static int main() { return add(2, 3); }
//	static int bad()               // iadd on an empty stack
func calcImage() *image.Image {
	def := vm.ClassDef{
		Name: "Calc",
		Pool: []classfile.Entry{
			classfile.Placeholder(),
			classfile.MethodRef(2, 4),   // 1
			classfile.ClassRef(3),       // 2
			classfile.Utf8("Calc"),      // 3
			classfile.NameAndType(5, 6), // 4
			classfile.Utf8("add"),       // 5
			classfile.Utf8("(II)I"),     // 6
		},
		Methods: []vm.MethodDef{
			{
				Name: "add", Descriptor: "(II)I", MaxStack: 2, MaxLocals: 2,
				Code: []bytecode.Instruction{
					bytecode.Op(bytecode.OpIload0),
					bytecode.Op(bytecode.OpIload1),
					bytecode.Op(bytecode.OpIadd),
					bytecode.Op(bytecode.OpIreturn),
				},
			},
			{
				Name: "main", Descriptor: "()I", MaxStack: 2,
				Code: []bytecode.Instruction{
					bytecode.Op(bytecode.OpIconst2),
					bytecode.Op(bytecode.OpIconst3),
					bytecode.Invokestatic(1),
					bytecode.Op(bytecode.OpIreturn),
				},
			},
			{
				Name: "bad", Descriptor: "()I", MaxStack: 2,
				Code: []bytecode.Instruction{
					bytecode.Op(bytecode.OpIadd),
					bytecode.Op(bytecode.OpIreturn),
				},
			},
		},
	}
	return image.New(calcEntry, []vm.ClassDef{def})
}

func calcImageBytes(t *testing.T) []byte {
	t.Helper()
	data, err := image.Marshal(calcImage())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return data
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func bg() context.Context {
	return context.Background()
}

func wantCode(t *testing.T, err error, code connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", code)
	}
	var ce *connect.Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *connect.Error, got %T: %v", err, err)
	}
	if ce.Code() != code {
		t.Errorf("code = %v, want %v (%v)", ce.Code(), code, err)
	}
}
