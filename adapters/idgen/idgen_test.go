package idgen_test

import (
	"regexp"
	"testing"

	"github.com/himawari-bot/himawari/adapters/idgen"
)

var uuidV4 = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestUUID_Format(t *testing.T) {
	id := idgen.UUID{}.New()
	if !uuidV4.MatchString(id) {
		t.Errorf("ID %q is not a v4 UUID", id)
	}
}

func TestUUID_Unique(t *testing.T) {
	g := idgen.UUID{}
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.New()
		if seen[id] {
			t.Fatalf("duplicate ID %q", id)
		}
		seen[id] = true
	}
}

func TestSequential_Counts(t *testing.T) {
	g := idgen.NewSequential("run-")

	for i, want := range []string{"run-1", "run-2", "run-3"} {
		if got := g.New(); got != want {
			t.Errorf("call %d = %q, want %q", i, got, want)
		}
	}
}

func TestSequential_EmptyPrefix(t *testing.T) {
	g := idgen.NewSequential("")
	if got := g.New(); got != "1" {
		t.Errorf("New() = %q, want \"1\"", got)
	}
}

func TestSequential_Concurrent(t *testing.T) {
	g := idgen.NewSequential("run-")

	ids := make(chan string, 1000)
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				ids <- g.New()
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate ID %q", id)
		}
		seen[id] = true
	}
	if len(seen) != 1000 {
		t.Errorf("got %d unique IDs, want 1000", len(seen))
	}
}
