package hashengine

import (
	"testing"
	"time"

	"github.com/stapelberg/nbuild/internal/ir"
	"github.com/stapelberg/nbuild/internal/paths"
	"github.com/stapelberg/nbuild/internal/ports"
)

func TestPartitionInputsSplitsFileAndPhony(t *testing.T) {
	cfg := &ir.Configuration{
		Outputs: map[string]*ir.Build{
			"compiled.o": {Rule: &ir.Rule{Command: "cc -c"}},
			"all":        {Rule: nil},
		},
	}
	fileInputs, phonyInputs := PartitionInputs(cfg, []string{"main.c", "compiled.o", "all"})
	if got, want := fileInputs, []string{"main.c", "compiled.o"}; !equal(got, want) {
		t.Errorf("fileInputs = %v, want %v", got, want)
	}
	if got, want := phonyInputs, []string{"all"}; !equal(got, want) {
		t.Errorf("phonyInputs = %v, want %v", got, want)
	}
}

func TestCalculateTimestampHashStableForSameMTime(t *testing.T) {
	fs := ports.NewMemFileSystem()
	db := ports.NewMemDatabase()
	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fs.WriteFile("main.c", []byte("int main(){}"), mtime)

	cfg := &ir.Configuration{Outputs: map[string]*ir.Build{}}
	build := &ir.Build{Rule: &ir.Rule{Command: "cc -c main.c"}}

	h1, err := CalculateTimestampHash(fs, db, cfg, build, []string{"main.c"}, nil)
	if err != nil {
		t.Fatalf("CalculateTimestampHash() = %v", err)
	}
	h2, err := CalculateTimestampHash(fs, db, cfg, build, []string{"main.c"}, nil)
	if err != nil {
		t.Fatalf("CalculateTimestampHash() = %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash not stable: %d != %d", h1, h2)
	}
}

func TestCalculateTimestampHashChangesWithMTime(t *testing.T) {
	fs := ports.NewMemFileSystem()
	db := ports.NewMemDatabase()
	cfg := &ir.Configuration{Outputs: map[string]*ir.Build{}}
	build := &ir.Build{Rule: &ir.Rule{Command: "cc -c main.c"}}

	fs.WriteFile("main.c", []byte("int main(){}"), time.Unix(1000, 0))
	h1, err := CalculateTimestampHash(fs, db, cfg, build, []string{"main.c"}, nil)
	if err != nil {
		t.Fatalf("CalculateTimestampHash() = %v", err)
	}

	fs.WriteFile("main.c", []byte("int main(){}"), time.Unix(2000, 0))
	h2, err := CalculateTimestampHash(fs, db, cfg, build, []string{"main.c"}, nil)
	if err != nil {
		t.Fatalf("CalculateTimestampHash() = %v", err)
	}
	if h1 == h2 {
		t.Errorf("hash did not change after mtime update: %d", h1)
	}
}

func TestCalculateContentHashChangesWithContent(t *testing.T) {
	fs := ports.NewMemFileSystem()
	db := ports.NewMemDatabase()
	cfg := &ir.Configuration{Outputs: map[string]*ir.Build{}}
	build := &ir.Build{Rule: &ir.Rule{Command: "cc -c main.c"}}

	fixedTime := time.Unix(1000, 0)
	fs.WriteFile("main.c", []byte("int main(){}"), fixedTime)
	h1, err := CalculateContentHash(fs, db, cfg, build, []string{"main.c"}, nil)
	if err != nil {
		t.Fatalf("CalculateContentHash() = %v", err)
	}

	fs.WriteFile("main.c", []byte("int main(){return 1;}"), fixedTime)
	h2, err := CalculateContentHash(fs, db, cfg, build, []string{"main.c"}, nil)
	if err != nil {
		t.Fatalf("CalculateContentHash() = %v", err)
	}
	if h1 == h2 {
		t.Errorf("content hash did not change after edit: %d", h1)
	}
}

func TestFallbackHashIsAlwaysDirty(t *testing.T) {
	fs := ports.NewMemFileSystem()
	db := ports.NewMemDatabase()
	cfg := &ir.Configuration{Outputs: map[string]*ir.Build{}}
	build := &ir.Build{Rule: nil}

	h1, err := CalculateTimestampHash(fs, db, cfg, build, nil, nil)
	if err != nil {
		t.Fatalf("CalculateTimestampHash() = %v", err)
	}
	h2, err := CalculateTimestampHash(fs, db, cfg, build, nil, nil)
	if err != nil {
		t.Fatalf("CalculateTimestampHash() = %v", err)
	}
	if h1 == h2 {
		t.Skip("extremely unlikely but not impossible collision between two random u64s")
	}
}

func TestPhonyInputUsesDatabaseHash(t *testing.T) {
	fs := ports.NewMemFileSystem()
	db := ports.NewMemDatabase()

	interner := paths.New()
	_ = interner
	all := &ir.Build{Id: 42, Rule: nil}
	cfg := &ir.Configuration{Outputs: map[string]*ir.Build{"all": all}}
	if err := db.Set(all.Id, ir.BuildHash{Timestamp: 7, Content: 9}); err != nil {
		t.Fatalf("Set() = %v", err)
	}

	build := &ir.Build{Rule: &ir.Rule{Command: "true"}}
	h, err := CalculateTimestampHash(fs, db, cfg, build, nil, []string{"all"})
	if err != nil {
		t.Fatalf("CalculateTimestampHash() = %v", err)
	}
	h2, err := CalculateTimestampHash(fs, db, cfg, build, nil, []string{"all"})
	if err != nil {
		t.Fatalf("CalculateTimestampHash() = %v", err)
	}
	if h != h2 {
		t.Errorf("hash not stable across calls: %d != %d", h, h2)
	}
}

func TestPhonyInputNotBuiltReturnsError(t *testing.T) {
	fs := ports.NewMemFileSystem()
	db := ports.NewMemDatabase()
	cfg := &ir.Configuration{Outputs: map[string]*ir.Build{
		"all": {Id: 1, Rule: nil},
	}}
	build := &ir.Build{Rule: &ir.Rule{Command: "true"}}
	_, err := CalculateTimestampHash(fs, db, cfg, build, nil, []string{"all"})
	if err == nil {
		t.Fatal("CalculateTimestampHash() = nil error, want InputNotBuilt")
	}
}

func TestPhonyInputNotFoundReturnsError(t *testing.T) {
	fs := ports.NewMemFileSystem()
	db := ports.NewMemDatabase()
	cfg := &ir.Configuration{Outputs: map[string]*ir.Build{}}
	build := &ir.Build{Rule: &ir.Rule{Command: "true"}}
	_, err := CalculateTimestampHash(fs, db, cfg, build, nil, []string{"missing"})
	if err == nil {
		t.Fatal("CalculateTimestampHash() = nil error, want InputNotFound")
	}
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
