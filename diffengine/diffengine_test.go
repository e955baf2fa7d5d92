package diffengine

import (
	"testing"

	"github.com/abh/dateferry/inventory"
)

func file(relPath string, size uint64, b byte) inventory.File {
	f := inventory.File{RelPath: relPath, Size: size}
	f.MD5[0] = b
	return f
}

func TestDiffAllInSync(t *testing.T) {
	local := &inventory.Directory{Files: []inventory.File{file("a.txt", 5, 1), file("b.txt", 5, 2)}}
	remote := &inventory.Directory{Files: []inventory.File{file("a.txt", 5, 1), file("b.txt", 5, 2)}}

	result := Diff(local, remote)
	if len(result.MissingRemote) != 0 {
		t.Fatalf("missing = %v, want none", result.MissingRemote)
	}
	if len(result.InSync) != 2 {
		t.Fatalf("in-sync = %v, want 2", result.InSync)
	}
}

func TestDiffMissingRemote(t *testing.T) {
	local := &inventory.Directory{Files: []inventory.File{file("a.txt", 5, 1), file("b.txt", 5, 2)}}
	remote := &inventory.Directory{Files: []inventory.File{file("a.txt", 5, 1)}}

	result := Diff(local, remote)
	if len(result.MissingRemote) != 1 || result.MissingRemote[0].RelPath != "b.txt" {
		t.Fatalf("missing = %v, want [b.txt]", result.MissingRemote)
	}
	if len(result.InSync) != 1 || result.InSync[0].RelPath != "a.txt" {
		t.Fatalf("in-sync = %v, want [a.txt]", result.InSync)
	}
}

func TestDiffContentMismatchCountsAsMissing(t *testing.T) {
	local := &inventory.Directory{Files: []inventory.File{file("a.txt", 5, 1)}}
	remote := &inventory.Directory{Files: []inventory.File{file("a.txt", 5, 9)}} // different md5

	result := Diff(local, remote)
	if len(result.MissingRemote) != 1 {
		t.Fatalf("expected mismatched content to count as missing, got %+v", result)
	}
}

func TestDiffIgnoresRemoteOnlyFiles(t *testing.T) {
	local := &inventory.Directory{Files: []inventory.File{file("a.txt", 5, 1)}}
	remote := &inventory.Directory{Files: []inventory.File{file("a.txt", 5, 1), file("extra.txt", 5, 3)}}

	result := Diff(local, remote)
	if len(result.MissingRemote) != 0 {
		t.Fatalf("missing = %v, want none", result.MissingRemote)
	}
	if len(result.InSync) != 1 {
		t.Fatalf("in-sync = %v, want [a.txt]", result.InSync)
	}
}

func TestDiffEmptyLocal(t *testing.T) {
	local := &inventory.Directory{}
	remote := &inventory.Directory{Files: []inventory.File{file("a.txt", 5, 1)}}

	result := Diff(local, remote)
	if len(result.MissingRemote) != 0 || len(result.InSync) != 0 {
		t.Fatalf("expected empty result for empty local, got %+v", result)
	}
}
