package adapters

import (
	"reflect"
	"testing"
)

func TestExtractApplyPatchFilesFromEnvelope(t *testing.T) {
	args := "*** Begin Patch\n*** Update File: src/a.go\n*** Add File: src/b.go\n*** Delete File: old.go\n*** Update File: src/a.go\n*** End Patch"
	files := ExtractApplyPatchFiles(args)
	want := []string{"src/a.go", "src/b.go", "old.go"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("Expected %v, got %v", want, files)
	}
}

func TestExtractApplyPatchFilesFromJSONWrapper(t *testing.T) {
	args := `{"patch":"*** Begin Patch\n*** Update File: x.go\n*** End Patch"}`
	files := ExtractApplyPatchFiles(args)
	if !reflect.DeepEqual(files, []string{"x.go"}) {
		t.Errorf("Expected wrapped patch body scanned, got %v", files)
	}
}

func TestExtractApplyPatchFilesIgnoresNonPatchText(t *testing.T) {
	if files := ExtractApplyPatchFiles("ls -la\ncat foo.txt"); len(files) != 0 {
		t.Errorf("Expected no files, got %v", files)
	}
}

func TestExtractUnifiedDiffFiles(t *testing.T) {
	diffText := `--- a/one.go
+++ b/one.go
@@ -1,2 +1,2 @@
-old
+new
 ctx
--- /dev/null
+++ b/two.go
@@ -0,0 +1,1 @@
+hello
`
	files := ExtractUnifiedDiffFiles(diffText)
	want := []string{"one.go", "two.go"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("Expected %v, got %v", want, files)
	}
}

func TestExtractUnifiedDiffFilesKeepsRenamePair(t *testing.T) {
	diffText := `--- a/before.go
+++ b/after.go
@@ -1,1 +1,1 @@
-x
+y
`
	files := ExtractUnifiedDiffFiles(diffText)
	want := []string{"before.go", "after.go"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("Expected both sides of a rename, got %v", files)
	}
}

func TestExtractUnifiedDiffFilesToleratesGarbage(t *testing.T) {
	if files := ExtractUnifiedDiffFiles("this is not a diff"); len(files) != 0 {
		t.Errorf("Expected no files, got %v", files)
	}
}

func TestExtractPatchFilesHandlesBothFormats(t *testing.T) {
	mixed := `*** Update File: envelope.go
--- a/diffed.go
+++ b/diffed.go
@@ -1,1 +1,1 @@
-a
+b
`
	files := ExtractPatchFiles(mixed)
	if len(files) != 2 {
		t.Fatalf("Expected 2 files, got %v", files)
	}
	if files[0] != "envelope.go" {
		t.Errorf("Expected envelope file first, got %v", files)
	}
	if files[1] != "diffed.go" {
		t.Errorf("Expected diffed file second, got %v", files)
	}
}
