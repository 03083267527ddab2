package usd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenClassifiesFailures(t *testing.T) {
	dir := t.TempDir()

	textFile := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(textFile, []byte("not a scene"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	headerless := filepath.Join(dir, "headerless.usda")
	if err := os.WriteFile(headerless, []byte("def Xform \"a\" {}\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	crate := filepath.Join(dir, "scene.usd")
	if err := os.WriteFile(crate, []byte("PXR-USDC\x00\x01"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	archive := filepath.Join(dir, "scene.usdz")
	if err := os.WriteFile(archive, []byte("PK\x03\x04"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cases := []struct {
		name string
		path string
		kind ErrorKind
	}{
		{"empty path", "   ", KindInvalidArgument},
		{"missing file", filepath.Join(dir, "missing.usda"), KindNotFound},
		{"directory", dir, KindNotFound},
		{"wrong extension", textFile, KindUnsupportedFormat},
		{"missing header", headerless, KindUnsupportedFormat},
		{"binary crate", crate, KindUnsupportedFormat},
		{"usdz archive", archive, KindUnsupportedFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Open(tc.path)
			if err == nil {
				t.Fatal("expected error")
			}
			if KindOf(err) != tc.kind {
				t.Errorf("expected kind %s, got %s (%v)", tc.kind, KindOf(err), err)
			}
		})
	}
}

func TestOpenUsdExtensionWithTextContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.usd")
	if err := os.WriteFile(path, []byte("#usda 1.0\ndef Sphere \"ball\"\n{\n}\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	stage, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if stage.PrimCount() != 1 {
		t.Errorf("expected 1 prim, got %d", stage.PrimCount())
	}
	if !filepath.IsAbs(stage.Identifier()) {
		t.Errorf("identifier should be absolute, got %q", stage.Identifier())
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(Errorf(KindPrimNotFound, "x")) != KindPrimNotFound {
		t.Error("expected prim_not_found kind")
	}
	if KindOf(os.ErrClosed) != KindInternal {
		t.Error("unclassified errors should map to internal_error")
	}
	if !IsKind(Errorf(KindNotFound, "x"), KindNotFound) {
		t.Error("IsKind should match")
	}
	if IsKind(nil, KindNotFound) {
		t.Error("IsKind(nil) should be false")
	}
}
