package frontmatter

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
)

const sampleID = "44cfd535-308a-4f63-9a9c-2bbf85d85c2b"

func TestDecode_FullBlock(t *testing.T) {
	input := []byte("---\n" +
		"spec_id: " + sampleID + "\n" +
		"sync_status: synced\n" +
		"issue_type: parent\n" +
		"auto_sync: true\n" +
		"last_sync: 2026-08-01T10:00:00Z\n" +
		"sync_hash: 0123456789ab\n" +
		"github:\n" +
		"  issue_number: 42\n" +
		"  labels:\n" +
		"    - spec\n" +
		"---\n\n# Title\nBody.\n")

	d, err := Decode(input)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Meta.SpecID != sampleID {
		t.Errorf("spec_id = %q", d.Meta.SpecID)
	}
	if d.Meta.SyncStatus != StatusSynced {
		t.Errorf("sync_status = %q", d.Meta.SyncStatus)
	}
	if !d.Meta.AutoSync {
		t.Error("auto_sync = false, want true")
	}
	if d.Meta.GitHub == nil || d.Meta.GitHub.IssueNumber != 42 {
		t.Errorf("github block = %+v", d.Meta.GitHub)
	}
	if d.Body != "# Title\nBody.\n" {
		t.Errorf("body = %q", d.Body)
	}
}

func TestDecode_NoBlock(t *testing.T) {
	d, err := Decode([]byte("# Just markdown\ntext\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !d.Meta.IsZero() {
		t.Errorf("expected zero meta, got %+v", d.Meta)
	}
	if d.Body != "# Just markdown\ntext\n" {
		t.Errorf("body = %q", d.Body)
	}
}

func TestDecode_UnclosedBlockIsBody(t *testing.T) {
	input := "---\nspec_id: whatever\nno closing delimiter\n"
	d, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Body != input {
		t.Errorf("body = %q", d.Body)
	}
}

func TestDecode_BadEnum(t *testing.T) {
	input := []byte("---\nsync_status: pending\n---\nbody\n")
	_, err := Decode(input)
	var fmErr *apperr.FrontmatterError
	if !errors.As(err, &fmErr) {
		t.Fatalf("expected FrontmatterError, got %v", err)
	}
	if _, ok := fmErr.Fields["sync_status"]; !ok {
		t.Errorf("error does not name sync_status: %v", fmErr)
	}
}

func TestDecode_MalformedSpecIDIsNotSchemaViolation(t *testing.T) {
	// A bad spec_id is the scanner's cue to regenerate, so decode accepts it.
	d, err := Decode([]byte("---\nspec_id: not-a-uuid\n---\nbody\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Meta.SpecID != "not-a-uuid" {
		t.Errorf("spec_id = %q", d.Meta.SpecID)
	}
}

func TestDecode_WrongFieldType(t *testing.T) {
	input := []byte("---\ngithub:\n  issue_number: [1, 2]\n---\nbody\n")
	_, err := Decode(input)
	var fmErr *apperr.FrontmatterError
	if !errors.As(err, &fmErr) {
		t.Fatalf("expected FrontmatterError, got %v", err)
	}
}

func TestDecode_MalformedYAML(t *testing.T) {
	input := []byte("---\n: bad: yaml: {{{\n---\nbody\n")
	_, err := Decode(input)
	var fmErr *apperr.FrontmatterError
	if !errors.As(err, &fmErr) {
		t.Fatalf("expected FrontmatterError, got %v", err)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	d := &Doc{
		Meta: Meta{
			SpecID:     sampleID,
			SyncStatus: StatusDraft,
			IssueType:  TypeParent,
			SyncHash:   "0123456789ab",
			GitHub:     &GitHubMeta{IssueNumber: 7, Labels: []string{"spec"}},
		},
		Body: "# Doc\n\ncontent\n",
	}

	data, err := Encode(d)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Meta.SpecID != d.Meta.SpecID || got.Meta.SyncHash != d.Meta.SyncHash {
		t.Errorf("meta mismatch: %+v", got.Meta)
	}
	if got.Meta.GitHub.IssueNumber != 7 {
		t.Errorf("issue_number = %d", got.Meta.GitHub.IssueNumber)
	}
	if got.Body != d.Body {
		t.Errorf("body = %q, want %q", got.Body, d.Body)
	}
}

func TestEncode_EmptyMetaIsBodyOnly(t *testing.T) {
	data, err := Encode(&Doc{Body: "# Plain\n"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(string(data), "---") {
		t.Errorf("empty meta emitted a block: %q", data)
	}
	if string(data) != "# Plain\n" {
		t.Errorf("data = %q", data)
	}
}

func TestDecode_PreservesUnknownFields(t *testing.T) {
	input := []byte("---\nspec_id: " + sampleID + "\ncustom_field: kept\n---\nbody\n")
	d, err := Decode(input)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Meta.Extra["custom_field"] != "kept" {
		t.Errorf("extra = %v", d.Meta.Extra)
	}

	out, err := Encode(d)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(out), "custom_field: kept") {
		t.Errorf("unknown field dropped on encode:\n%s", out)
	}
}

func TestHasChanged(t *testing.T) {
	body := "# Doc\ncontent\n"
	m := Meta{SyncHash: checksum.Fingerprint([]byte(body))}
	if HasChanged(m, body) {
		t.Error("unchanged body reported as changed")
	}
	if !HasChanged(m, body+"edit") {
		t.Error("edited body not reported as changed")
	}
	if !HasChanged(Meta{}, body) {
		t.Error("absent sync_hash should be conservatively changed")
	}
}
