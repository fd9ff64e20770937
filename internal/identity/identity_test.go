package identity

import (
	"strings"
	"sync"
	"testing"
)

func TestGenerate_IsValid(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := Generate()
		if !IsValid(id) {
			t.Fatalf("Generate produced invalid UUID %q", id)
		}
	}
}

func TestIsValid(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"44cfd535-308a-4f63-9a9c-2bbf85d85c2b", true},
		{"44CFD535-308A-4F63-9A9C-2BBF85D85C2B", true}, // case-insensitive
		{"44cfd535-308a-1f63-9a9c-2bbf85d85c2b", false}, // wrong version
		{"44cfd535-308a-4f63-7a9c-2bbf85d85c2b", false}, // wrong variant
		{"44cfd535308a4f639a9c2bbf85d85c2b", false},     // no dashes
		{"not-a-uuid", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsValid(c.in); got != c.want {
			t.Errorf("IsValid(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestGenerate_UniqueSequential(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := Generate()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate UUID after %d generations: %s", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestGenerate_UniqueConcurrent(t *testing.T) {
	const workers = 10
	const perWorker = 1000

	results := make([][]string, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids := make([]string, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				ids = append(ids, Generate())
			}
			results[w] = ids
		}(w)
	}
	wg.Wait()

	seen := make(map[string]struct{}, workers*perWorker)
	for _, ids := range results {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				t.Fatalf("duplicate UUID across goroutines: %s", id)
			}
			seen[id] = struct{}{}
		}
	}
}

func TestEmbedExtract_RoundTrip(t *testing.T) {
	id := Generate()
	body := Embed("# Title\n\nSome body.", id)
	if got := Extract(body); got != id {
		t.Errorf("Extract = %q, want %q", got, id)
	}
}

func TestEmbed_ReplacesPriorMarker(t *testing.T) {
	first := Generate()
	second := Generate()

	body := Embed("content here", first)
	body = Embed(body, second)

	if got := Extract(body); got != second {
		t.Errorf("Extract = %q, want %q", got, second)
	}
	if n := strings.Count(body, "spec-id:"); n != 1 {
		t.Errorf("marker count = %d, want 1\nbody:\n%s", n, body)
	}
	if strings.Contains(body, first) {
		t.Error("old marker still present after re-embed")
	}
}

func TestEmbed_EmptyBody(t *testing.T) {
	id := Generate()
	body := Embed("", id)
	if got := Extract(body); got != id {
		t.Errorf("Extract = %q, want %q", got, id)
	}
}

func TestExtract_NoMarker(t *testing.T) {
	if got := Extract("plain body with no marker"); got != "" {
		t.Errorf("Extract = %q, want empty", got)
	}
}

func TestExtract_IgnoresMalformed(t *testing.T) {
	id := Generate()
	body := "<!-- spec-id: not-a-uuid-at-all-no-no-no-nope -->\n" +
		"<!-- spec-id: " + id + " -->\ntext"
	if got := Extract(body); got != id {
		t.Errorf("Extract = %q, want %q", got, id)
	}
}

func TestStrip(t *testing.T) {
	id := Generate()
	body := Embed("line one\n\nline two", id)
	stripped := Strip(body)
	if strings.Contains(stripped, "spec-id") {
		t.Errorf("marker survived Strip: %q", stripped)
	}
	if stripped != "line one\n\nline two" {
		t.Errorf("Strip = %q", stripped)
	}
}
