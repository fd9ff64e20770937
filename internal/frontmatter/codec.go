package frontmatter

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
)

const delim = "---"

// Doc is one decoded markdown file: the metadata record plus the body that
// follows the metadata block.
type Doc struct {
	Meta Meta
	Body string
}

// Decode splits the metadata block from the body and validates the record
// against the schema. A file without a metadata block yields an empty Meta,
// not an error. Malformed YAML or a schema violation fails with a
// *apperr.FrontmatterError.
func Decode(data []byte) (*Doc, error) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return &Doc{Body: string(data)}, nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter: the whole file is body.
		return &Doc{Body: string(data)}, nil
	}

	block := rest[:idx]
	after := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(after), "\n\r")

	var meta Meta
	if err := yaml.Unmarshal(block, &meta); err != nil {
		return nil, &apperr.FrontmatterError{
			Fields: map[string]string{"frontmatter": err.Error()},
		}
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	return &Doc{Meta: meta, Body: body}, nil
}

// Encode serializes the record and body back into the on-disk shape. An
// empty record serializes to the body alone, with no empty block emitted.
func Encode(d *Doc) ([]byte, error) {
	if d.Meta.IsZero() {
		return []byte(d.Body), nil
	}

	block, err := yaml.Marshal(d.Meta)
	if err != nil {
		return nil, &apperr.FrontmatterError{
			Fields: map[string]string{"frontmatter": err.Error()},
		}
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	buf.Write(block)
	buf.WriteString(delim + "\n\n")
	buf.WriteString(d.Body)
	return buf.Bytes(), nil
}

// HasChanged reports whether body has diverged from the recorded sync_hash.
// An absent hash is conservatively treated as changed.
func HasChanged(m Meta, body string) bool {
	if m.SyncHash == "" {
		return true
	}
	return checksum.Fingerprint([]byte(body)) != m.SyncHash
}
