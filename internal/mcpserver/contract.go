package mcpserver

// SpecFormatContract describes the canonical spec file format that LLM
// consumers should follow when creating or editing spec documents.
const SpecFormatContract = `# Ansuz Spec Format Contract

Every spec document lives in its own directory under the specs root and is
named after the pattern ` + "`" + `NNN-short-name` + "`" + ` (the numeric prefix binds the
directory to its remote issue number). The canonical file is ` + "`" + `spec.md` + "`" + `.

## Structure

` + "```" + `markdown
---
spec_id: 3f8a2c1d-9b4e-4f6a-8c2d-1e5b7a9c3d4f   # REQUIRED – stable UUID identity
sync_status: draft                               # draft | synced | conflict
issue_type: parent                               # parent | subtask
auto_sync: false                                 # true opts into watcher-driven sync
last_sync: 2025-01-20T14:30:00Z                  # RFC 3339, written by the engine
sync_hash: a1b2c3d4e5f6                          # 12-hex content fingerprint
github:
  issue_number: 42
  labels: [spec]
---

# Feature title

Markdown body in standard CommonMark.
` + "```" + `

## Rules

1. **` + "`" + `spec_id` + "`" + ` is the document's identity.** Never edit or copy it between
   documents. A missing or malformed id is regenerated on the next scan.
2. **` + "`" + `sync_hash` + "`" + ` and ` + "`" + `last_sync` + "`" + ` belong to the engine.** They are written
   together after each successful sync; hand-editing them fabricates or
   destroys the sync baseline.
3. **Additional files** (` + "`" + `plan.md` + "`" + `, ` + "`" + `tasks.md` + "`" + `, ...) in the same directory
   are sub-documents and may be pushed as subtask records. Files under
   ` + "`" + `contracts/` + "`" + ` are reference material and are never pushed.
4. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes.
5. **Encoding** is UTF-8 with a trailing newline.
6. **The remote copy** of the body carries an ` + "`" + `<!-- spec-id: ... -->` + "`" + ` marker
   comment. It is added and stripped by the engine; never write it into local
   files.
`
