package mcpserver

// ConventionsURI is the resource URI of the vault conventions document.
const ConventionsURI = "vault://conventions"

// Conventions describes the rules the vault tools enforce when writing notes.
const Conventions = `# Vault Conventions

## Note names

- Names are paths relative to the vault root, using forward slashes:
  ` + "`" + `Projects/Roadmap.md` + "`" + `.
- Only ` + "`" + `.md` + "`" + ` and ` + "`" + `.markdown` + "`" + ` files can be edited.
- Absolute paths (` + "`" + `/notes/a.md` + "`" + `, ` + "`" + `C:\notes\a.md` + "`" + `) are rejected.
- Hidden segments (starting with a dot) and system files such as
  ` + "`" + `.DS_Store` + "`" + ` or ` + "`" + `Thumbs.db` + "`" + ` are rejected.
- A name may never resolve outside the vault root.

## Writing

- ` + "`" + `create_note` + "`" + ` never overwrites; it fails if the note exists.
- ` + "`" + `edit_note` + "`" + ` is two-step. Call it with ` + "`" + `confirmed=false` + "`" + ` first: the
  reply says whether the note will be created or overwritten and nothing is
  written. Repeat the identical call with ` + "`" + `confirmed=true` + "`" + ` to apply it.
- Edited content is stored with LF line endings and exactly one trailing
  newline. The write is atomic: readers see either the old or the new note.

## Listing

- ` + "`" + `get_notes` + "`" + ` returns every markdown note, sorted, with forward-slash paths.
- ` + "`" + `.trash` + "`" + ` is never listed. Extra glob patterns can be passed in ` + "`" + `ignore` + "`" + `,
  for example ` + "`" + `templates/**` + "`" + `.
`
