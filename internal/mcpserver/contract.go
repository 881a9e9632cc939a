package mcpserver

// NoteFormatURI is the resource describing the note format.
const NoteFormatURI = "neno://note-format"

// NoteFormatContract tells LLM clients how to write note content.
const NoteFormatContract = `# Note Format

Notes are plain text in subwaytext, a line-oriented markup. Each line is one
block unless it continues a paragraph, list or code block.

## Blocks

| Line starts with | Block |
|---|---|
| ` + "`# `" + ` | heading |
| ` + "`- `" + ` | unordered list item |
| ` + "`1. `" + ` | ordered list item |
| ` + "`> `" + ` | quote |
| ` + "```" + ` | code block until the closing fence |
| ` + "`/slug`" + ` alone on the line | slashlink block |
| ` + "`https://...`" + ` alone on the line | URL block |
| anything else | paragraph |

Empty lines separate blocks and are not blocks themselves.

## Links

- ` + "`/other-note`" + ` links to the note with slug ` + "`other-note`" + `. Slugs may contain
  slashes: ` + "`/tools/go`" + `.
- ` + "`[[Other Note]]`" + ` links to the slug derived from the text (` + "`other-note`" + `).
  A double slash becomes a slash: ` + "`[[Tools//Go]]`" + ` links to ` + "`tools/go`" + `.
- ` + "`/files/<fileId>`" + ` references an uploaded file. Use the ` + "`upload_file`" + ` tool
  and paste the returned reference.
- Bare ` + "`https://`" + ` URLs inside text are hyperlinks.

## Titles and slugs

The title is the first non-empty line with block markers removed. When no
slug is given, one is derived from the title; collisions append "-2".

## Example

` + "```" + `
# Weekly standup

Attendees: [[Alice]] and /bob.

- review /projects/roadmap
- upload the whiteboard photo

/files/1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed.jpg
` + "```" + `
`
