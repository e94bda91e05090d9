// Package document reads and writes the Markdown files that carry content
// through the pipeline.
//
// A document is a YAML header between `---` lines followed by a Markdown
// body. Parse never fails: missing or malformed headers degrade to an empty
// header or a lenient line parse, so a broken file surfaces later as a low
// quality score instead of halting a run. Serialize is the exact inverse of
// Parse for anything Parse produced, including header keys the pipeline does
// not know about.
//
// Library maps documents onto the four lifecycle directories. The `stage`
// header field is authoritative; the directory is kept in step with it by
// writing the header first and moving the file second.
package document
