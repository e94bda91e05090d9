// Package generation implements the generate stage: it turns an approved
// work item into a draft Document.
//
// A Provider produces text (Anthropic Messages API first, OpenRouter as the
// fallback). The prompt carries optional research excerpts and a list of
// already published posts so the article links internally. Model output is
// expected as JSON {description, secondary_keywords, faq, content}; plain
// Markdown is accepted as a fallback. Token usage and cost land in the
// header's generation map.
package generation
