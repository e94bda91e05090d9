// Package keywords imports keyword backlogs (YAML or CSV) into the queue as
// work items. Rows are deduplicated by keyword, case-insensitively, against
// the file itself and the existing queue.
package keywords
