package keywords

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"quill/internal/queue"
	"quill/internal/services"
)

// Entry is one row of a keyword backlog.
type Entry struct {
	Keyword   string `yaml:"keyword"`
	Title     string `yaml:"title"`
	Template  string `yaml:"template"`
	Category  string `yaml:"category"`
	Intent    string `yaml:"intent"`
	Priority  int    `yaml:"priority"`
	Verdict   string `yaml:"verdict"`
	Rationale string `yaml:"rationale"`
	Validated bool   `yaml:"validated"`

	// Line is the source line, for error messages.
	Line int `yaml:"-"`
}

// LoadFile parses path by extension: .yaml/.yml or .csv.
func LoadFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "import", "open", path, err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(file)
	case ".csv":
		return ParseCSV(file)
	default:
		return nil, services.Wrap(services.ErrValidation, "import", "detect format",
			fmt.Sprintf("%s: expected .yaml, .yml or .csv", filepath.Base(path)), nil)
	}
}

// ParseYAML accepts a sequence of entries, a sequence of plain keyword
// strings, or a mapping with a `keywords` sequence.
func ParseYAML(r io.Reader) ([]Entry, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrValidation, "import", "parse yaml", err.Error(), nil)
	}
	node := &root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind == yaml.MappingNode {
		var list *yaml.Node
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "keywords" {
				list = node.Content[i+1]
			}
		}
		if list == nil {
			return nil, services.Wrap(services.ErrValidation, "import", "parse yaml", "mapping has no keywords list", nil)
		}
		node = list
	}
	if node.Kind != yaml.SequenceNode {
		return nil, services.Wrap(services.ErrValidation, "import", "parse yaml", "expected a list of keywords", nil)
	}

	entries := make([]Entry, 0, len(node.Content))
	for _, child := range node.Content {
		var entry Entry
		switch child.Kind {
		case yaml.ScalarNode:
			entry.Keyword = child.Value
		case yaml.MappingNode:
			if err := child.Decode(&entry); err != nil {
				return nil, services.Wrap(services.ErrValidation, "import", "parse yaml",
					fmt.Sprintf("line %d: %v", child.Line, err), nil)
			}
		default:
			continue
		}
		entry.Line = child.Line
		entries = append(entries, entry)
	}
	return entries, nil
}

// ParseCSV reads a header row followed by data rows. Only the keyword
// column is required; unknown columns are ignored.
func ParseCSV(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "import", "parse csv", err.Error(), nil)
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := columns["keyword"]; !ok {
		return nil, services.Wrap(services.ErrValidation, "import", "parse csv", "missing keyword column", nil)
	}

	var entries []Entry
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "import", "parse csv", fmt.Sprintf("line %d: %v", line, err), nil)
		}
		field := func(name string) string {
			i, ok := columns[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		entry := Entry{
			Keyword:   field("keyword"),
			Title:     field("title"),
			Template:  field("template"),
			Category:  field("category"),
			Intent:    field("intent"),
			Verdict:   field("verdict"),
			Rationale: field("rationale"),
			Line:      line,
		}
		if p := field("priority"); p != "" {
			if n, err := strconv.Atoi(p); err == nil {
				entry.Priority = n
			}
		}
		if v := field("validated"); v != "" {
			entry.Validated, _ = strconv.ParseBool(v)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// verdict resolves the stored verdict. A verdict in the file marks the row
// pre-validated.
func (e Entry) verdict() (queue.Verdict, bool) {
	if strings.TrimSpace(e.Verdict) == "" {
		return "", e.Validated
	}
	return queue.ParseVerdict(e.Verdict), true
}
