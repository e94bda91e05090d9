package document

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// An empty header is tried first so a body that itself starts with a
// delimiter line is never folded into the header.
var headerPattern = regexp.MustCompile(`(?s)^---\n(?:---(?:\n|$)|(.*?)\n---(?:\n|$))(.*)$`)

// Parse splits text into header and body. It never fails: text without a
// header block yields an empty header and the whole input as body, and a
// header that is not valid YAML is read by a lenient line parser.
func Parse(text string) Document {
	normalized := text
	if strings.HasPrefix(normalized, delimiter+"\r\n") {
		normalized = strings.ReplaceAll(normalized, "\r\n", "\n")
	}
	match := headerPattern.FindStringSubmatch(normalized)
	if match == nil {
		return Document{Header: NewHeader(), Body: text}
	}
	body := strings.TrimPrefix(match[2], "\n")
	body = strings.TrimSuffix(body, "\n")
	return Document{Header: decodeHeader(match[1]), Body: body}
}

// Serialize renders doc back to text. Parse(Serialize(d)) reproduces d for
// any document Parse produced.
func Serialize(doc Document) string {
	if doc.Header.Len() == 0 {
		if !strings.HasPrefix(doc.Body, delimiter+"\n") && !strings.HasPrefix(doc.Body, delimiter+"\r\n") {
			return doc.Body
		}
		return delimiter + "\n{}\n" + delimiter + "\n\n" + doc.Body + "\n"
	}
	var b strings.Builder
	b.WriteString(delimiter)
	b.WriteByte('\n')
	b.Write(encodeHeader(doc.Header))
	b.WriteString(delimiter)
	b.WriteString("\n\n")
	b.WriteString(doc.Body)
	b.WriteByte('\n')
	return b.String()
}

// UpdateHeader parses existing, merges partial into its header and
// re-serializes, leaving the body untouched.
func UpdateHeader(existing string, partial *Header) string {
	doc := Parse(existing)
	doc.Header.Merge(partial)
	return Serialize(doc)
}

func decodeHeader(raw string) *Header {
	if strings.TrimSpace(raw) == "" {
		return NewHeader()
	}
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &root); err != nil {
		return parseLenient(raw)
	}
	if root.Kind == 0 {
		return NewHeader()
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return parseLenient(raw)
	}
	mapping := resolveAlias(root.Content[0])
	if mapping.Kind == yaml.ScalarNode && mapping.Tag == "!!null" {
		return NewHeader()
	}
	if mapping.Kind != yaml.MappingNode {
		return parseLenient(raw)
	}
	return headerFromNode(mapping)
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func headerFromNode(n *yaml.Node) *Header {
	h := NewHeader()
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := resolveAlias(n.Content[i])
		h.Set(key.Value, valueFromNode(resolveAlias(n.Content[i+1])))
	}
	return h
}

func valueFromNode(n *yaml.Node) any {
	switch n.Kind {
	case yaml.ScalarNode:
		return scalarFromNode(n)
	case yaml.MappingNode:
		for i := 0; i < len(n.Content); i += 2 {
			if resolveAlias(n.Content[i]).Kind != yaml.ScalarNode {
				return RawValue{node: n}
			}
		}
		return headerFromNode(n)
	case yaml.SequenceNode:
		items := make([]string, 0, len(n.Content))
		for _, child := range n.Content {
			child = resolveAlias(child)
			if child.Kind != yaml.ScalarNode || child.Tag != "!!str" {
				return RawValue{node: n}
			}
			items = append(items, child.Value)
		}
		return items
	default:
		return RawValue{node: n}
	}
}

func scalarFromNode(n *yaml.Node) any {
	switch n.Tag {
	case "!!null":
		return nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err == nil {
			return b
		}
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return i
		}
	case "!!float":
		var f float64
		if err := n.Decode(&f); err == nil {
			return f
		}
	case "!!str", "!!timestamp", "":
		return n.Value
	default:
		return RawValue{node: n}
	}
	return RawValue{node: n}
}

func encodeHeader(h *Header) []byte {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	err := enc.Encode(headerNode(h))
	if err == nil {
		err = enc.Close()
	}
	if err != nil {
		return encodeFlat(h)
	}
	return buf.Bytes()
}

// encodeFlat is the last-resort writer used when the YAML encoder rejects a
// node. Every value is written as a double-quoted string.
func encodeFlat(h *Header) []byte {
	var buf bytes.Buffer
	for _, key := range h.keys {
		fmt.Fprintf(&buf, "%s: %s\n", key, strconv.Quote(fmt.Sprint(h.values[key])))
	}
	return buf.Bytes()
}

func headerNode(h *Header) *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if h.Len() == 0 {
		node.Style = yaml.FlowStyle
		return node
	}
	for _, key := range h.keys {
		node.Content = append(node.Content, encodeScalar(key), valueNode(h.values[key]))
	}
	return node
}

func valueNode(v any) *yaml.Node {
	switch typed := v.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case *Header:
		return headerNode(typed)
	case RawValue:
		return typed.node
	case float64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatFloat(typed)}
	case []string:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if len(typed) == 0 {
			node.Style = yaml.FlowStyle
			return node
		}
		for _, item := range typed {
			node.Content = append(node.Content, encodeScalar(item))
		}
		return node
	default:
		return encodeScalar(v)
	}
}

// encodeScalar lets the YAML encoder choose quoting, so strings that would
// otherwise read back as another type stay strings.
func encodeScalar(v any) *yaml.Node {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Style: yaml.DoubleQuotedStyle, Value: fmt.Sprint(v)}
	}
	return &node
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	case math.IsNaN(f):
		return ".nan"
	}
	out := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(out, ".e") {
		out += ".0"
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
