package stage

import "strings"

// Name identifies a pipeline stage.
type Name string

const (
	Generate   Name = "generate"
	Illustrate Name = "illustrate"
	Gate       Name = "gate"
	Publish    Name = "publish"
	Announce   Name = "announce"
)

var sequence = []Name{Generate, Illustrate, Gate, Publish, Announce}

// Sequence returns the fixed stage order.
func Sequence() []Name {
	return append([]Name(nil), sequence...)
}

// From returns the stages from start (inclusive) to the end of the sequence.
// An unknown start yields nil.
func From(start Name) []Name {
	for i, name := range sequence {
		if name == start {
			return append([]Name(nil), sequence[i:]...)
		}
	}
	return nil
}

// Parse converts user input into a Name.
func Parse(value string) (Name, bool) {
	name := Name(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range sequence {
		if known == name {
			return name, true
		}
	}
	return "", false
}

// Index returns the position of n in the sequence, or -1.
func (n Name) Index() int {
	for i, name := range sequence {
		if name == n {
			return i
		}
	}
	return -1
}

func (n Name) String() string { return string(n) }
