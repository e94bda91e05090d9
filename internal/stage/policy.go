package stage

// Policy decides what a stage failure does to the run.
type Policy int

const (
	// Fatal failures stop the run and fail the item.
	Fatal Policy = iota
	// NonFatal failures are logged and the run continues.
	NonFatal
)

func (p Policy) String() string {
	if p == NonFatal {
		return "non-fatal"
	}
	return "fatal"
}

var policies = map[Name]Policy{
	Generate:   Fatal,
	Illustrate: NonFatal,
	Gate:       NonFatal,
	Publish:    Fatal,
	Announce:   NonFatal,
}

// PolicyFor returns the fixed failure policy of a stage. Unknown stages are
// fatal.
func PolicyFor(name Name) Policy {
	if policy, ok := policies[name]; ok {
		return policy
	}
	return Fatal
}
