package stage

// Readiness is what a stage reports about its collaborator before a run.
type Readiness string

const (
	ReadinessUp   Readiness = "ready"
	ReadinessOff  Readiness = "disabled"
	ReadinessDown Readiness = "unavailable"
)

// Health is one stage's readiness plus a short reason when it is not up.
type Health struct {
	Stage  Name
	State  Readiness
	Detail string
}

func Up(name Name) Health { return Health{Stage: name, State: ReadinessUp} }

// Off marks a stage switched off in config. Items still pass through it.
func Off(name Name, reason string) Health {
	return Health{Stage: name, State: ReadinessOff, Detail: reason}
}

// Down marks a stage whose collaborator cannot serve a run.
func Down(name Name, reason string) Health {
	return Health{Stage: name, State: ReadinessDown, Detail: reason}
}

// Ready reports whether a run may enter the stage.
func (h Health) Ready() bool { return h.State != ReadinessDown }

func (h Health) String() string {
	if h.Detail == "" {
		return string(h.State)
	}
	return string(h.State) + ": " + h.Detail
}
