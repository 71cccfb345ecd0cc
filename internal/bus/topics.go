package bus

import "github.com/sweeney/parking-gate/internal/logic"

// Default topic prefixes.
const (
	DefaultMQTTPrefix = "parking"
	DefaultNATSPrefix = "parking"
)

// Topics names every channel the controller reads or writes.
type Topics struct {
	EntryDistance string
	ExitDistance  string
	EntryGate     string
	ExitGate      string
	Events        string
	Counter       string
	System        string
}

// MQTTTopics returns slash-separated topics under prefix.
func MQTTTopics(prefix string) Topics {
	return newTopics(prefix, "/")
}

// NATSSubjects returns dot-separated subjects under prefix.
func NATSSubjects(prefix string) Topics {
	return newTopics(prefix, ".")
}

func newTopics(prefix, sep string) Topics {
	p := func(parts ...string) string {
		s := prefix
		for _, part := range parts {
			s += sep + part
		}
		return s
	}
	return Topics{
		EntryDistance: p("entry-distance"),
		ExitDistance:  p("exit-distance"),
		EntryGate:     p("gate", "entry"),
		ExitGate:      p("gate", "exit"),
		Events:        p("events"),
		Counter:       p("counter"),
		System:        p("system"),
	}
}

// LaneFor maps a distance topic to its lane.
func (t Topics) LaneFor(topic string) (logic.Lane, bool) {
	switch topic {
	case t.EntryDistance:
		return logic.LaneEntry, true
	case t.ExitDistance:
		return logic.LaneExit, true
	}
	return "", false
}

// DistanceTopic returns the ingestion topic for a lane.
func (t Topics) DistanceTopic(lane logic.Lane) string {
	if lane == logic.LaneExit {
		return t.ExitDistance
	}
	return t.EntryDistance
}

// GateTopic returns the actuation topic for a lane.
func (t Topics) GateTopic(lane logic.Lane) string {
	if lane == logic.LaneExit {
		return t.ExitGate
	}
	return t.EntryGate
}
