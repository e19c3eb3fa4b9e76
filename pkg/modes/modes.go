// Package modes lists the conversation modes the backend understands. The
// prompt text behind each mode lives server-side; the client only carries
// the identifier it sends during session setup plus display metadata.
package modes

// Mode describes one conversation mode.
type Mode struct {
	ID      string
	Name    string
	Tagline string
}

var registry = []Mode{
	{
		ID:      "devils-advocate",
		Name:    "Devil's Advocate",
		Tagline: "Argues the strongest case against whatever you say.",
	},
	{
		ID:      "first-principles",
		Name:    "First Principles",
		Tagline: "Strips your idea down to its load-bearing assumptions.",
	},
	{
		ID:      "edge-case",
		Name:    "Edge Case",
		Tagline: "Hunts for the inputs that break your plan.",
	},
	{
		ID:      "second-order",
		Name:    "Second Order",
		Tagline: "Asks what happens after what you think happens.",
	},
}

const defaultID = "devils-advocate"

// Default returns the fallback mode.
func Default() Mode {
	m, _ := lookup(defaultID)
	return m
}

// Get returns the mode for id, falling back to the default for unknown ids.
func Get(id string) Mode {
	if m, ok := lookup(id); ok {
		return m
	}
	return Default()
}

// Known reports whether id names a registered mode.
func Known(id string) bool {
	_, ok := lookup(id)
	return ok
}

// All returns every registered mode in display order.
func All() []Mode {
	return append([]Mode(nil), registry...)
}

// IDs returns every registered mode id in display order.
func IDs() []string {
	ids := make([]string, len(registry))
	for i, m := range registry {
		ids[i] = m.ID
	}
	return ids
}

func lookup(id string) (Mode, bool) {
	for _, m := range registry {
		if m.ID == id {
			return m, true
		}
	}
	return Mode{}, false
}
