// Package telemetry carries observability events out of the orchestrator
// core. It never makes decisions based on its own output — emission is
// fire-and-forget from the caller's point of view.
package telemetry

// Event is one observability record: a session produced some signal at a
// point in a run.
type Event struct {
	SessionID string
	RunID     string
	Step      int
	NodeID    string
	Msg       string
	Meta      map[string]interface{}
}
