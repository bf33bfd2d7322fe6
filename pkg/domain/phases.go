package domain

// OrchestratorPhase is the externally observable lifecycle state of one
// orchestrated subscription.
type OrchestratorPhase string

const (
	PhaseInitializing OrchestratorPhase = "initializing"
	PhaseGuarding     OrchestratorPhase = "guarding"
	PhaseFetching     OrchestratorPhase = "fetching"
	PhaseProjecting   OrchestratorPhase = "projecting"
	PhaseReady        OrchestratorPhase = "ready"
	PhaseError        OrchestratorPhase = "error"
	PhaseStale        OrchestratorPhase = "stale"
)

// ProjectionPhase is the state of the projection sub-machine.
type ProjectionPhase string

const (
	ProjectionIdle  ProjectionPhase = "idle"
	ProjectionStale ProjectionPhase = "stale"
	ProjectionError ProjectionPhase = "error"
)
