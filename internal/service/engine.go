package service

// Engine wires the four engine services over one shared set of collaborators.
type Engine struct {
	Directory  *AgentDirectory
	Assignment *AssignmentService
	Lifecycle  *LifecycleService
	Transfers  *TransferService
}

// NewEngine builds the services and registers the deactivation cascade.
func NewEngine(deps Dependencies) *Engine {
	directory := NewAgentDirectory(deps)
	assignment := NewAssignmentService(directory)
	lifecycle := NewLifecycleService(directory)
	transfers := NewTransferService(lifecycle)
	directory.OnDeactivate(lifecycle.ReleaseAgentTickets)

	return &Engine{
		Directory:  directory,
		Assignment: assignment,
		Lifecycle:  lifecycle,
		Transfers:  transfers,
	}
}
