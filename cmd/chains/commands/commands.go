package commands

import "github.com/urfave/cli"

// Registry provides a common way to make cli.Commands available
// to an application
type Registry struct {
	commands []cli.Command
}

// RegisterCommands adds commands to the Registry
func (r *Registry) RegisterCommands(command ...cli.Command) {
	r.commands = append(r.commands, command...)
}

// GetCommands returns all registered commands
func (r *Registry) GetCommands() []cli.Command {
	out := make([]cli.Command, len(r.commands))
	copy(out, r.commands)
	return out
}

var _registry *Registry

// GetRegistry returns a singleton instance of Registry
func GetRegistry() *Registry {
	if _registry == nil {
		_registry = &Registry{}
	}
	return _registry
}
