package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrDuplicateCommand = errors.New("command already registered")
	ErrUnknownCommand   = errors.New("unknown command")
)

// Host is the editor surface the plugin runs against.
type Host interface {
	RegisterCommand(cmd Command) error
	InsertAtCursor(ctx context.Context, text string) error
	LoadConfig(ctx context.Context) ([]byte, error)
	SaveConfig(ctx context.Context, data []byte) error
}

// Command is a user-triggerable action.
type Command struct {
	ID   string                          `json:"id"`
	Name string                          `json:"name"`
	Run  func(ctx context.Context) error `json:"-"`
}

// Registry holds commands by id. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds cmd. Ids must be unique and non-empty.
func (r *Registry) Register(cmd Command) error {
	if cmd.ID == "" || cmd.Run == nil {
		return fmt.Errorf("register command: id and run are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.commands[cmd.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, cmd.ID)
	}
	r.commands[cmd.ID] = cmd
	return nil
}

// Run invokes the command registered under id.
func (r *Registry) Run(ctx context.Context, id string) error {
	r.mu.RLock()
	cmd, ok := r.commands[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, id)
	}
	return cmd.Run(ctx)
}

// List returns registered commands sorted by id.
func (r *Registry) List() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
