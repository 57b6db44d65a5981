package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	taskmanager "github.com/lewadaa/task-manager"
)

// Hasher produces stored password hashes.
type Hasher interface {
	Hash(password string) (string, error)
}

// Memory is a mutex-guarded principal map.
type Memory struct {
	mu    sync.RWMutex
	users map[string]taskmanager.PrincipalRecord
}

// NewMemory returns a directory holding records.
func NewMemory(records ...taskmanager.PrincipalRecord) *Memory {
	m := &Memory{users: make(map[string]taskmanager.PrincipalRecord, len(records))}
	for _, rec := range records {
		m.users[rec.Username] = rec
	}
	return m
}

// Put inserts or replaces rec.
func (m *Memory) Put(rec taskmanager.PrincipalRecord) error {
	if err := validate(rec.Username, rec.Role); err != nil {
		return err
	}
	m.mu.Lock()
	m.users[rec.Username] = rec
	m.mu.Unlock()
	return nil
}

// Register hashes password with h and stores the principal.
func (m *Memory) Register(h Hasher, username, role, password string) error {
	if h == nil {
		return errors.New("directory: nil hasher")
	}
	hash, err := h.Hash(password)
	if err != nil {
		return fmt.Errorf("directory: hash password: %w", err)
	}
	return m.Put(taskmanager.PrincipalRecord{Username: username, Role: role, PasswordHash: hash})
}

// SetRole changes an existing principal's role.
func (m *Memory) SetRole(username, role string) error {
	if err := validate(username, role); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[username]
	if !ok {
		return fmt.Errorf("%w: %s", taskmanager.ErrUnknownPrincipal, username)
	}
	rec.Role = role
	m.users[username] = rec
	return nil
}

// Remove deletes username. Removing an unknown principal is a no-op.
func (m *Memory) Remove(username string) {
	m.mu.Lock()
	delete(m.users, username)
	m.mu.Unlock()
}

// LookupPrincipal implements taskmanager.PrincipalDirectory.
func (m *Memory) LookupPrincipal(_ context.Context, username string) (taskmanager.PrincipalRecord, error) {
	m.mu.RLock()
	rec, ok := m.users[username]
	m.mu.RUnlock()
	if !ok {
		return taskmanager.PrincipalRecord{}, fmt.Errorf("%w: %s", taskmanager.ErrUnknownPrincipal, username)
	}
	return rec, nil
}

func validate(username, role string) error {
	if username == "" {
		return errors.New("directory: empty username")
	}
	switch role {
	case taskmanager.RoleUser, taskmanager.RoleAdmin:
		return nil
	default:
		return fmt.Errorf("directory: unsupported role %q", role)
	}
}
