// Package memory provides an in-memory leave.Store for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	employees map[string]leave.Employee
	requests  map[string]leave.Request
}

var _ leave.Store = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		employees: make(map[string]leave.Employee),
		requests:  make(map[string]leave.Request),
	}
}

func (m *Memory) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return getEmployee(m.employees, id)
}

func (m *Memory) SaveEmployee(_ context.Context, emp leave.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[emp.ID] = copyEmployee(emp)
	return nil
}

// ListEmployees returns all employees ordered by ID.
func (m *Memory) ListEmployees(_ context.Context) ([]leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]leave.Employee, 0, len(m.employees))
	for _, emp := range m.employees {
		out = append(out, copyEmployee(emp))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetRequest(_ context.Context, id string) (*leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return getRequest(m.requests, id)
}

func (m *Memory) SaveRequest(_ context.Context, req leave.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return saveRequest(m.employees, m.requests, req)
}

func (m *Memory) ListRequests(_ context.Context, employeeID string, period generic.Period) ([]leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return listRequests(m.requests, employeeID, period), nil
}

// ListByStatus returns requests in any of the given statuses, oldest first.
func (m *Memory) ListByStatus(_ context.Context, statuses ...leave.Status) ([]leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[leave.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []leave.Request
	for _, req := range m.requests {
		if want[req.Status] {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.Before(out[j].AppliedAt) })
	return out, nil
}

// WithTx runs fn against a copy of the data and swaps it in only if fn
// succeeds. The write lock is held throughout.
func (m *Memory) WithTx(_ context.Context, fn func(repo leave.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &txView{
		employees: make(map[string]leave.Employee, len(m.employees)),
		requests:  make(map[string]leave.Request, len(m.requests)),
	}
	for k, v := range m.employees {
		tx.employees[k] = copyEmployee(v)
	}
	for k, v := range m.requests {
		tx.requests[k] = v
	}

	if err := fn(tx); err != nil {
		return err
	}

	m.employees = tx.employees
	m.requests = tx.requests
	return nil
}

// txView is the lock-free repository WithTx hands to its callback.
type txView struct {
	employees map[string]leave.Employee
	requests  map[string]leave.Request
}

func (t *txView) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	return getEmployee(t.employees, id)
}

func (t *txView) SaveEmployee(_ context.Context, emp leave.Employee) error {
	t.employees[emp.ID] = copyEmployee(emp)
	return nil
}

func (t *txView) GetRequest(_ context.Context, id string) (*leave.Request, error) {
	return getRequest(t.requests, id)
}

func (t *txView) SaveRequest(_ context.Context, req leave.Request) error {
	return saveRequest(t.employees, t.requests, req)
}

func (t *txView) ListRequests(_ context.Context, employeeID string, period generic.Period) ([]leave.Request, error) {
	return listRequests(t.requests, employeeID, period), nil
}

// Helper functions

func getEmployee(employees map[string]leave.Employee, id string) (*leave.Employee, error) {
	emp, ok := employees[id]
	if !ok {
		return nil, fmt.Errorf("employee %s: %w", id, generic.ErrNotFound)
	}
	out := copyEmployee(emp)
	return &out, nil
}

func getRequest(requests map[string]leave.Request, id string) (*leave.Request, error) {
	req, ok := requests[id]
	if !ok {
		return nil, fmt.Errorf("leave request %s: %w", id, generic.ErrNotFound)
	}
	return &req, nil
}

func saveRequest(employees map[string]leave.Employee, requests map[string]leave.Request, req leave.Request) error {
	if _, ok := employees[req.EmployeeID]; !ok {
		return fmt.Errorf("employee %s: %w", req.EmployeeID, generic.ErrNotFound)
	}
	requests[req.ID] = req
	return nil
}

func listRequests(requests map[string]leave.Request, employeeID string, period generic.Period) []leave.Request {
	var out []leave.Request
	for _, req := range requests {
		if req.EmployeeID == employeeID && period.Contains(req.StartDate) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].AppliedAt.Before(out[j].AppliedAt)
	})
	return out
}

// copyEmployee detaches the balance map from the caller's copy.
func copyEmployee(emp leave.Employee) leave.Employee {
	emp.Balances = emp.Balances.Clone()
	return emp
}
