package leave

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// APPROVAL SERVICE - Applies the pure engine against a Store
// =============================================================================

// Observer receives decision outcomes, e.g. for metrics.
type Observer interface {
	ObserveDecision(outcome string)
	ObserveNoPay(change NoPayChange)
}

type nopObserver struct{}

func (nopObserver) ObserveDecision(string)   {}
func (nopObserver) ObserveNoPay(NoPayChange) {}

type ApprovalService struct {
	store    Store
	engine   *Engine
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
	newID    func() string
}

type Option func(*ApprovalService)

func WithLogger(l *zap.Logger) Option       { return func(s *ApprovalService) { s.logger = l } }
func WithObserver(o Observer) Option        { return func(s *ApprovalService) { s.observer = o } }
func WithClock(now func() time.Time) Option { return func(s *ApprovalService) { s.now = now } }
func WithIDGenerator(f func() string) Option { return func(s *ApprovalService) { s.newID = f } }

func NewApprovalService(store Store, engine *Engine, opts ...Option) *ApprovalService {
	s := &ApprovalService{
		store:    store,
		engine:   engine,
		logger:   zap.NewNop(),
		observer: nopObserver{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ApprovalService) Engine() *Engine { return s.engine }

// Today is the evaluation date for balances and new employees.
func (s *ApprovalService) Today() generic.TimePoint { return generic.FromTime(s.now()) }

// ApprovalResult is what Approve did. AlreadyProcessed means an earlier call
// deducted the balance and this one changed nothing.
type ApprovalResult struct {
	Request          Request
	Employee         Employee
	Deduction        *Deduction
	NoPayChange      NoPayChange
	AlreadyProcessed bool
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// CreateEmployee saves emp. Without balances, it is seeded from the current
// year's entitlement.
func (s *ApprovalService) CreateEmployee(ctx context.Context, emp Employee) (Employee, error) {
	if emp.HireDate.IsZero() {
		return Employee{}, &generic.InvalidDateError{Input: "", Reason: "missing hire date"}
	}
	if emp.ID == "" {
		emp.ID = s.newID()
	}
	if emp.Balances == nil {
		ent, err := s.engine.Calculator.Calculate(emp.HireDate, s.Today().Year())
		if err != nil {
			return Employee{}, err
		}
		emp.Balances = s.engine.Calculator.InitialBalances(ent)
	}
	emp.NoPay = IsNoPay(emp.Balances)

	if err := s.store.SaveEmployee(ctx, emp); err != nil {
		return Employee{}, fmt.Errorf("save employee: %w", err)
	}
	return emp, nil
}

func (s *ApprovalService) Employee(ctx context.Context, id string) (*Employee, error) {
	return s.store.GetEmployee(ctx, id)
}

// Balance computes the employee's balance for year from approved requests.
// Short leave is evaluated for the current calendar month.
func (s *ApprovalService) Balance(ctx context.Context, employeeID string, year int) (Balance, error) {
	return s.balance(ctx, s.store, employeeID, year)
}

func (s *ApprovalService) balance(ctx context.Context, repo Repository, employeeID string, year int) (Balance, error) {
	emp, err := repo.GetEmployee(ctx, employeeID)
	if err != nil {
		return Balance{}, err
	}
	ent, err := s.engine.Calculator.Calculate(emp.HireDate, year)
	if err != nil {
		return Balance{}, err
	}
	asOf := s.Today()
	requests, err := s.requestsFor(ctx, repo, employeeID, year, asOf)
	if err != nil {
		return Balance{}, err
	}
	return s.engine.Reducer.CalculateBalances(ent, requests, asOf), nil
}

// RefreshBalances rebuilds the stored balances for year: the year's opening
// entitlement with every approved request replayed over it, and short leave
// reset for the current month. Deficits and cross-utilization survive a
// refresh. Balances of other types are kept.
func (s *ApprovalService) RefreshBalances(ctx context.Context, employeeID string, year int) (Employee, Balance, error) {
	var (
		emp    Employee
		bal    Balance
		change NoPayChange
	)
	err := s.store.WithTx(ctx, func(repo Repository) error {
		current, err := repo.GetEmployee(ctx, employeeID)
		if err != nil {
			return err
		}
		ent, err := s.engine.Calculator.Calculate(current.HireDate, year)
		if err != nil {
			return err
		}
		asOf := s.Today()
		requests, err := s.requestsFor(ctx, repo, employeeID, year, asOf)
		if err != nil {
			return err
		}
		bal = s.engine.Reducer.CalculateBalances(ent, requests, asOf)

		opening := current.Balances.Clone()
		for t, v := range s.engine.Calculator.InitialBalances(ent) {
			opening[t] = v
		}
		next, err := s.engine.Reducer.Replay(opening, requests, year, asOf)
		if err != nil {
			return err
		}

		emp = *current
		change = NoPayTransition(emp.NoPay, next)
		emp.Balances = next
		emp.NoPay = IsNoPay(next)
		return repo.SaveEmployee(ctx, emp)
	})
	if err != nil {
		return Employee{}, Balance{}, err
	}
	s.observer.ObserveNoPay(change)
	s.logger.Info("balances refreshed",
		zap.String("employee_id", employeeID),
		zap.Int("year", year),
		zap.String("condition", string(bal.Entitlement.Condition)),
		zap.Stringer("no_pay", change),
	)
	return emp, bal, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

// Submit validates req and stores it as Pending. Units are computed from the
// dates and times when not supplied; supplied units are checked against them.
func (s *ApprovalService) Submit(ctx context.Context, req Request) (Request, error) {
	t, err := ParseType(string(req.Type))
	if err != nil {
		return Request{}, err
	}
	req.Type = t

	emp, err := s.store.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		return Request{}, err
	}
	if err := t.EligibleFor(emp.Gender); err != nil {
		return Request{}, err
	}
	if _, err := req.Period(); err != nil {
		return Request{}, err
	}

	units, err := s.engine.Converter.ResolveUnits(req)
	if err != nil {
		return Request{}, err
	}
	req.Units = units

	if t == TypeShort {
		if err := s.checkShortLeaveCap(ctx, s.store, req); err != nil {
			return Request{}, err
		}
	}

	if req.ID == "" {
		req.ID = s.newID()
	}
	req.Status = StatusPending
	req.AppliedAt = s.now()
	req.Processed = false
	req.DecidedBy, req.DecidedAt, req.DecisionNote = "", nil, ""

	if err := s.store.SaveRequest(ctx, req); err != nil {
		return Request{}, fmt.Errorf("save request: %w", err)
	}
	s.logger.Info("leave request submitted",
		zap.String("request_id", req.ID),
		zap.String("employee_id", req.EmployeeID),
		zap.String("type", string(req.Type)),
		zap.Stringer("units", req.Units),
	)
	return req, nil
}

// Requests lists the employee's requests starting in year.
func (s *ApprovalService) Requests(ctx context.Context, employeeID string, year int) ([]Request, error) {
	if _, err := s.store.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}
	return s.store.ListRequests(ctx, employeeID, generic.YearPeriod(year))
}

// Review routes an open request without changing anything.
func (s *ApprovalService) Review(ctx context.Context, requestID string) (Routing, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return Routing{}, err
	}
	if req.Status.IsTerminal() {
		return Routing{}, &generic.TransitionError{From: string(req.Status), To: string(StatusApproved)}
	}
	emp, err := s.store.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		return Routing{}, err
	}
	return s.engine.Reducer.Route(emp.Balances, *req)
}

// Forward moves a request to one of the intermediate approval stages.
func (s *ApprovalService) Forward(ctx context.Context, requestID string, to Status, actor string) (Request, error) {
	if to != StatusPendingDepartment && to != StatusPendingHR {
		return Request{}, &generic.TransitionError{From: "", To: string(to)}
	}
	var out Request
	err := s.store.WithTx(ctx, func(repo Repository) error {
		req, err := repo.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		out, err = Transition(*req, to, actor, s.now())
		if err != nil {
			return err
		}
		return repo.SaveRequest(ctx, out)
	})
	if err != nil {
		return Request{}, err
	}
	s.logger.Info("leave request forwarded", zap.String("request_id", requestID), zap.String("status", string(to)), zap.String("actor", actor))
	return out, nil
}

// Approve deducts the request from the employee's balances exactly once.
// The new balances, the no-pay flag and the processed marker are written in
// one transaction; approving again returns AlreadyProcessed.
func (s *ApprovalService) Approve(ctx context.Context, requestID string, actor string) (ApprovalResult, error) {
	var result ApprovalResult
	err := s.store.WithTx(ctx, func(repo Repository) error {
		req, err := repo.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Processed {
			emp, err := repo.GetEmployee(ctx, req.EmployeeID)
			if err != nil {
				return err
			}
			result = ApprovalResult{Request: *req, Employee: *emp, AlreadyProcessed: true}
			return nil
		}

		next, err := Transition(*req, StatusApproved, actor, s.now())
		if err != nil {
			return err
		}
		emp, err := repo.GetEmployee(ctx, req.EmployeeID)
		if err != nil {
			return err
		}
		if err := next.Type.EligibleFor(emp.Gender); err != nil {
			return err
		}
		if next.Type == TypeShort {
			if err := s.checkShortLeaveCap(ctx, repo, next); err != nil {
				return err
			}
		}
		d, err := s.engine.Reducer.Deduct(emp.Balances, next)
		if err != nil {
			return err
		}

		change := NoPayTransition(emp.NoPay, d.After)
		updated := *emp
		updated.Balances = d.After
		updated.NoPay = d.NoPay
		if err := repo.SaveEmployee(ctx, updated); err != nil {
			return fmt.Errorf("save balances: %w", err)
		}

		next.Processed = true
		if err := repo.SaveRequest(ctx, next); err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		result = ApprovalResult{Request: next, Employee: updated, Deduction: &d, NoPayChange: change}
		return nil
	})
	if err != nil {
		s.observer.ObserveDecision("approve_failed")
		return ApprovalResult{}, err
	}

	if result.AlreadyProcessed {
		s.observer.ObserveDecision("already_processed")
		s.logger.Warn("leave request already processed", zap.String("request_id", requestID), zap.String("actor", actor))
		return result, nil
	}
	s.observer.ObserveDecision("approved")
	s.observer.ObserveNoPay(result.NoPayChange)

	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("employee_id", result.Request.EmployeeID),
		zap.String("actor", actor),
		zap.Stringer("units", result.Deduction.Units),
		zap.Stringer("no_pay", result.NoPayChange),
	}
	if cu := result.Deduction.CrossUtilization; cu != nil && cu.CrossUtilized.IsPositive() {
		fields = append(fields, zap.String("cross_utilized_from", string(cu.FallbackType)), zap.String("cross_utilized", cu.CrossUtilized.String()))
	}
	s.logger.Info("leave request approved", fields...)
	return result, nil
}

// Reject closes a request without touching balances.
func (s *ApprovalService) Reject(ctx context.Context, requestID string, actor, note string) (Request, error) {
	var out Request
	err := s.store.WithTx(ctx, func(repo Repository) error {
		req, err := repo.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		out, err = Transition(*req, StatusRejected, actor, s.now())
		if err != nil {
			return err
		}
		out.DecisionNote = note
		return repo.SaveRequest(ctx, out)
	})
	if err != nil {
		s.observer.ObserveDecision("reject_failed")
		return Request{}, err
	}
	s.observer.ObserveDecision("rejected")
	s.logger.Info("leave request rejected", zap.String("request_id", requestID), zap.String("actor", actor))
	return out, nil
}

// checkShortLeaveCap validates req against the approved short leave of its
// month, not counting req itself.
func (s *ApprovalService) checkShortLeaveCap(ctx context.Context, repo Repository, req Request) error {
	existing, err := repo.ListRequests(ctx, req.EmployeeID, generic.MonthPeriod(req.StartDate))
	if err != nil {
		return err
	}
	var others []Request
	for _, r := range existing {
		if r.ID != req.ID {
			others = append(others, r)
		}
	}
	used := s.engine.Reducer.ShortLeaveUsedInMonth(others, req.StartDate)
	if v := s.engine.Reducer.ValidateShortLeave(req.Units.Value, used); !v.Valid {
		return &generic.OutOfPolicyError{Rule: "short_leave", Value: strings.Join(v.Errors, "; ")}
	}
	return nil
}

// requestsFor loads the year's requests plus asOf's month when it lies outside the year.
func (s *ApprovalService) requestsFor(ctx context.Context, repo Repository, employeeID string, year int, asOf generic.TimePoint) ([]Request, error) {
	yearPeriod := generic.YearPeriod(year)
	requests, err := repo.ListRequests(ctx, employeeID, yearPeriod)
	if err != nil {
		return nil, err
	}
	if yearPeriod.Contains(asOf) {
		return requests, nil
	}
	month, err := repo.ListRequests(ctx, employeeID, generic.MonthPeriod(asOf))
	if err != nil {
		return nil, err
	}
	return append(requests, month...), nil
}
