package privacy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/syssam/anansi"
)

// Policy decision sentinel errors.
//
// Rules return these values to steer the evaluation of a policy. Use
// errors.Is to check for them:
//
//	if errors.Is(err, privacy.Deny) { ... }
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision.
	Allow = errors.New("anansi/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	Deny = errors.New("anansi/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule in the chain.
	Skip = errors.New("anansi/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Query is a read action under evaluation. Rules may narrow Context;
// the storage sees the narrowed context.
type Query struct {
	Kind    anansi.ActionKind
	Schema  *anansi.Schema
	Context *anansi.Context
}

// Where narrows the query to the rows matching p.
func (q *Query) Where(p anansi.Predicate) {
	q.Context.Where = anansi.And(q.Context.Where, p)
}

// Mutation is a write action under evaluation. Record is the record being
// saved or deleted. Collection saves and deletes are evaluated once per
// record; a collection delete without records is evaluated once with a
// nil Record and filters through Context.
type Mutation struct {
	Kind    anansi.ActionKind
	Schema  *anansi.Schema
	Record  *anansi.Model
	Context *anansi.Context
}

// Field returns the current value of the named field of the record.
func (m *Mutation) Field(name string) (any, bool) {
	if m.Record == nil {
		return nil, false
	}
	v, ok := m.Record.FieldValues()[name]
	return v, ok
}

// Where narrows a record-less delete to the rows matching p. It reports
// false when the mutation targets a record.
func (m *Mutation) Where(p anansi.Predicate) bool {
	if m.Record != nil {
		return false
	}
	m.Context.Where = anansi.And(m.Context.Where, p)
	return true
}

type (
	// QueryRule defines the interface deciding whether a query is
	// allowed and optionally narrowing it.
	QueryRule interface {
		EvalQuery(context.Context, *Query) error
	}

	// QueryPolicy combines multiple query rules into a single policy.
	QueryPolicy []QueryRule

	// MutationRule defines the interface deciding whether a mutation is
	// allowed.
	MutationRule interface {
		EvalMutation(context.Context, *Mutation) error
	}

	// MutationPolicy combines multiple mutation rules into a single policy.
	MutationPolicy []MutationRule

	// QueryMutationRule is an interface which groups query and mutation rules.
	QueryMutationRule interface {
		QueryRule
		MutationRule
	}
)

// QueryRuleFunc type is an adapter which allows the use of ordinary
// functions as query rules.
type QueryRuleFunc func(context.Context, *Query) error

// EvalQuery returns f(ctx, q).
func (f QueryRuleFunc) EvalQuery(ctx context.Context, q *Query) error {
	return f(ctx, q)
}

// MutationRuleFunc type is an adapter which allows the use of ordinary
// functions as mutation rules.
type MutationRuleFunc func(context.Context, *Mutation) error

// EvalMutation returns f(ctx, m).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, m *Mutation) error {
	return f(ctx, m)
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() QueryMutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() QueryMutationRule {
	return fixedDecision{Deny}
}

// ContextQueryMutationRule creates a query/mutation rule from a context
// evaluation function. Returning nil is equivalent to returning Skip.
func ContextQueryMutationRule(eval func(context.Context) error) QueryMutationRule {
	return contextDecision{eval}
}

// OnMutationOperation evaluates the given rule only on the given action
// kinds.
func OnMutationOperation(rule MutationRule, kinds ...anansi.ActionKind) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m *Mutation) error {
		if slices.Contains(kinds, m.Kind) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// DenyMutationOperationRule returns a rule denying the given action kinds.
func DenyMutationOperationRule(kinds ...anansi.ActionKind) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, m *Mutation) error {
		return Denyf("anansi/privacy: operation %s is not allowed", m.Kind)
	})
	return OnMutationOperation(rule, kinds...)
}

// AllowMutationOperationRule returns a rule allowing the given action kinds.
func AllowMutationOperationRule(kinds ...anansi.ActionKind) MutationRule {
	rule := MutationRuleFunc(func(context.Context, *Mutation) error {
		return Allow
	})
	return OnMutationOperation(rule, kinds...)
}

// Policy groups query and mutation policies.
type Policy struct {
	Query    QueryPolicy
	Mutation MutationPolicy
}

// EvalQuery forwards evaluation to the query policy.
func (p Policy) EvalQuery(ctx context.Context, q *Query) error {
	return p.Query.EvalQuery(ctx, q)
}

// EvalMutation forwards evaluation to the mutation policy.
func (p Policy) EvalMutation(ctx context.Context, m *Mutation) error {
	return p.Mutation.EvalMutation(ctx, m)
}

// EvalQuery evaluates a query against a query policy.
func (policies QueryPolicy) EvalQuery(ctx context.Context, q *Query) error {
	for _, policy := range policies {
		switch decision := policy.EvalQuery(ctx, q); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// EvalMutation evaluates a mutation against a mutation policy.
func (policies MutationPolicy) EvalMutation(ctx context.Context, m *Mutation) error {
	for _, policy := range policies {
		switch decision := policy.EvalMutation(ctx, m); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// Policies combines multiple policies into a single policy. Evaluation
// stops at the first Allow or Deny.
type Policies []Policy

// EvalQuery evaluates the query policies.
func (policies Policies) EvalQuery(ctx context.Context, q *Query) error {
	return policies.eval(ctx, func(p Policy) error { return p.EvalQuery(ctx, q) })
}

// EvalMutation evaluates the mutation policies.
func (policies Policies) EvalMutation(ctx context.Context, m *Mutation) error {
	return policies.eval(ctx, func(p Policy) error { return p.EvalMutation(ctx, m) })
}

func (policies Policies) eval(ctx context.Context, eval func(Policy) error) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, policy := range policies {
		switch decision := eval(policy); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attached to it. A decision in the context bypasses
// every policy, which is how system tasks run unrestricted:
//
//	ctx = privacy.DecisionContext(ctx, privacy.Allow)
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalQuery(context.Context, *Query) error {
	return f.decision
}

func (f fixedDecision) EvalMutation(context.Context, *Mutation) error {
	return f.decision
}

type contextDecision struct {
	eval func(context.Context) error
}

func (c contextDecision) EvalQuery(ctx context.Context, _ *Query) error {
	return c.eval(ctx)
}

func (c contextDecision) EvalMutation(ctx context.Context, _ *Mutation) error {
	return c.eval(ctx)
}

// Guard enforces policies on the actions of a store. A schema policy is
// evaluated before the default policy.
type Guard struct {
	def      Policy
	policies map[string]Policy
	logger   *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithDefault sets the policy evaluated for every schema.
func WithDefault(p Policy) Option {
	return func(g *Guard) { g.def = p }
}

// For sets the policy of the named schema.
func For(schema string, p Policy) Option {
	return func(g *Guard) { g.policies[schema] = p }
}

// WithLogger sets the logger of denied actions.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// NewGuard returns a guard with the given policies.
func NewGuard(opts ...Option) *Guard {
	g := &Guard{policies: make(map[string]Policy), logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Middleware returns a guard middleware with the given policies. Place it
// before caching middleware so that narrowed queries are cached apart.
func Middleware(opts ...Option) anansi.Middleware {
	return NewGuard(opts...).Middleware()
}

// Middleware returns the store middleware of the guard.
func (g *Guard) Middleware() anansi.Middleware {
	return anansi.MiddlewareFunc(func(next anansi.Handler) anansi.Handler {
		return func(ctx context.Context, a anansi.Action) (any, error) {
			a, err := g.eval(ctx, a)
			if err != nil {
				return nil, err
			}
			return next(ctx, a)
		}
	})
}

func (g *Guard) policy(s *anansi.Schema) Policies {
	if s == nil {
		return Policies{g.def}
	}
	if p, ok := g.policies[s.Name()]; ok {
		return Policies{p, g.def}
	}
	return Policies{g.def}
}

// eval evaluates the policies of a. Read actions and record-less deletes
// are returned with a copied context the rules may narrow.
func (g *Guard) eval(ctx context.Context, a anansi.Action) (anansi.Action, error) {
	s := a.Target()
	policies := g.policy(s)
	switch a := a.(type) {
	case *anansi.GetRecordsAction:
		c := a.Options().Copy()
		if err := g.query(ctx, policies, &Query{Kind: a.Kind(), Schema: s, Context: c}); err != nil {
			return nil, err
		}
		return &anansi.GetRecordsAction{Schema: a.Schema, Context: c}, nil
	case *anansi.GetCountAction:
		c := a.Options().Copy()
		if err := g.query(ctx, policies, &Query{Kind: a.Kind(), Schema: s, Context: c}); err != nil {
			return nil, err
		}
		return &anansi.GetCountAction{Schema: a.Schema, Context: c}, nil
	case *anansi.SaveRecordAction:
		return a, g.mutation(ctx, policies, &Mutation{Kind: a.Kind(), Schema: s, Record: a.Record, Context: a.Options()})
	case *anansi.DeleteRecordAction:
		return a, g.mutation(ctx, policies, &Mutation{Kind: a.Kind(), Schema: s, Record: a.Record, Context: a.Options()})
	case *anansi.SaveCollectionAction:
		return a, g.records(ctx, policies, a, a.Collection)
	case *anansi.DeleteCollectionAction:
		if a.Collection.IsStatic() {
			return a, g.records(ctx, policies, a, a.Collection)
		}
		c := a.Options().Copy()
		if err := g.mutation(ctx, policies, &Mutation{Kind: a.Kind(), Schema: s, Context: c}); err != nil {
			return nil, err
		}
		return &anansi.DeleteCollectionAction{Collection: a.Collection, Context: c}, nil
	}
	return a, nil
}

func (g *Guard) records(ctx context.Context, policies Policies, a anansi.Action, coll *anansi.Collection) error {
	records, err := coll.Records(ctx)
	if err != nil {
		return err
	}
	for _, r := range records {
		m, ok := r.(*anansi.Model)
		if !ok {
			continue
		}
		if err := g.mutation(ctx, policies, &Mutation{Kind: a.Kind(), Schema: a.Target(), Record: m, Context: a.Options()}); err != nil {
			return err
		}
	}
	return nil
}

func (g *Guard) query(ctx context.Context, policies Policies, q *Query) error {
	return g.decide(ctx, q.Kind, q.Schema, "query", policies.EvalQuery(ctx, q))
}

func (g *Guard) mutation(ctx context.Context, policies Policies, m *Mutation) error {
	return g.decide(ctx, m.Kind, m.Schema, "mutation", policies.EvalMutation(ctx, m))
}

// decide turns a policy decision into the error of the action. Denials
// become privacy errors; other errors are returned as is.
func (g *Guard) decide(ctx context.Context, kind anansi.ActionKind, s *anansi.Schema, op string, decision error) error {
	if decision == nil {
		return nil
	}
	if !errors.Is(decision, Deny) {
		return decision
	}
	name := ""
	if s != nil {
		name = s.Name()
	}
	g.logger.InfoContext(ctx, "anansi: privacy denied",
		slog.String("action", kind.String()),
		slog.String("schema", name),
		slog.String("reason", decision.Error()),
	)
	return &DenyError{PrivacyError: anansi.NewPrivacyError(name, op, decision.Error()), Decision: decision}
}

// DenyError is returned for denied actions. It is an anansi.PrivacyError
// and unwraps to the rule decision, so both anansi.IsPrivacyError and
// errors.Is(err, privacy.Deny) hold.
type DenyError struct {
	*anansi.PrivacyError
	Decision error
}

// Unwrap returns the privacy error and the rule decision.
func (e *DenyError) Unwrap() []error {
	return []error{e.PrivacyError, e.Decision}
}

var (
	_ QueryMutationRule = fixedDecision{}
	_ QueryMutationRule = contextDecision{}
)
