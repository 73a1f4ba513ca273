package solver

import (
	"fmt"
	"math"
)

// Var identifies a scalar decision variable inside one Program.
type Var int

// Expr is an affine expression sum(Coef[i]*x[Vars[i]]) + Const.
type Expr struct {
	Vars  []Var
	Coef  []float64
	Const float64
}

// Term returns the expression c*v.
func Term(v Var, c float64) Expr {
	return Expr{Vars: []Var{v}, Coef: []float64{c}}
}

// Constant returns an expression with no variables.
func Constant(c float64) Expr { return Expr{Const: c} }

// Add appends c*v. Zero coefficients are dropped.
func (e *Expr) Add(v Var, c float64) {
	if c == 0 {
		return
	}
	e.Vars = append(e.Vars, v)
	e.Coef = append(e.Coef, c)
}

// AddExpr appends scale*o.
func (e *Expr) AddExpr(o Expr, scale float64) {
	for i, v := range o.Vars {
		e.Add(v, scale*o.Coef[i])
	}
	e.Const += scale * o.Const
}

func (e Expr) Empty() bool { return len(e.Vars) == 0 }

// Value evaluates the expression at x.
func (e Expr) Value(x []float64) float64 {
	s := e.Const
	for i, v := range e.Vars {
		s += e.Coef[i] * x[v]
	}
	return s
}

// Row identifies a constraint so its dual can be read back from a Solution.
type Row struct {
	eq  bool
	idx int
}

// NoRow is returned for constraints that were dropped because they carry no variables.
var NoRow = Row{idx: -1}

func (r Row) Valid() bool { return r.idx >= 0 }

type linRow struct {
	expr Expr
	rhs  float64
}

type squareTerm struct {
	expr   Expr
	weight float64
}

// Program is a concave maximisation problem built for one solve and then discarded:
//
//	maximise  c'x + const - sum_k w_k*(a_k'x + b_k)^2
//	s.t.      linear rows  a'x + b <= rhs
//	          equality rows a'x + b == rhs
//	          second-order cones e_0 >= ||(e_1, ..., e_m)||
//
// Fork copies the rows built so far without letting either copy see the other's appends, so
// a set of rows can be built once and reused across solves.
type Program struct {
	Name string

	names  []string
	linear Expr
	sq     []squareTerm
	ineq   []linRow
	eq     []linRow
	cones  [][]Expr
	err    error
}

func NewProgram(name string) *Program { return &Program{Name: name} }

// NumVars is the number of variables created so far.
func (p *Program) NumVars() int { return len(p.names) }

// VarName returns the debug name of v.
func (p *Program) VarName(v Var) string { return p.names[v] }

// Free creates an unbounded variable.
func (p *Program) Free(name string) Var {
	p.names = append(p.names, name)
	return Var(len(p.names) - 1)
}

// NonNeg creates a variable with x >= 0.
func (p *Program) NonNeg(name string) Var {
	v := p.Free(name)
	p.LE(Term(v, -1), 0)
	return v
}

// Bounded creates a variable with 0 <= x <= ub. A non-positive or infinite ub leaves it
// bounded below only.
func (p *Program) Bounded(name string, ub float64) Var {
	v := p.NonNeg(name)
	if ub > 0 && !math.IsInf(ub, 1) {
		p.LE(Term(v, 1), ub)
	}
	return v
}

// LE adds e <= rhs. A row without variables is checked immediately and dropped.
func (p *Program) LE(e Expr, rhs float64) Row {
	if e.Empty() {
		if e.Const > rhs+1e-9 {
			p.fail(fmt.Errorf("constant row %g <= %g is infeasible", e.Const, rhs))
		}
		return NoRow
	}
	p.ineq = append(p.ineq, linRow{expr: e, rhs: rhs})
	return Row{idx: len(p.ineq) - 1}
}

// GE adds e >= rhs.
func (p *Program) GE(e Expr, rhs float64) Row {
	var neg Expr
	neg.AddExpr(e, -1)
	return p.LE(neg, -rhs)
}

// EQ adds e == rhs. A row without variables is checked immediately and dropped.
func (p *Program) EQ(e Expr, rhs float64) Row {
	if e.Empty() {
		if d := e.Const - rhs; d > 1e-9 || d < -1e-9 {
			p.fail(fmt.Errorf("constant row %g == %g is infeasible", e.Const, rhs))
		}
		return NoRow
	}
	p.eq = append(p.eq, linRow{expr: e, rhs: rhs})
	return Row{eq: true, idx: len(p.eq) - 1}
}

// Cone adds head >= ||tail||.
func (p *Program) Cone(head Expr, tail ...Expr) {
	c := make([]Expr, 0, len(tail)+1)
	c = append(c, head)
	c = append(c, tail...)
	p.cones = append(p.cones, c)
}

// RotatedCone adds a*b >= x^2 with a, b >= 0, expressed as the standard cone
// a+b >= ||(2x, a-b)||.
func (p *Program) RotatedCone(a, b, x Expr) {
	var head, diff, twoX Expr
	head.AddExpr(a, 1)
	head.AddExpr(b, 1)
	diff.AddExpr(a, 1)
	diff.AddExpr(b, -1)
	twoX.AddExpr(x, 2)
	p.Cone(head, twoX, diff)
}

// Maximize adds e to the objective.
func (p *Program) Maximize(e Expr) { p.linear.AddExpr(e, 1) }

// Penalize subtracts w*e^2 from the objective. Non-positive weights are ignored.
func (p *Program) Penalize(e Expr, w float64) {
	if w <= 0 || e.Empty() {
		return
	}
	p.sq = append(p.sq, squareTerm{expr: e, weight: w})
}

// Objective evaluates the objective at x.
func (p *Program) Objective(x []float64) float64 {
	obj := p.linear.Value(x)
	for _, s := range p.sq {
		v := s.expr.Value(x)
		obj -= s.weight * v * v
	}
	return obj
}

// Fork returns a copy sharing the rows built so far. Appends on either side are private.
func (p *Program) Fork(name string) *Program {
	return &Program{
		Name:   name,
		names:  clip(p.names),
		linear: Expr{Vars: clip(p.linear.Vars), Coef: clip(p.linear.Coef), Const: p.linear.Const},
		sq:     clip(p.sq),
		ineq:   clip(p.ineq),
		eq:     clip(p.eq),
		cones:  clip(p.cones),
		err:    p.err,
	}
}

func clip[T any](s []T) []T { return s[:len(s):len(s)] }

func (p *Program) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

// Err reports the first structural error recorded while building.
func (p *Program) Err() error { return p.err }

// Solution is the primal/dual result of one solve.
type Solution struct {
	X []float64
	// EqDual and IneqDual are sensitivities of the maximised objective to the row right-hand
	// sides. IneqDual entries are >= 0.
	EqDual   []float64
	IneqDual []float64

	Objective float64
}

func (s *Solution) Value(v Var) float64 { return s.X[v] }

func (s *Solution) Eval(e Expr) float64 { return e.Value(s.X) }

// Dual returns the dual of r, or 0 for a dropped row.
func (s *Solution) Dual(r Row) float64 {
	if !r.Valid() {
		return 0
	}
	if r.eq {
		return s.EqDual[r.idx]
	}
	return s.IneqDual[r.idx]
}
