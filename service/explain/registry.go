package explain

import (
	"fmt"

	"github.com/brojonat/stellar-explain/service/apperror"
)

// OperationExplainer explains every operation of one kind.
type OperationExplainer interface {
	Kind() OperationKind
	Explain(op Operation) (PaymentExplanation, error)
}

// Registry dispatches operations to the single explainer registered for their
// kind. Operations with no explainer are skipped.
type Registry struct {
	explainers map[OperationKind]OperationExplainer
}

// NewRegistry builds a registry. It refuses two explainers for the same kind
// and any explainer for KindUnsupported.
func NewRegistry(explainers ...OperationExplainer) (*Registry, error) {
	r := &Registry{explainers: make(map[OperationKind]OperationExplainer, len(explainers))}
	for _, e := range explainers {
		kind := e.Kind()
		if kind == KindUnsupported {
			return nil, fmt.Errorf("explainer %T claims the unsupported kind", e)
		}
		if existing, ok := r.explainers[kind]; ok {
			return nil, fmt.Errorf("kind %q claimed by both %T and %T", kind, existing, e)
		}
		r.explainers[kind] = e
	}
	return r, nil
}

// DefaultRegistry returns a registry with every built-in explainer.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(PaymentExplainer{})
	if err != nil {
		panic(err)
	}
	return r
}

// Explain dispatches op. An operation whose kind has no explainer comes back
// Skipped with a nil error.
func (r *Registry) Explain(op Operation) (ExplainedOperation, error) {
	e, ok := r.explainers[op.Kind]
	if !ok {
		return ExplainedOperation{Skipped: true}, nil
	}
	pe, err := e.Explain(op)
	if err != nil {
		return ExplainedOperation{}, err
	}
	return ExplainedOperation{Payment: &pe}, nil
}

// ExplainAll explains every operation of tx in ledger order.
func (r *Registry) ExplainAll(tx *Transaction) ([]ExplainedOperation, error) {
	out := make([]ExplainedOperation, 0, len(tx.Operations))
	for _, op := range tx.Operations {
		eo, err := r.Explain(op)
		if err != nil {
			return nil, apperror.Wrap(apperror.MalformedUpstreamData, err, "explain operation %s", op.ID)
		}
		out = append(out, eo)
	}
	return out, nil
}
