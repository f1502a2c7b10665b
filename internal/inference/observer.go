package inference

// Observer receives notifications from the tensor applier. Implementations
// must be cheap; they run inside the inference step.
type Observer interface {
	TensorApplied(name string, kind ApplierKind, agents int)
	UnknownOutput(name string)
	MaskFallback(name string, agentID, branch int)
	ResolvedActionCorrected(name string, agentID, branch int)
}

type nopObserver struct{}

func (nopObserver) TensorApplied(string, ApplierKind, int) {}
func (nopObserver) UnknownOutput(string) {}
func (nopObserver) MaskFallback(string, int, int) {}
func (nopObserver) ResolvedActionCorrected(string, int, int) {}
