package domain

// transitions lists the legal targets of every status. Same-status moves are
// handled separately as no-ops.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted: nil,
	OrderStatusCancelled: nil,
}

// AllowedTransitions returns a copy of the targets reachable from s.
func AllowedTransitions(s OrderStatus) []OrderStatus {
	out := make([]OrderStatus, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

func (s OrderStatus) Terminal() bool {
	return len(transitions[s]) == 0 && s.Valid()
}

func CanTransition(from, to OrderStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an IllegalTransition error carrying the allowed
// targets when from → to is not permitted.
func CheckTransition(from, to OrderStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	allowed := AllowedTransitions(from)
	e := Errorf(KindIllegalTransition, "cannot transition from %q to %q; allowed transitions: %s", from, to, allowedText(allowed))
	e.Allowed = allowed
	return e
}

func allowedText(ss []OrderStatus) string {
	if len(ss) == 0 {
		return "none"
	}
	return joinStatuses(ss)
}
