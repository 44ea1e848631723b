package workorders

// Effect is the side effect attached to a status change.
type Effect int

const (
	// EffectNone is a plain status update.
	EffectNone Effect = iota
	// EffectBookRevenue stamps finalized_at and books the order revenue.
	EffectBookRevenue
)

func (e Effect) String() string {
	switch e {
	case EffectBookRevenue:
		return "book_revenue"
	default:
		return "none"
	}
}

type transition struct {
	from   func(Status) bool
	to     Status
	effect Effect
}

func notFinalized(s Status) bool { return s != StatusFinalized }

// transitions lists the status changes that carry an effect. Any pair not
// matched here is allowed and has no effect: the workflow graph is not
// enforced.
var transitions = []transition{
	{from: notFinalized, to: StatusFinalized, effect: EffectBookRevenue},
}

// PlanTransition returns the effect of moving an order from one status to another.
func PlanTransition(from, to Status) Effect {
	for _, t := range transitions {
		if t.to == to && t.from(from) {
			return t.effect
		}
	}
	return EffectNone
}
