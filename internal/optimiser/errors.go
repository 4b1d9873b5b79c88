package optimiser

import "errors"

// ErrNoFeasibleTrial reports §7's NoFeasibleTrial condition: no sampled
// trial met all three of the Optimize phase's constraints (precision,
// recall, automation minima). It is not fatal — RunSearch still returns
// the trial maximising the product of the three metrics — but callers
// must surface it as a warning rather than silently accepting the
// fallback.
var ErrNoFeasibleTrial = errors.New("optimiser: no feasible trial met precision/recall/automation constraints; falling back to best product of metrics")
