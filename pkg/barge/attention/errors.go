package attention

import "fmt"

// Errors. All of these are contained at the firing/consumption boundary;
// none abort the scheduler or leak a lock.
var (
	// ErrDecisionParse means the model output carried no parseable
	// decision object. Treated as "should not reply", never retried.
	ErrDecisionParse = fmt.Errorf("attention: no parseable decision in model output")

	// ErrUpstreamUnavailable means no chat model is configured; the firing
	// is a no-op.
	ErrUpstreamUnavailable = fmt.Errorf("attention: no chat model available")

	// ErrHistoryLookup wraps history/persona source failures. The turn
	// proceeds with an empty snapshot.
	ErrHistoryLookup = fmt.Errorf("attention: history lookup failed")
)
