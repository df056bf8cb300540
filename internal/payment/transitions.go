package payment

var transitions = map[string]map[string]bool{
	StatusCreated: {
		StatusReview:     true,
		StatusFailed:     true,
		StatusAuthorized: true,
		StatusCaptured:   true,
	},
	StatusAuthorized: {
		StatusCaptured: true,
		StatusFailed:   true,
	},
}

// resolutions are the edges only an ops risk decision may take
var resolutions = map[string]map[string]bool{
	StatusReview: {
		StatusCreated: true,
		StatusFailed:  true,
	},
}

// CanTransition reports whether an intent may move from one status to another.
// review, captured and failed are terminal; review is resolved only by ops.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// CanResolve reports whether an ops risk decision may move an intent from one
// status to another. Leaving the status unchanged is always allowed.
func CanResolve(from, to string) bool {
	return from == to || transitions[from][to] || resolutions[from][to]
}
