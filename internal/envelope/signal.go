package envelope

// Signal is the empty payload of start and stop.
type Signal struct{}
