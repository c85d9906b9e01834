package model

// DatabaseContext is the enrichment pulled from one application database
// for one candidate file. Empty strings mean "not available".
type DatabaseContext struct {
	Reference      string
	Timestamp      string
	Participant    string
	Duration       string
	MessageContext string
	Boost          CategoryID
	Confidence     float64
}

// HasBoost reports whether the context asks for a category override.
func (c *DatabaseContext) HasBoost() bool {
	return c != nil && c.Boost != ""
}
