// Package model defines the core domain models used throughout the application.
package model

// ClassificationMethod indicates how a record was categorized.
type ClassificationMethod string

// Classification method constants.
const (
	MethodPathBased        ClassificationMethod = "Path-based"
	MethodDatabaseEnhanced ClassificationMethod = "Database-enhanced"
)

// ClassificationResult is the outcome of classifying one candidate file.
// A result is never mutated; enrichment produces a new value.
type ClassificationResult struct {
	CategoryID CategoryID
	Category   string
	Subtype    string
	Tier       RelevanceTier
	Method     ClassificationMethod
	Score      int
}

// CustomDefault marks whether a sound was user supplied or shipped with the device.
type CustomDefault string

// Custom/default indicator values.
const (
	Custom        CustomDefault = "Custom"
	Default       CustomDefault = "Default"
	UnknownOrigin CustomDefault = "Unknown"
)
