package reporting

import "time"

// Report is the run summary rendered to Markdown.
type Report struct {
	GeneratedAt time.Time

	Summary Summary

	// One row per label, in classifier precedence order.
	TypeCounts []TypeCountRow

	// Largest entities by total volume, descending.
	TopEntities []EntityRow

	// Heaviest relationships by total flow, descending.
	TopFlows []FlowRow
}

// Summary holds run-wide totals.
type Summary struct {
	Entities      int
	Addresses     int
	Relationships int
	SelfLoops     int
	TotalVolume   float64
	TotalFlow     float64
}

// TypeCountRow counts entities per label.
type TypeCountRow struct {
	EntityType string
	Count      int
	Share      float64 // Count / Entities, 0 when there are no entities
}

// EntityRow is one line of the top entities table.
type EntityRow struct {
	EntityID        int64
	EntityType      string
	Addresses       int
	NumTransactions int
	TotalVolume     float64
	InDegree        int
	OutDegree       int
}

// FlowRow is one line of the top flows table.
type FlowRow struct {
	SourceEntity     int64
	TargetEntity     int64
	InteractionCount int
	TotalFlow        float64
	AvgFlow          float64
}
