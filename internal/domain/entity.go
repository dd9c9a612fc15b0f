package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityType is the coarse classification label of an entity.
type EntityType string

// Entity type labels, in classifier precedence order.
const (
	EntityTypeProfessionalService EntityType = "Professional Service"
	EntityTypeBusinessEntity      EntityType = "Business Entity"
	EntityTypeExchange            EntityType = "Exchange"
	EntityTypeMiningPool          EntityType = "Mining Pool"
	EntityTypeIndividual          EntityType = "Individual"
)

// AllEntityTypes lists every label the classifier can emit.
var AllEntityTypes = []EntityType{
	EntityTypeProfessionalService,
	EntityTypeBusinessEntity,
	EntityTypeExchange,
	EntityTypeMiningPool,
	EntityTypeIndividual,
}

// FeatureStats is the statistical summary of a group of chain edges.
// Pointer fields are NULL when their denominator is zero or the value is
// otherwise undefined for the group.
type FeatureStats struct {
	NumTransactions     int // distinct CurrentTx
	NumEdges            int
	NumChains           int // distinct StartTx
	MaxChainLength      int
	PositionalDiversity int // distinct InputIndex
	NumBlocks           int

	TotalVolume        float64
	AvgTransactionSize float64
	MaxTransactionSize float64
	MinTransactionSize float64
	StdTransactionSize *float64 // sample stddev, NULL if fewer than 2 edges
	MedianTxSize       *float64 // NULL in streaming mode
	VarianceTxSize     float64  // population variance

	UniqueInputs  int // distinct PrevTx
	UniqueOutputs int // distinct (CurrentTx, Address)

	UnspentBalance float64
	SpentBalance   float64
	SpentRatio     *float64 // spent edges / edges
	IORatio        *float64 // UniqueInputs / edges

	ActivityDensity *float64 // distinct blocks per elapsed second
	AvgValuePerTx   *float64 // TotalVolume / NumTransactions

	FirstSeen *time.Time
	LastSeen  *time.Time
}

// EntityFeature is the per-address summary of all chain edges touching the address.
type EntityFeature struct {
	EntityID int64 // MIN(start_tx) over the address group
	Address  uuid.UUID
	FeatureStats
}

// BehavioralProfile summarizes edge-level behavior of one chain root.
type BehavioralProfile struct {
	EntityID          int64 // start_tx
	NumEdges          int
	BusinessHoursTxs  int
	LargeTxRatio      *float64
	MicroTxRatio      *float64
	AddressReuseRatio *float64 // distinct addresses / edges
}

// VelocityProfile summarizes hourly activity of one chain root.
type VelocityProfile struct {
	EntityID       int64 // start_tx
	ActiveHours    int   // non-empty hour buckets
	PeakTxRate     int
	AvgTxRate      float64
	PeakVolumeRate float64
	AvgVolumeRate  float64
}

// EntityRelationship is a directed flow edge between two entities.
type EntityRelationship struct {
	SourceEntity     int64
	TargetEntity     int64
	InteractionCount int
	TotalFlow        float64
	AvgFlow          float64
}

// IsSelfLoop reports whether the edge starts and ends at the same entity.
func (r *EntityRelationship) IsSelfLoop() bool {
	return r.SourceEntity == r.TargetEntity
}

// EntityRecord is the final per-entity output row.
// Corresponds to entity_records table.
type EntityRecord struct {
	EntityID  int64
	Addresses []uuid.UUID // sorted

	FeatureStats // computed over the union of the entity's address groups

	// Behavioral columns, NULL when the entity root has no profile.
	BusinessHoursTxs  *int
	LargeTxRatio      *float64
	MicroTxRatio      *float64
	AddressReuseRatio *float64

	// Velocity columns, NULL when the entity root has no timed edges.
	PeakTxRate     *int
	AvgTxRate      *float64
	PeakVolumeRate *float64
	AvgVolumeRate  *float64

	OutDegree    int
	InDegree     int
	TotalOutflow float64
	TotalInflow  float64

	EntityType EntityType
}
