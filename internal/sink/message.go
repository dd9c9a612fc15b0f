package sink

import (
	"time"

	"github.com/google/uuid"

	"entity-cluster-lab/internal/domain"
)

// recordMessage is the wire form of an EntityRecord. Absent values encode as null.
type recordMessage struct {
	EntityID   int64       `json:"entity_id"`
	EntityType string      `json:"entity_type"`
	Addresses  []uuid.UUID `json:"addresses"`

	NumTransactions     int `json:"num_transactions"`
	NumEdges            int `json:"num_edges"`
	NumChains           int `json:"num_chains"`
	MaxChainLength      int `json:"max_chain_length"`
	PositionalDiversity int `json:"positional_diversity"`
	NumBlocks           int `json:"num_blocks"`

	TotalVolume        float64  `json:"total_volume"`
	AvgTransactionSize float64  `json:"avg_transaction_size"`
	MaxTransactionSize float64  `json:"max_transaction_size"`
	MinTransactionSize float64  `json:"min_transaction_size"`
	StdTransactionSize *float64 `json:"std_transaction_size"`
	MedianTxSize       *float64 `json:"median_tx_size"`
	VarianceTxSize     float64  `json:"variance_tx_size"`

	UniqueInputs    int        `json:"unique_inputs"`
	UniqueOutputs   int        `json:"unique_outputs"`
	UnspentBalance  float64    `json:"unspent_balance"`
	SpentBalance    float64    `json:"spent_balance"`
	SpentRatio      *float64   `json:"spent_ratio"`
	IORatio         *float64   `json:"io_ratio"`
	ActivityDensity *float64   `json:"activity_density"`
	AvgValuePerTx   *float64   `json:"avg_value_per_tx"`
	FirstSeen       *time.Time `json:"first_seen"`
	LastSeen        *time.Time `json:"last_seen"`

	BusinessHoursTxs  *int     `json:"business_hours_txs"`
	LargeTxRatio      *float64 `json:"large_tx_ratio"`
	MicroTxRatio      *float64 `json:"micro_tx_ratio"`
	AddressReuseRatio *float64 `json:"address_reuse_ratio"`

	PeakTxRate     *int     `json:"peak_tx_rate"`
	AvgTxRate      *float64 `json:"avg_tx_rate"`
	PeakVolumeRate *float64 `json:"peak_volume_rate"`
	AvgVolumeRate  *float64 `json:"avg_volume_rate"`

	OutDegree    int     `json:"out_degree"`
	InDegree     int     `json:"in_degree"`
	TotalOutflow float64 `json:"total_outflow"`
	TotalInflow  float64 `json:"total_inflow"`
}

type relationshipMessage struct {
	SourceEntity     int64   `json:"source_entity"`
	TargetEntity     int64   `json:"target_entity"`
	InteractionCount int     `json:"interaction_count"`
	TotalFlow        float64 `json:"total_flow"`
	AvgFlow          float64 `json:"avg_flow"`
}

func toRecordMessage(r *domain.EntityRecord) recordMessage {
	return recordMessage{
		EntityID:            r.EntityID,
		EntityType:          string(r.EntityType),
		Addresses:           r.Addresses,
		NumTransactions:     r.NumTransactions,
		NumEdges:            r.NumEdges,
		NumChains:           r.NumChains,
		MaxChainLength:      r.MaxChainLength,
		PositionalDiversity: r.PositionalDiversity,
		NumBlocks:           r.NumBlocks,
		TotalVolume:         r.TotalVolume,
		AvgTransactionSize:  r.AvgTransactionSize,
		MaxTransactionSize:  r.MaxTransactionSize,
		MinTransactionSize:  r.MinTransactionSize,
		StdTransactionSize:  r.StdTransactionSize,
		MedianTxSize:        r.MedianTxSize,
		VarianceTxSize:      r.VarianceTxSize,
		UniqueInputs:        r.UniqueInputs,
		UniqueOutputs:       r.UniqueOutputs,
		UnspentBalance:      r.UnspentBalance,
		SpentBalance:        r.SpentBalance,
		SpentRatio:          r.SpentRatio,
		IORatio:             r.IORatio,
		ActivityDensity:     r.ActivityDensity,
		AvgValuePerTx:       r.AvgValuePerTx,
		FirstSeen:           r.FirstSeen,
		LastSeen:            r.LastSeen,
		BusinessHoursTxs:    r.BusinessHoursTxs,
		LargeTxRatio:        r.LargeTxRatio,
		MicroTxRatio:        r.MicroTxRatio,
		AddressReuseRatio:   r.AddressReuseRatio,
		PeakTxRate:          r.PeakTxRate,
		AvgTxRate:           r.AvgTxRate,
		PeakVolumeRate:      r.PeakVolumeRate,
		AvgVolumeRate:       r.AvgVolumeRate,
		OutDegree:           r.OutDegree,
		InDegree:            r.InDegree,
		TotalOutflow:        r.TotalOutflow,
		TotalInflow:         r.TotalInflow,
	}
}
