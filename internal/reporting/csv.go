package reporting

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"entity-cluster-lab/internal/domain"
)

// EntityCSVHeader lists the entity_records export columns.
var EntityCSVHeader = []string{
	"entity_id", "entity_type", "addresses",
	"num_transactions", "num_edges", "num_chains", "max_chain_length", "positional_diversity", "num_blocks",
	"total_volume", "avg_transaction_size", "max_transaction_size", "min_transaction_size",
	"std_transaction_size", "median_tx_size", "variance_tx_size",
	"unique_inputs", "unique_outputs", "unspent_balance", "spent_balance",
	"spent_ratio", "io_ratio", "activity_density", "avg_value_per_tx",
	"first_seen", "last_seen",
	"business_hours_txs", "large_tx_ratio", "micro_tx_ratio", "address_reuse_ratio",
	"peak_tx_rate", "avg_tx_rate", "peak_volume_rate", "avg_volume_rate",
	"out_degree", "in_degree", "total_outflow", "total_inflow",
}

// RenderEntityCSV renders entity records as CSV. Absent values are empty
// cells; addresses are joined with ';'.
func RenderEntityCSV(records []*domain.EntityRecord) string {
	var sb strings.Builder

	sb.WriteString(strings.Join(EntityCSVHeader, ","))
	sb.WriteString("\n")

	for _, r := range records {
		cells := []string{
			strconv.FormatInt(r.EntityID, 10),
			string(r.EntityType),
			joinAddresses(r.Addresses),
			strconv.Itoa(r.NumTransactions),
			strconv.Itoa(r.NumEdges),
			strconv.Itoa(r.NumChains),
			strconv.Itoa(r.MaxChainLength),
			strconv.Itoa(r.PositionalDiversity),
			strconv.Itoa(r.NumBlocks),
			formatFloat(r.TotalVolume),
			formatFloat(r.AvgTransactionSize),
			formatFloat(r.MaxTransactionSize),
			formatFloat(r.MinTransactionSize),
			formatOptFloat(r.StdTransactionSize),
			formatOptFloat(r.MedianTxSize),
			formatFloat(r.VarianceTxSize),
			strconv.Itoa(r.UniqueInputs),
			strconv.Itoa(r.UniqueOutputs),
			formatFloat(r.UnspentBalance),
			formatFloat(r.SpentBalance),
			formatOptFloat(r.SpentRatio),
			formatOptFloat(r.IORatio),
			formatOptFloat(r.ActivityDensity),
			formatOptFloat(r.AvgValuePerTx),
			formatOptTime(r.FirstSeen),
			formatOptTime(r.LastSeen),
			formatOptInt(r.BusinessHoursTxs),
			formatOptFloat(r.LargeTxRatio),
			formatOptFloat(r.MicroTxRatio),
			formatOptFloat(r.AddressReuseRatio),
			formatOptInt(r.PeakTxRate),
			formatOptFloat(r.AvgTxRate),
			formatOptFloat(r.PeakVolumeRate),
			formatOptFloat(r.AvgVolumeRate),
			strconv.Itoa(r.OutDegree),
			strconv.Itoa(r.InDegree),
			formatFloat(r.TotalOutflow),
			formatFloat(r.TotalInflow),
		}
		sb.WriteString(strings.Join(cells, ","))
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderRelationshipCSV renders relationship edges as CSV.
func RenderRelationshipCSV(rels []*domain.EntityRelationship) string {
	var sb strings.Builder

	sb.WriteString("source_entity,target_entity,interaction_count,total_flow,avg_flow\n")
	for _, r := range rels {
		sb.WriteString(fmt.Sprintf("%d,%d,%d,%s,%s\n",
			r.SourceEntity,
			r.TargetEntity,
			r.InteractionCount,
			formatFloat(r.TotalFlow),
			formatFloat(r.AvgFlow),
		))
	}

	return sb.String()
}

func joinAddresses(addrs []uuid.UUID) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ";")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatOptFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatOptInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatOptTime(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}
