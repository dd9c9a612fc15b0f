package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Entity Clustering Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Entities | %d |\n", r.Summary.Entities))
	sb.WriteString(fmt.Sprintf("| Addresses | %d |\n", r.Summary.Addresses))
	sb.WriteString(fmt.Sprintf("| Relationships | %d |\n", r.Summary.Relationships))
	sb.WriteString(fmt.Sprintf("| Self-loops | %d |\n", r.Summary.SelfLoops))
	sb.WriteString(fmt.Sprintf("| Total Volume | %.4f |\n", r.Summary.TotalVolume))
	sb.WriteString(fmt.Sprintf("| Total Flow | %.4f |\n", r.Summary.TotalFlow))
	sb.WriteString("\n")

	// Labels
	sb.WriteString("## Entity Types\n\n")
	sb.WriteString("| Type | Count | Share |\n")
	sb.WriteString("|------|-------|-------|\n")
	for _, c := range r.TypeCounts {
		sb.WriteString(fmt.Sprintf("| %s | %d | %.2f%% |\n", c.EntityType, c.Count, c.Share*100))
	}
	sb.WriteString("\n")

	// Top entities
	sb.WriteString("## Top Entities by Volume\n\n")
	if len(r.TopEntities) > 0 {
		sb.WriteString("| Entity | Type | Addresses | Txs | Volume | In | Out |\n")
		sb.WriteString("|--------|------|-----------|-----|--------|----|-----|\n")
		for _, e := range r.TopEntities {
			sb.WriteString(fmt.Sprintf("| %d | %s | %d | %d | %.4f | %d | %d |\n",
				e.EntityID, e.EntityType, e.Addresses, e.NumTransactions, e.TotalVolume, e.InDegree, e.OutDegree))
		}
	} else {
		sb.WriteString("No entities available.\n")
	}
	sb.WriteString("\n")

	// Top flows
	sb.WriteString("## Top Flows\n\n")
	if len(r.TopFlows) > 0 {
		sb.WriteString("| Source | Target | Interactions | Total | Avg |\n")
		sb.WriteString("|--------|--------|--------------|-------|-----|\n")
		for _, f := range r.TopFlows {
			sb.WriteString(fmt.Sprintf("| %d | %d | %d | %.4f | %.4f |\n",
				f.SourceEntity, f.TargetEntity, f.InteractionCount, f.TotalFlow, f.AvgFlow))
		}
	} else {
		sb.WriteString("No relationships available.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
