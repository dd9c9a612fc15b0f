// Package classifier labels entity records with a coarse entity type.
package classifier

import (
	"entity-cluster-lab/internal/config"
	"entity-cluster-lab/internal/domain"
)

// Rule is one classification predicate and the label it assigns.
type Rule struct {
	Type  domain.EntityType
	Match func(*domain.EntityRecord) bool
}

// Classifier applies rules in order; the first match wins.
type Classifier struct {
	rules []Rule
}

// New builds the rule chain from configured thresholds.
// Any absent input makes the rule that needs it false.
func New(cfg config.ClassifierConfig) *Classifier {
	ps, be, ex, mp := cfg.ProfessionalService, cfg.BusinessEntity, cfg.Exchange, cfg.MiningPool

	return &Classifier{rules: []Rule{
		{
			Type: domain.EntityTypeProfessionalService,
			Match: func(r *domain.EntityRecord) bool {
				return r.PeakTxRate != nil && r.AddressReuseRatio != nil &&
					*r.PeakTxRate > ps.MinPeakTxRate &&
					*r.AddressReuseRatio < ps.MaxAddressReuseRatio
			},
		},
		{
			Type: domain.EntityTypeBusinessEntity,
			Match: func(r *domain.EntityRecord) bool {
				return r.BusinessHoursTxs != nil && r.NumEdges > 0 &&
					*r.BusinessHoursTxs > be.MinBusinessHoursTxs &&
					r.AvgTransactionSize > be.MinAvgTransactionSize
			},
		},
		{
			Type: domain.EntityTypeExchange,
			Match: func(r *domain.EntityRecord) bool {
				return r.IORatio != nil &&
					r.NumTransactions > ex.MinNumTransactions &&
					*r.IORatio > ex.MinIORatio
			},
		},
		{
			Type: domain.EntityTypeMiningPool,
			Match: func(r *domain.EntityRecord) bool {
				return r.NumEdges > 0 &&
					r.InDegree < mp.MaxInDegree &&
					r.AvgTransactionSize > mp.MinAvgTransactionSize
			},
		},
	}}
}

// Classify returns the label of the first matching rule, or Individual.
func (c *Classifier) Classify(r *domain.EntityRecord) domain.EntityType {
	for _, rule := range c.rules {
		if rule.Match(r) {
			return rule.Type
		}
	}
	return domain.EntityTypeIndividual
}

// ClassifyAll sets EntityType on every record.
func (c *Classifier) ClassifyAll(records []*domain.EntityRecord) {
	for _, r := range records {
		r.EntityType = c.Classify(r)
	}
}
