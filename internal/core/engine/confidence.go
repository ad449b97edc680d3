package engine

// Business-object fields of a transaction suggestion.
const (
	FieldAmount      = "amount"
	FieldDate        = "date"
	FieldPropertyID  = "propertyId"
	FieldLeaseID     = "leaseId"
	FieldTenantID    = "tenantId"
	FieldNature      = "nature"
	FieldCategory    = "category"
	FieldCategoryID  = "categoryId"
	FieldPeriod      = "period"
	FieldPeriodMonth = "periodMonth"
	FieldPeriodYear  = "periodYear"
	FieldLabel       = "label"
)

// confidenceWeights is ordered so aggregation sums in a fixed sequence.
var confidenceWeights = []struct {
	field  string
	weight float64
}{
	{FieldAmount, 1.5},
	{FieldDate, 1.3},
	{FieldPropertyID, 1.2},
	{FieldNature, 1.0},
	{FieldCategoryID, 1.0},
	{FieldPeriod, 0.8},
	{FieldLabel, 0.5},
}

// AggregateConfidence is the weighted mean of the per-field confidences in
// the weight table. Absent fields are left out of both sums.
func AggregateConfidence(fields map[string]float64) float64 {
	var num, den float64
	for _, w := range confidenceWeights {
		c, ok := fields[w.field]
		if !ok {
			continue
		}
		num += w.weight * c
		den += w.weight
	}
	if den == 0 {
		return 0
	}
	return num / den
}
