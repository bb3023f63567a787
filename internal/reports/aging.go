package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgingBucket labels, oldest last.
const (
	BucketCurrent = "current"
	Bucket31to60  = "31-60"
	Bucket61to90  = "61-90"
	BucketOver90  = "90+"
)

// AgingBucket is the outstanding total inside one days-outstanding band.
type AgingBucket struct {
	Bucket string          `json:"bucket"`
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

// AgingReport buckets outstanding source-record balances by days past due.
type AgingReport struct {
	AsOf    string          `json:"as_of"`
	Buckets []AgingBucket   `json:"buckets"`
	Total   decimal.Decimal `json:"total"`
}

// BuildAging distributes each document's own balance into a bucket by days
// outstanding as of the given date.
func BuildAging(docs []OutstandingDoc, asOf time.Time) AgingReport {
	buckets := []AgingBucket{
		{Bucket: BucketCurrent, Amount: decimal.Zero},
		{Bucket: Bucket31to60, Amount: decimal.Zero},
		{Bucket: Bucket61to90, Amount: decimal.Zero},
		{Bucket: BucketOver90, Amount: decimal.Zero},
	}
	total := decimal.Zero
	for _, doc := range docs {
		days := int(asOf.Sub(doc.DueDate).Hours() / 24)
		idx := 0
		switch {
		case days <= 30:
			idx = 0
		case days <= 60:
			idx = 1
		case days <= 90:
			idx = 2
		default:
			idx = 3
		}
		buckets[idx].Amount = buckets[idx].Amount.Add(doc.Balance)
		buckets[idx].Count++
		total = total.Add(doc.Balance)
	}
	return AgingReport{
		AsOf:    asOf.Format("2006-01-02"),
		Buckets: buckets,
		Total:   total,
	}
}
