package models

// Reference number kinds, one counter scope per kind per day.
const (
	RefKindBill        = "bill"
	RefKindTransaction = "transaction"
	RefKindPayment     = "payment"
)

// SequenceCounter backs the reference-number allocator. current_value is
// advanced only inside an atomic read-increment-write; values are never
// reused.
type SequenceCounter struct {
	Kind         string `json:"kind"`
	Day          string `json:"day"` // YYYYMMDD
	CurrentValue int64  `json:"current_value"`
}
