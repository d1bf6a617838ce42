package enums

// StockStatus is the lifecycle of a single pre-provisioned credential.
type StockStatus string

const (
	StockAvailable StockStatus = "AVAILABLE"
	StockUsed      StockStatus = "USED"
)

// IsValid reports whether the value is a known StockStatus.
func (s StockStatus) IsValid() bool {
	return s == StockAvailable || s == StockUsed
}
