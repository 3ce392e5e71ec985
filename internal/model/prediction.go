package model

// Prediction holds the monthly predictions over the test window with 95%
// confidence bounds. Rows align with the test table; months that cannot be
// predicted carry NaN. HDDUsed and CDDUsed are empty for models that use no
// degree-day regressor.
type Prediction struct {
	Months  []string
	Real    []float64
	Fitted  []float64
	Lower   []float64
	Upper   []float64
	HDDUsed string
	CDDUsed string
}
