package risk

import (
	"gonum.org/v1/gonum/stat"

	"github.com/mosfin/analyst/internal/domain"
)

// CorrelationMatrix is a symmetric Pearson correlation matrix over the
// aligned daily returns of the given tickers.
type CorrelationMatrix struct {
	Tickers []string    `json:"tickers"`
	Matrix  [][]float64 `json:"matrix"`
	Days    int         `json:"days"`
}

// ComputeCorrelationMatrix computes pairwise Pearson correlations on the
// shared trading-day grid. At least two aligned observations are required.
func ComputeCorrelationMatrix(aligned AlignedReturns) (*CorrelationMatrix, error) {
	if len(aligned.Tickers) < 2 {
		return nil, domain.NewValidationError("tickers", "at least two tickers are required")
	}
	if len(aligned.Dates) < 2 {
		return nil, domain.NewError(domain.CategoryInvalidTicker, "insufficient overlapping trading days")
	}

	n := len(aligned.Tickers)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			corr := stat.Correlation(aligned.Returns[aligned.Tickers[i]], aligned.Returns[aligned.Tickers[j]], nil)
			matrix[i][j] = corr
			matrix[j][i] = corr
		}
	}

	return &CorrelationMatrix{Tickers: aligned.Tickers, Matrix: matrix, Days: len(aligned.Dates)}, nil
}
