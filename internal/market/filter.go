package market

import (
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/TingdiRen/China-Option-SVIX/internal/logger"
)

// Filter drops chain rows failing a user-supplied boolean expression.
// Expressions see one row at a time through these parameters:
//
//	code    contract code (string)
//	name    contract name (string)
//	type    "Call" or "Put"
//	strike  exercise price
//	price   last premium
//	iv      feed implied volatility, in percent
//	spot    underlying last price
//	expiry  expiry date, YYYY-MM-DD (string)
//
// Example: price > 0 && iv < 80
type Filter struct {
	expr *govaluate.EvaluableExpression
}

// NewFilter compiles a filter expression. An empty expression yields a nil
// filter, which keeps every row.
func NewFilter(expression string) (*Filter, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}
	expr, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("filter expression: %w", err)
	}
	return &Filter{expr: expr}, nil
}

// Apply returns the rows the expression accepts. A nil receiver passes the
// input through untouched.
func (f *Filter) Apply(rows []ChainRow) ([]ChainRow, error) {
	if f == nil || f.expr == nil {
		return rows, nil
	}

	out := make([]ChainRow, 0, len(rows))
	for _, row := range rows {
		params := map[string]interface{}{
			"code":   row.Code,
			"name":   row.Name,
			"type":   string(OptionTypeFromName(row.Name)),
			"strike": row.Strike,
			"price":  row.Price,
			"iv":     row.ImpliedVol,
			"spot":   row.SpotPrice,
			"expiry": row.ExpiryDate,
		}

		result, err := f.expr.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("evaluate filter on %s: %w", row.Code, err)
		}
		keep, ok := result.(bool)
		if !ok {
			return nil, fmt.Errorf("filter expression must evaluate to a boolean, got %T", result)
		}
		if keep {
			out = append(out, row)
		}
	}

	logger.Debugf("filter kept %d of %d contracts", len(out), len(rows))
	return out, nil
}
