package ssql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePredicates(t *testing.T) {
	preds, err := ParsePredicates(`[{"name":"city","op":"==","value":"SH"},{"name":"age","op":"gte","value":18}]`)
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, "city", preds[0].Name)
	assert.Equal(t, "==", preds[0].Op)
	assert.Equal(t, "SH", preds[0].Value)
}

func TestParsePredicatesEmpty(t *testing.T) {
	preds, err := ParsePredicates("")
	require.NoError(t, err)
	assert.Nil(t, preds)
}

func TestParsePredicatesInvalidJSON(t *testing.T) {
	_, err := ParsePredicates(`{"name":"city"`)
	assert.Error(t, err)
}

func TestPredicateUnknownOperator(t *testing.T) {
	_, err := Predicate{Name: "city", Op: "between", Value: 1}.ToExpression()
	assert.Error(t, err)
}

func TestPredicatesToExpressionSingle(t *testing.T) {
	preds := []Predicate{{Name: "city", Op: "eq", Value: "SH"}}
	expr, err := PredicatesToExpression(preds)
	require.NoError(t, err)

	sql, args := expr.ToSQL(NewMySQLDialect())
	assert.Equal(t, "`city` = ?", sql)
	assert.Equal(t, []interface{}{"SH"}, args)
}

func TestPredicatesToExpressionMerged(t *testing.T) {
	preds := []Predicate{
		{Name: "city", Op: "==", Value: "SH"},
		{Name: "age", Op: ">=", Value: 18},
	}
	expr, err := PredicatesToExpression(preds)
	require.NoError(t, err)

	sql, args := expr.ToSQL(NewMySQLDialect())
	assert.Equal(t, "(`city` = ? AND `age` >= ?)", sql)
	assert.Len(t, args, 2)
}

func TestPredicatesToExpressionNone(t *testing.T) {
	expr, err := PredicatesToExpression(nil)
	require.NoError(t, err)
	assert.Nil(t, expr)
}

func TestNotExpression(t *testing.T) {
	expr, err := PredicatesToExpression([]Predicate{{Name: "city", Op: "==", Value: "SH"}})
	require.NoError(t, err)

	sql, args := Not(expr).ToSQL(NewSQLiteDialect())
	assert.Equal(t, `NOT ("city" = ?)`, sql)
	assert.Equal(t, []interface{}{"SH"}, args)
}

func TestNotExpressionNilInner(t *testing.T) {
	sql, args := Not(nil).ToSQL(NewMySQLDialect())
	assert.Empty(t, sql)
	assert.Nil(t, args)
	assert.Error(t, Not(nil).Validate())
}

func TestEncodePredicatesRoundTrip(t *testing.T) {
	in := []Predicate{{Name: "status", Op: "!=", Value: float64(0)}}
	raw, err := EncodePredicates(in)
	require.NoError(t, err)

	out, err := ParsePredicates(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
