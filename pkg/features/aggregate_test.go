package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/model"
)

func table(name string, columns []string, rows ...[]string) *model.Table {
	t := model.NewTable(name, columns...)
	for _, r := range rows {
		cells := make([]model.Value, len(r))
		for i, raw := range r {
			cells[i] = model.ParseCell(raw)
		}
		t.AppendRow(cells...)
	}
	return t
}

func sources() []*model.Table {
	orders := table("orders.csv", []string{"order_id", "customer_id", "days_since_purchase"},
		[]string{"o1", "c1", "30"},
		[]string{"o2", "c1", "12"},
		[]string{"o3", "c2", "100"},
	)
	items := table("order_items.csv", []string{"order_id", "customer_id", "price"},
		[]string{"o1", "c1", "10.5"},
		[]string{"o2", "c1", "20.5"},
		[]string{"o3", "c2", "abc"},
	)
	payments := table("order_payments.csv", []string{"order_id", "customer_id", "amount"},
		[]string{"o1", "c1", "10.5"},
		[]string{"o2", "c1", "20.5"},
		[]string{"o3", "c2", "7"},
	)
	reviews := table("reviews.csv", []string{"review_id", "customer_id", "score"},
		[]string{"r1", "c1", "5"},
		[]string{"r2", "c3", "2"},
		[]string{"r3", "", "4"},
	)
	return []*model.Table{orders, items, payments, reviews}
}

func row(t *testing.T, out *model.Table, id string) map[string]model.Value {
	t.Helper()
	for i := range out.Rows {
		if out.Get(i, GroupKey).Str == id {
			m := make(map[string]model.Value, len(out.Columns))
			for _, col := range out.Columns {
				m[col] = out.Get(i, col)
			}
			return m
		}
	}
	t.Fatalf("customer %s not in output", id)
	return nil
}

func TestAggregate(t *testing.T) {
	out, report, err := NewAggregator(CustomerFeatures, false).Aggregate(sources()...)
	require.NoError(t, err)

	assert.Equal(t, []string{"customer_id", "total_spent", "purchase_frequency", "average_order_value",
		"num_reviews", "avg_review_score", "days_since_purchase"}, out.Columns)
	assert.Equal(t, 12, report.UnionRows)
	assert.Equal(t, 1, report.NullKeyRows)
	assert.Empty(t, report.MissingColumns)
	require.Equal(t, 3, out.Len())

	c1 := row(t, out, "c1")
	assert.Equal(t, model.String("31"), c1["total_spent"])
	// order_id appears in three c1-bearing sources, two rows each
	assert.Equal(t, model.String("6"), c1["purchase_frequency"])
	assert.Equal(t, model.String("15.5"), c1["average_order_value"])
	assert.Equal(t, model.String("1"), c1["num_reviews"])
	assert.Equal(t, model.String("5"), c1["avg_review_score"])
	assert.Equal(t, model.String("12"), c1["days_since_purchase"])

	c2 := row(t, out, "c2")
	assert.True(t, c2["average_order_value"].IsNull(), "non-numeric price is coerced to null")
	assert.Equal(t, model.String("0"), c2["num_reviews"])
	assert.True(t, c2["avg_review_score"].IsNull())

	// Only present in reviews
	c3 := row(t, out, "c3")
	assert.True(t, c3["total_spent"].IsNull())
	assert.Equal(t, model.String("0"), c3["purchase_frequency"])
	assert.True(t, c3["days_since_purchase"].IsNull())
	assert.Equal(t, model.String("2"), c3["avg_review_score"])
}

func TestAggregateOutputIDsExistInInputs(t *testing.T) {
	inputs := sources()
	out, _, err := NewAggregator(CustomerFeatures, false).Aggregate(inputs...)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, in := range inputs {
		for _, v := range in.Column(GroupKey) {
			if !v.IsNull() {
				seen[v.Str] = true
			}
		}
	}

	ids := out.Column(GroupKey)
	assert.Len(t, ids, len(seen))
	for i, v := range ids {
		assert.True(t, seen[v.Str], v.Str)
		if i > 0 {
			assert.Less(t, ids[i-1].Str, v.Str)
		}
	}
}

func TestAggregateMissingColumns(t *testing.T) {
	orders := table("orders.csv", []string{"order_id", "customer_id"}, []string{"o1", "c1"})

	out, report, err := NewAggregator(CustomerFeatures, false).Aggregate(orders)
	require.NoError(t, err)
	assert.Equal(t, []string{"amount", "price", "review_id", "score", "days_since_purchase"}, report.MissingColumns)

	c1 := row(t, out, "c1")
	assert.Equal(t, model.String("1"), c1["purchase_frequency"])
	assert.True(t, c1["total_spent"].IsNull())
	assert.Equal(t, model.String("0"), c1["num_reviews"])

	_, _, err = NewAggregator(CustomerFeatures, true).Aggregate(orders)
	assert.ErrorIs(t, err, ErrMissingSourceColumn)
}

func TestAggregateRequiresGroupKey(t *testing.T) {
	products := table("products.csv", []string{"product_id"}, []string{"p1"})
	_, _, err := NewAggregator(CustomerFeatures, false).Aggregate(products)
	assert.ErrorIs(t, err, ErrMissingGroupKey)

	_, _, err = NewAggregator(CustomerFeatures, false).Aggregate()
	assert.ErrorIs(t, err, ErrMissingGroupKey)
}
