package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	input := "customer_id,amount,note\nc1,10,ok\nc2,,NA\nc3,NaN,\n"

	table, err := ReadCSV("payments", strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"customer_id", "amount", "note"}, table.Columns)
	require.Equal(t, 3, table.Len())
	assert.Equal(t, String("10"), table.Get(0, "amount"))
	assert.True(t, table.Get(1, "amount").IsNull())
	assert.True(t, table.Get(1, "note").IsNull())
	assert.True(t, table.Get(2, "amount").IsNull())
}

func TestReadCSVShortRowsArePadded(t *testing.T) {
	table, err := ReadCSV("t", strings.NewReader("a,b,c\n1,2\n"))
	require.NoError(t, err)
	assert.True(t, table.Get(0, "c").IsNull())
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV("empty", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = ReadCSV("wide", strings.NewReader("a,b\n1,2,3\n"))
	assert.Error(t, err)

	_, err = ReadCSV("quotes", strings.NewReader("a,b\n\"1,2\n"))
	assert.Error(t, err)
}

func TestReadCSVStripsByteOrderMark(t *testing.T) {
	table, err := ReadCSV("bom", strings.NewReader("\ufeffcustomer_id,amount\nc1,1\n"))
	require.NoError(t, err)
	assert.True(t, table.HasColumn("customer_id"))
}

func TestWriteCSVRoundTripKeepsNulls(t *testing.T) {
	table := NewTable("t", "a", "b")
	table.AppendRow(String("1"), Null)
	table.AppendRow(String("x,y"), String("2"))

	data, err := table.EncodeCSV()
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,\n\"x,y\",2\n", string(data))

	back, err := ReadCSV("t", strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, table.Rows, back.Rows)
}

func TestConcat(t *testing.T) {
	orders := NewTable("orders", "customer_id", "order_id")
	orders.AppendRow(String("c1"), String("o1"))
	orders.AppendRow(String("c2"), String("o2"))

	reviews := NewTable("reviews", "review_id", "customer_id", "score")
	reviews.AppendRow(String("r1"), String("c1"), String("5"))

	union := Concat("combined", orders, reviews)

	assert.Equal(t, []string{"customer_id", "order_id", "review_id", "score"}, union.Columns)
	require.Equal(t, orders.Len()+reviews.Len(), union.Len())
	assert.True(t, union.Get(0, "review_id").IsNull())
	assert.True(t, union.Get(0, "score").IsNull())
	assert.True(t, union.Get(2, "order_id").IsNull())
	assert.Equal(t, String("c1"), union.Get(2, "customer_id"))
	assert.Equal(t, String("5"), union.Get(2, "score"))
}

func TestTableColumnHelpers(t *testing.T) {
	table := NewTable("t", "a")
	table.AppendRow(String("1"))
	table.AppendRow(String("2"))

	table.AddColumn("b")
	assert.Equal(t, []Value{Null, Null}, table.Column("b"))

	assert.True(t, table.SetColumn("b", []Value{String("x"), String("y")}))
	assert.False(t, table.SetColumn("missing", []Value{Null, Null}))
	assert.False(t, table.SetColumn("b", []Value{Null}))

	clone := table.Clone()
	clone.Rows[0][0] = String("changed")
	assert.Equal(t, String("1"), table.Get(0, "a"))
	assert.Nil(t, table.Column("missing"))
}

func TestValueFloat(t *testing.T) {
	v, ok := String(" 12.5 ").Float()
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)

	_, ok = String("twelve").Float()
	assert.False(t, ok)
	_, ok = Null.Float()
	assert.False(t, ok)

	assert.Equal(t, "150", FormatFloat(150))
	assert.Equal(t, "0.1", FormatFloat(0.1))
	assert.Equal(t, "15.5", FormatFloat(15.5))
}
