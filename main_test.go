package semjoin

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mustFrame builds a DataFrame or fails the test.
func mustFrame(t *testing.T, series ...*Series) *DataFrame {
	t.Helper()
	df, err := NewDataFrame(series...)
	if err != nil {
		t.Fatalf("failed to create DataFrame: %v", err)
	}
	return df
}

// customers and orders are the email example used across the join tests.
func customers(t *testing.T) *DataFrame {
	return mustFrame(t,
		NewSeriesInt64("id", []int64{1, 2, 3}),
		NewSeriesString("email", []string{"A@X.com", "b@x.com", "c@x.com"}),
	)
}

func orders(t *testing.T) *DataFrame {
	return mustFrame(t,
		NewSeriesInt64("uid", []int64{2, 3, 4}),
		NewSeriesString("mail", []string{"b@x.com", "C@X.COM", "d@x.com"}),
	)
}
