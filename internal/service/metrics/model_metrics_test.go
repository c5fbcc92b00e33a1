package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIsIdempotent(t *testing.T) {
	Register()
	Register()

	ModelValidation.WithLabelValues("val_accuracy").Set(0.75)
	if got := testutil.ToFloat64(ModelValidation.WithLabelValues("val_accuracy")); got != 0.75 {
		t.Fatalf("val_accuracy = %v", got)
	}
}
