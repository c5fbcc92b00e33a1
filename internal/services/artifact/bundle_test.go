package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"
	"RecessionLens/internal/services/features"
	"RecessionLens/internal/services/lstm"
)

func testBundle(t *testing.T) *Bundle {
	t.Helper()
	scaler, err := features.NewScalerState(
		[]float64{1, 2, 3, 4, 5},
		[]float64{10, 20, 30, 40, 50},
		models.FeatureOrder(),
	)
	if err != nil {
		t.Fatalf("scaler: %v", err)
	}
	net, err := lstm.FromParams(lstm.Constant(5, 3, 2, 0.9))
	if err != nil {
		t.Fatalf("net: %v", err)
	}
	b, err := New(scaler, 12, net, &TrainingReport{Epochs: 1})
	if err != nil {
		t.Fatalf("bundle: %v", err)
	}
	return b
}

func TestMarshalRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		b := testBundle(t)
		data, err := Marshal(b, compress)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if compress != bytes.HasPrefix(data, zstdMagic) {
			t.Fatalf("compress=%v but magic prefix=%v", compress, !compress)
		}
		got, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.ID != b.ID || got.WindowLength != 12 || got.ScalerFingerprint != b.ScalerFingerprint {
			t.Fatalf("unexpected bundle %+v", got)
		}
		net, err := got.Network()
		if err != nil {
			t.Fatalf("network: %v", err)
		}
		if net.InputSize() != 5 {
			t.Fatalf("input size %d", net.InputSize())
		}
	}
}

func TestUnmarshalRejectsWidthMismatch(t *testing.T) {
	b := testBundle(t)
	narrow, _ := features.NewScalerState([]float64{0, 0, 0}, []float64{1, 1, 1}, []string{"cpi", "bond", "m3"})
	b.Scaler = narrow
	b.FeatureOrder = narrow.FeatureOrder()
	b.ScalerFingerprint = narrow.Fingerprint()

	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := Unmarshal(data); !errors.Is(err, errs.ErrShape) {
		t.Fatalf("expected ShapeError, got %v", err)
	}
}

func TestUnmarshalRejectsForeignScaler(t *testing.T) {
	b := testBundle(t)
	other, _ := features.NewScalerState(
		[]float64{0, 0, 0, 0, 0},
		[]float64{1, 1, 1, 1, 1},
		models.FeatureOrder(),
	)
	b.Scaler = other

	data, _ := json.Marshal(b)
	if _, err := Unmarshal(data); !errors.Is(err, errs.ErrShape) {
		t.Fatalf("expected ShapeError for swapped scaler, got %v", err)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte("{not json")); !errors.Is(err, errs.ErrData) {
		t.Fatalf("expected DataError, got %v", err)
	}
	b := testBundle(t)
	b.Version = 99
	data, _ := json.Marshal(b)
	if _, err := Unmarshal(data); !errors.Is(err, errs.ErrData) {
		t.Fatalf("expected DataError for version, got %v", err)
	}
}

func TestWriteRead(t *testing.T) {
	b := testBundle(t)
	var buf bytes.Buffer
	if err := Write(&buf, b, true); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Report == nil || got.Report.Epochs != 1 {
		t.Fatalf("report lost: %+v", got.Report)
	}
}
