package store

import (
	"testing"
	"time"

	"clore-watch/internal/services/clore"
)

func TestBalanceColdStartHasZeroDeltas(t *testing.T) {
	st := newTestStore(t)
	user := newTestUser(t, st, 2000)

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	snap, err := st.Snapshots.RecordBalance(user.ID, 500, 0.01, 1010, now)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if snap.Change10Min != 0 || snap.Change1Hour != 0 {
		t.Fatalf("cold start deltas must be zero, got %v/%v", snap.Change10Min, snap.Change1Hour)
	}
}

func TestBalanceDeltasUseAgedBaseline(t *testing.T) {
	st := newTestStore(t)
	user := newTestUser(t, st, 2001)

	start := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	if _, err := st.Snapshots.RecordBalance(user.ID, 500, 0, 1000, start); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// 15 minutes later: the seed is old enough for the 10-minute window
	// but not the 1-hour window
	snap, err := st.Snapshots.RecordBalance(user.ID, 480, 0, 960, start.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if snap.Change10Min != -20 {
		t.Fatalf("expected -20 over 10min window, got %v", snap.Change10Min)
	}
	if snap.Change1Hour != 0 {
		t.Fatalf("1h window has no baseline yet, got %v", snap.Change1Hour)
	}

	// 2 hours in, both windows resolve. The 10-minute baseline is the
	// most recent snapshot at least 10 minutes old, not the oldest.
	snap, err = st.Snapshots.RecordBalance(user.ID, 470, 0, 940, start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("third record: %v", err)
	}
	if snap.Change10Min != -10 {
		t.Fatalf("expected -10 against the 15min snapshot, got %v", snap.Change10Min)
	}
	if snap.Change1Hour != -10 {
		t.Fatalf("expected -10 against the 15min snapshot, got %v", snap.Change1Hour)
	}
}

func sampleServer(id int) clore.Server {
	return clore.Server{
		ID: id,
		Specs: clore.ServerSpecs{
			GPU:    "2x NVIDIA GeForce RTX 4090",
			GPURAM: 24,
			CPU:    "AMD EPYC 7443",
			RAM:    128,
			Net:    clore.ServerNet{CC: "DE"},
		},
		Price: clore.ServerPrice{
			OnDemand: map[string]float64{clore.CurrencyClore: 120},
			USD:      map[string]float64{"on_demand_clore": 2.4},
		},
		Rating:      clore.ServerRating{Avg: 4.5, Cnt: 12},
		Reliability: 0.99,
		Online:      true,
	}
}

func TestRecordServerExtractsIndexedFields(t *testing.T) {
	st := newTestStore(t)
	user := newTestUser(t, st, 2002)

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	snap, err := st.Snapshots.RecordServer(user.ID, "marketplace", sampleServer(77), 0.02, now)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if snap.GPUCount != 2 || snap.GPUModel != "RTX 4090" {
		t.Fatalf("gpu extraction: %d %q", snap.GPUCount, snap.GPUModel)
	}
	if snap.PriceUSD != 2.4 || snap.PriceSource != clore.PriceSourceMarket {
		t.Fatalf("price extraction: %v %s", snap.PriceUSD, snap.PriceSource)
	}
	if snap.PriceClore != 120 {
		t.Fatalf("clore price: %v", snap.PriceClore)
	}
	if snap.Location != "DE" || snap.Rating != 4.5 || snap.RatingCount != 12 {
		t.Fatalf("metadata: %#v", snap)
	}
	if snap.RawData == "" {
		t.Fatal("raw payload must be kept")
	}
}

func TestLastTwoIsMostRecentFirst(t *testing.T) {
	st := newTestStore(t)
	user := newTestUser(t, st, 2003)

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	srv := sampleServer(88)
	for i := 0; i < 3; i++ {
		srv.Rented = i == 2
		if _, err := st.Snapshots.RecordServer(user.ID, "my_server", srv, 0.02, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	snaps, err := st.Snapshots.LastTwo(88, "my_server")
	if err != nil {
		t.Fatalf("last two: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2, got %d", len(snaps))
	}
	if !snaps[0].IsRented || snaps[1].IsRented {
		t.Fatalf("ordering wrong: %v %v", snaps[0].IsRented, snaps[1].IsRented)
	}
	if !snaps[0].Timestamp.After(snaps[1].Timestamp) {
		t.Fatal("expected most recent first")
	}
}
