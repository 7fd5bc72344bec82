package proxy

import "testing"

func TestSplitJoinTimestampRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []int64{0, 1, 1<<32 - 1, 1 << 32, 1<<63 - 1, 1700000000123}
	for _, ts := range cases {
		high, low := SplitTimestamp(ts)
		got := JoinTimestamp(high, low)
		if got != ts {
			t.Fatalf("JoinTimestamp(SplitTimestamp(%d)) = %d, want %d", ts, got, ts)
		}
	}
}

func TestSplitTimestampExactHalves(t *testing.T) {
	t.Parallel()

	// 0x1_0000_0002 should split into high=1, low=2.
	high, low := SplitTimestamp(0x100000002)
	if high != 1 || low != 2 {
		t.Fatalf("SplitTimestamp(0x100000002) = (%d, %d), want (1, 2)", high, low)
	}
}
