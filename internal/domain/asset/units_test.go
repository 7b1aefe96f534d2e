package asset

import "testing"

func TestToUnits(t *testing.T) {
	testCases := []struct {
		name    string
		amount  string
		asset   Asset
		want    int64
		wantErr bool
	}{
		{"whole gas", "1", GAS, 100_000_000, false},
		{"fraction gas", "0.5", GAS, 50_000_000, false},
		{"full precision gas", "0.00000001", GAS, 1, false},
		{"whole stable", "125", USDL, 125_000_000, false},
		{"two places stable", "19.99", USDL, 19_990_000, false},
		{"leading dot", ".25", GAS, 25_000_000, false},
		{"trailing zeros", "1.250000", USDL, 1_250_000, false},
		{"empty", "", GAS, 0, true},
		{"negative", "-1", GAS, 0, true},
		{"too precise", "0.000000001", GAS, 0, true},
		{"too precise stable", "0.0000001", USDL, 0, true},
		{"not a number", "12a.4", GAS, 0, true},
		{"scientific", "1e8", GAS, 0, true},
		{"unknown asset", "1", Asset("DOGE"), 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToUnits(tc.amount, tc.asset)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ToUnits(%q, %s) error = %v, wantErr %v", tc.amount, tc.asset, err, tc.wantErr)
			}
			if err == nil && got != tc.want {
				t.Errorf("ToUnits(%q, %s) = %d, want %d", tc.amount, tc.asset, got, tc.want)
			}
		})
	}
}

func TestUnitsRoundTrip(t *testing.T) {
	samples := []int64{1, 7, 99, 100_000_000, 123_456_789, 5_000_000_000, 987_654_321_012}

	for _, a := range []Asset{GAS, USDL} {
		for _, units := range samples {
			back, err := ToUnits(FromUnits(units, a), a)
			if err != nil {
				t.Fatalf("round trip %d %s: %v", units, a, err)
			}
			if back != units {
				t.Errorf("round trip %d %s = %d", units, a, back)
			}
		}
	}
}

func TestFromUnits(t *testing.T) {
	if got := FromUnits(150_000_000, GAS); got != "1.50000000" {
		t.Errorf("FromUnits GAS = %q", got)
	}
	if got := FromUnits(1_250_000, USDL); got != "1.250000" {
		t.Errorf("FromUnits USDL = %q", got)
	}
	if got := FromUnits(-50_000_000, GAS); got != "-0.50000000" {
		t.Errorf("FromUnits negative = %q", got)
	}
}

func TestDecimalPlaces(t *testing.T) {
	testCases := []struct {
		amount string
		want   int
	}{
		{"10", 0},
		{"10.5", 1},
		{"10.55", 2},
		{"10.550", 2},
		{"0.123", 3},
		{"7.00", 0},
	}
	for _, tc := range testCases {
		if got := DecimalPlaces(tc.amount); got != tc.want {
			t.Errorf("DecimalPlaces(%q) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}
