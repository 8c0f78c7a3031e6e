package imapdate

import "testing"

func TestParseStrict(t *testing.T) {
	// 08:07:42 UTC is the correct conversion of "09:07:42 +0100"
	// (1705306062): 2024-01-15 00:00 UTC is 1705276800, and 8h07m42s
	// (29262 s) later is 1705306062.
	epoch, zone, err := Parse("Mon, 15 Jan 2024 09:07:42 +0100")
	if err != nil {
		t.Fatal(err)
	}
	if want := int64(1705306062); epoch != want {
		t.Errorf("epoch = %d, want %d", epoch, want)
	}
	if zone != (Zone{Hours: 1, Minutes: 0, West: false}) {
		t.Errorf("zone = %+v, want {1 0 false}", zone)
	}
}

func TestParseStrictNoSeconds(t *testing.T) {
	_, _, err := Parse("15 Jan 2024 09:07 GMT")
	if err != nil {
		t.Fatal(err)
	}
}

func TestParseStrictNamedZone(t *testing.T) {
	epoch, zone, err := Parse("15 Jan 2024 09:07:42 EST")
	if err != nil {
		t.Fatal(err)
	}
	if !zone.West || zone.Hours != 5 {
		t.Errorf("zone = %+v, want EST (5, west)", zone)
	}
	epochUTC, _, _ := Parse("15 Jan 2024 14:07:42 +0000")
	if epoch != epochUTC {
		t.Errorf("EST conversion mismatch: %d vs %d", epoch, epochUTC)
	}
}

func TestParseStrictTrailingZoneComment(t *testing.T) {
	epoch, _, err := Parse("15 Jan 2024 09:07:42 +0000 (UTC)")
	if err != nil {
		t.Fatal(err)
	}
	epoch2, _, _ := Parse("15 Jan 2024 09:07:42 +0000")
	if epoch != epoch2 {
		t.Errorf("trailing zone comment changed parse result")
	}
}

func TestParseLaxFallback(t *testing.T) {
	// Full month name, no weekday: the strict parser's three-letter
	// month lookup rejects it, and the lax regexp parses it using the
	// first three letters of the month.
	epoch, _, err := Parse("15 January 2024 09:07:42")
	if err != nil {
		t.Fatal(err)
	}
	want, _, _ := Parse("15 Jan 2024 09:07:42 +0000")
	if epoch != want {
		t.Errorf("lax parse = %d, want %d", epoch, want)
	}
}

func TestParseMissingZoneDefaultsUTC(t *testing.T) {
	_, zone, err := Parse("15 Jan 2024 09:07:42")
	if err != nil {
		t.Fatal(err)
	}
	if zone != (Zone{}) {
		t.Errorf("zone = %+v, want zero value (+0000)", zone)
	}
}

func TestNormalizeTimeOverflow(t *testing.T) {
	in := Time{Year: 2024, Month: 1, Day: 31, Hour: 23, Min: 61, Sec: 0}
	got := NormalizeTime(in)
	want := Time{Year: 2024, Month: 2, Day: 1, Hour: 0, Min: 1, Sec: 0}
	if got != want {
		t.Errorf("NormalizeTime = %+v, want %+v", got, want)
	}
}

func TestMakeTimeRoundTrip(t *testing.T) {
	orig := int64(1705306062)
	zone := Zone{Hours: 1, Minutes: 0, West: false}
	tm := timeFromEpochForTest(orig, zone)
	got := MakeTime(tm)
	if got != orig {
		t.Errorf("MakeTime round trip = %d, want %d", got, orig)
	}
}

func timeFromEpochForTest(epoch int64, zone Zone) Time {
	return fromEpoch(epoch, zone)
}

func TestFormatIMAP(t *testing.T) {
	epoch, zone, err := Parse("15 Jan 2024 09:07:42 +0000")
	if err != nil {
		t.Fatal(err)
	}
	got := FormatIMAP(epoch, zone)
	want := "15-Jan-2024 09:07:42 +0000"
	if got != want {
		t.Errorf("FormatIMAP = %q, want %q", got, want)
	}
}

func TestParseIMAPInternalDate(t *testing.T) {
	epoch, _, err := ParseIMAPInternalDate("15-Jan-2024 09:07:42 +0000")
	if err != nil {
		t.Fatal(err)
	}
	want, _, _ := Parse("15 Jan 2024 09:07:42 +0000")
	if epoch != want {
		t.Errorf("ParseIMAPInternalDate = %d, want %d", epoch, want)
	}
}
