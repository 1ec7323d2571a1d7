package csv

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"priceimporter/internal/record"
)

const feedHeader = "REGION,SETTLEMENTDATE,TOTALDEMAND,RRP,PERIODTYPE\n"

func mustSource(t *testing.T, data string, opts Options) *Source {
	t.Helper()
	s, err := NewSource(strings.NewReader(data), opts)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	return s
}

func nextOK(t *testing.T, s *Source) record.Composite {
	t.Helper()
	rec, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return rec
}

func TestNextParsesFeedRow(t *testing.T) {
	t.Parallel()

	data := feedHeader + "NSW1,2016/03/22 04:30:00,7096.65,27.97,TRADE\n"
	s := mustSource(t, data, DefaultOptions())

	rec := nextOK(t, s)
	want := record.Composite{
		Region:      "NSW1",
		Period:      "TRADE",
		DateTime:    record.DateTime{Year: 2016, MonthOfYear: 3, DayOfMonth: 22, HourOfDay: 4, MinuteOfHour: 30},
		RPR:         27.97,
		TotalDemand: 7096.65,
	}
	if rec != want {
		t.Fatalf("Next = %+v, want %+v", rec, want)
	}

	if _, err := s.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("Next after last row = %v, want io.EOF", err)
	}
}

func TestNextStripsBOMAndSpace(t *testing.T) {
	t.Parallel()

	data := "\uFEFFREGION, SETTLEMENTDATE ,TOTALDEMAND,RRP,PERIODTYPE\n" +
		" VIC1 ,2016/03/22 05:00:00, 4500.1 , -10.5 ,TRADE\n"
	s := mustSource(t, data, DefaultOptions())

	rec := nextOK(t, s)
	if rec.Region != "VIC1" || rec.TotalDemand != 4500.1 || rec.RPR != -10.5 {
		t.Fatalf("Next = %+v, want trimmed fields", rec)
	}
}

func TestNextWithoutHeader(t *testing.T) {
	t.Parallel()

	// Canonical column order: region, period, settlement_time, rpr, total_demand.
	data := "SA1,TRADE,2016/03/22 04:30:00,42.5,1200\n"
	s := mustSource(t, data, Options{TrimSpace: true})

	rec := nextOK(t, s)
	if rec.Region != "SA1" || rec.Period != "TRADE" || rec.RPR != 42.5 || rec.TotalDemand != 1200 {
		t.Fatalf("Next = %+v", rec)
	}
}

func TestNextCustomHeaderMapAndDelimiter(t *testing.T) {
	t.Parallel()

	data := "Zone;When;Load;Price;Kind\n" +
		"QLD1;2016/03/22 06:00:00;6000;55.5;TRADE\n"
	opts := DefaultOptions()
	opts.Comma = ';'
	opts.HeaderMap = map[string]string{
		"Zone":  "region",
		"When":  "settlement_time",
		"Load":  "total_demand",
		"Price": "rpr",
		"Kind":  "period",
	}
	s := mustSource(t, data, opts)

	rec := nextOK(t, s)
	if rec.Region != "QLD1" || rec.RPR != 55.5 || rec.TotalDemand != 6000 {
		t.Fatalf("Next = %+v", rec)
	}
}

func TestNextRejectsBadFields(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		row       string
		wantField string
	}{
		{"bad timestamp", "NSW1,not-a-time,7096.65,27.97,TRADE", "settlement_time"},
		{"bad rpr", "NSW1,2016/03/22 04:30:00,7096.65,abc,TRADE", "rpr"},
		{"bad demand", "NSW1,2016/03/22 04:30:00,huge,27.97,TRADE", "total_demand"},
		{"short row", "NSW1,2016/03/22 04:30:00", "period"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := mustSource(t, feedHeader+tc.row+"\n", DefaultOptions())

			_, err := s.Next(context.Background())
			var ve *record.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Next = %v, want *record.ValidationError", err)
			}
			if ve.Field != tc.wantField {
				t.Fatalf("Field = %q, want %q (err: %v)", ve.Field, tc.wantField, err)
			}
		})
	}
}

func TestNextContinuesAfterBadRow(t *testing.T) {
	t.Parallel()

	data := feedHeader +
		"NSW1,garbage,7096.65,27.97,TRADE\n" +
		"VIC1,2016/03/22 04:30:00,4500,30,TRADE\n"
	s := mustSource(t, data, DefaultOptions())

	_, err := s.Next(context.Background())
	var ve *record.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("first Next = %v, want validation error", err)
	}

	rec := nextOK(t, s)
	if rec.Region != "VIC1" {
		t.Fatalf("second Next = %+v, want VIC1 row", rec)
	}
}

func TestNextFailsOnMissingHeaderColumn(t *testing.T) {
	t.Parallel()

	s := mustSource(t, "REGION,SETTLEMENTDATE,RRP,PERIODTYPE\nNSW1,2016/03/22 04:30:00,1,TRADE\n", DefaultOptions())
	_, err := s.Next(context.Background())
	if err == nil || !strings.Contains(err.Error(), "total_demand") {
		t.Fatalf("Next = %v, want missing-column error naming total_demand", err)
	}
}

func TestNewSourceRejectsUnknownEncoding(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Encoding = "no-such-encoding"
	if _, err := NewSource(strings.NewReader(""), opts); err == nil {
		t.Fatal("NewSource = nil error, want unknown encoding failure")
	}
}

func TestNewSourceDecodesWindows1252(t *testing.T) {
	t.Parallel()

	// "ÅLAND" in windows-1252: 0xC5 is Å.
	raw := feedHeader + string([]byte{0xC5}) + "LAND,2016/03/22 04:30:00,1,2,TRADE\n"
	opts := DefaultOptions()
	opts.Encoding = "windows-1252"
	s := mustSource(t, raw, opts)

	rec := nextOK(t, s)
	if rec.Region != "ÅLAND" {
		t.Fatalf("Region = %q, want decoded ÅLAND", rec.Region)
	}
}

func TestNextHonoursContext(t *testing.T) {
	t.Parallel()

	s := mustSource(t, feedHeader, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Next = %v, want context.Canceled", err)
	}
}

func TestFileFactoryReopensFromStart(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feed.csv")
	data := feedHeader + "NSW1,2016/03/22 04:30:00,7096.65,27.97,TRADE\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	open := FileFactory(path, DefaultOptions())
	for i := 0; i < 2; i++ {
		src, closeSrc, err := open(context.Background())
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
		rec, err := src.Next(context.Background())
		if err != nil {
			t.Fatalf("Next #%d: %v", i, err)
		}
		if rec.Region != "NSW1" {
			t.Fatalf("Next #%d = %+v", i, rec)
		}
		if err := closeSrc(); err != nil {
			t.Fatalf("close #%d: %v", i, err)
		}
	}
}

func TestFileFactoryMissingFile(t *testing.T) {
	t.Parallel()

	open := FileFactory(filepath.Join(t.TempDir(), "absent.csv"), DefaultOptions())
	if _, _, err := open(context.Background()); err == nil {
		t.Fatal("open = nil error, want failure for missing file")
	}
}
