package codec

import (
	"strings"
	"testing"

	"github.com/stockplus/kisfeed/internal/model"
)

// buildRecord returns a caret-joined record of n fields where field i is
// fields[i] if provided, else "f<i>".
func buildRecord(n int, overrides map[int]string) string {
	fields := make([]string, n)
	for i := range fields {
		fields[i] = "x"
	}
	for i, v := range overrides {
		fields[i] = v
	}
	return strings.Join(fields, "^")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    FrameKind
	}{
		{"control", `{"header":{"tr_id":"H0STCNT0"},"body":{"rt_cd":"0"}}`, FrameControl},
		{"data", "0|H0STCNT0|1|005930^093000^70000", FrameData},
		{"encrypted data", "1|H0STCNT0|1|abcdef", FrameData},
		{"heartbeat", `{"header":{"tr_id":"PINGPONG","datetime":"20240102"}}`, FrameHeartbeat},
		{"garbage", "hello world", FrameUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.payload); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.payload, got, tt.want)
			}
		})
	}
}

func TestParseControl_StaleApprovalKey(t *testing.T) {
	payload := `{"header":{"tr_id":"H0STCNT0","tr_key":"005930"},"body":{"rt_cd":"9","msg_cd":"OPSP0011","msg1":"invalid approval key"}}`

	c, err := ParseControl(payload)
	if err != nil {
		t.Fatalf("ParseControl failed: %v", err)
	}
	if !c.StaleApprovalKey() {
		t.Error("StaleApprovalKey() = false, want true")
	}
	if c.SubscribeOK() {
		t.Error("SubscribeOK() = true for an error frame")
	}
}

func TestParseControl_SubscribeAck(t *testing.T) {
	payload := `{"header":{"tr_id":"H0STCNT0","tr_key":"005930"},"body":{"rt_cd":"0","msg_cd":"OPSP0000","msg1":"SUBSCRIBE SUCCESS"}}`

	c, err := ParseControl(payload)
	if err != nil {
		t.Fatalf("ParseControl failed: %v", err)
	}
	if !c.SubscribeOK() {
		t.Error("SubscribeOK() = false, want true")
	}
	if c.StaleApprovalKey() {
		t.Error("StaleApprovalKey() = true for a success frame")
	}
}

func TestDecodeData_TradeFrame(t *testing.T) {
	// Trade record: code, time, price, sign, change, rate at offsets 0-5,
	// cumulative volume at offset 13.
	record := buildRecord(14, map[int]string{
		0: "005930", 1: "093000", 2: "70000", 3: "2", 4: "500", 5: "0.72",
		13: "12345",
	})
	frame := "0|H0STCNT0|1|" + record

	quotes, err := DecodeData(frame)
	if err != nil {
		t.Fatalf("DecodeData failed: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("got %d quotes, want 1", len(quotes))
	}

	q := quotes[0]
	if q.Code != "005930" {
		t.Errorf("Code = %q, want %q", q.Code, "005930")
	}
	if q.Time != "093000" {
		t.Errorf("Time = %q, want %q", q.Time, "093000")
	}
	if q.Price != "70000" {
		t.Errorf("Price = %q, want %q", q.Price, "70000")
	}
	if q.Change != "500" {
		t.Errorf("Change = %q, want %q", q.Change, "500")
	}
	if q.ChangeRate != "0.72" {
		t.Errorf("ChangeRate = %q, want %q", q.ChangeRate, "0.72")
	}
	if q.Volume != "12345" {
		t.Errorf("Volume = %q, want %q", q.Volume, "12345")
	}
	if q.IsExpected {
		t.Error("IsExpected = true for a confirmed trade")
	}
	if q.Venue != model.VenuePrimary {
		t.Errorf("Venue = %q, want %q", q.Venue, model.VenuePrimary)
	}
}

func TestDecodeData_MultiRecord(t *testing.T) {
	rec1 := buildRecord(14, map[int]string{0: "005930", 2: "70000"})
	rec2 := buildRecord(14, map[int]string{0: "000660", 2: "180000"})
	frame := "0|H0STCNT0|2|" + rec1 + "^" + rec2

	quotes, err := DecodeData(frame)
	if err != nil {
		t.Fatalf("DecodeData failed: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("got %d quotes, want 2", len(quotes))
	}
	if quotes[0].Code != "005930" || quotes[1].Code != "000660" {
		t.Errorf("codes = %q, %q; want 005930, 000660", quotes[0].Code, quotes[1].Code)
	}
	for _, q := range quotes {
		if q.Code == "" {
			t.Error("quote with empty instrument code")
		}
	}
}

func TestDecodeData_ZeroCountTreatedAsOne(t *testing.T) {
	// The gateway sometimes declares 0 records on trade/quote channels even
	// though one record of data follows.
	record := buildRecord(14, map[int]string{0: "005930", 2: "70000"})

	for _, trID := range []string{"H0STCNT0", "H0NXCNT0", "H0UNANC0"} {
		frame := "0|" + trID + "|0|"
		if strings.Contains(trID, "ANC0") {
			frame += buildRecord(52, map[int]string{0: "005930", 47: "70100"})
		} else {
			frame += record
		}

		quotes, err := DecodeData(frame)
		if err != nil {
			t.Fatalf("DecodeData(%s) failed: %v", trID, err)
		}
		if len(quotes) != 1 {
			t.Errorf("DecodeData(%s) produced %d quotes, want 1", trID, len(quotes))
		}
	}
}

func TestDecodeData_IndicativeOffsets(t *testing.T) {
	record := buildRecord(52, map[int]string{
		0: "005930", 1: "084512",
		47: "70100", 48: "600", 49: "2", 50: "0.86", 51: "999",
	})
	frame := "0|H0STANC0|1|" + record

	quotes, err := DecodeData(frame)
	if err != nil {
		t.Fatalf("DecodeData failed: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("got %d quotes, want 1", len(quotes))
	}

	q := quotes[0]
	if !q.IsExpected {
		t.Error("IsExpected = false for an indicative record")
	}
	if q.Price != "70100" || q.Change != "600" || q.Sign != "2" || q.ChangeRate != "0.86" || q.Volume != "999" {
		t.Errorf("decoded fields = %+v, want offsets 47-51", q)
	}
}

func TestDecodeData_ZeroIndicativePriceDropped(t *testing.T) {
	record := buildRecord(52, map[int]string{0: "005930", 47: "0"})
	frame := "0|H0STANC0|1|" + record

	quotes, err := DecodeData(frame)
	if err != nil {
		t.Fatalf("DecodeData failed: %v", err)
	}
	if len(quotes) != 0 {
		t.Errorf("got %d quotes, want 0 (zero indicative price must be dropped)", len(quotes))
	}
}

func TestDecodeData_ShortIndicativeRecordSkipped(t *testing.T) {
	record := buildRecord(20, map[int]string{0: "005930"})
	frame := "0|H0NXANC0|1|" + record

	quotes, err := DecodeData(frame)
	if err != nil {
		t.Fatalf("DecodeData failed: %v", err)
	}
	if len(quotes) != 0 {
		t.Errorf("got %d quotes from a truncated record, want 0", len(quotes))
	}
}

func TestDecodeData_VenueResolution(t *testing.T) {
	record := buildRecord(14, map[int]string{0: "005930"})

	tests := []struct {
		trID string
		want model.Venue
	}{
		{"H0STCNT0", model.VenuePrimary},
		{"H0NXCNT0", model.VenueAlt},
		{"H0UNCNT0", model.VenueUnified},
	}

	for _, tt := range tests {
		quotes, err := DecodeData("0|" + tt.trID + "|1|" + record)
		if err != nil {
			t.Fatalf("DecodeData(%s) failed: %v", tt.trID, err)
		}
		if len(quotes) != 1 {
			t.Fatalf("DecodeData(%s) produced %d quotes", tt.trID, len(quotes))
		}
		if quotes[0].Venue != tt.want {
			t.Errorf("venue for %s = %q, want %q", tt.trID, quotes[0].Venue, tt.want)
		}
	}
}

func TestDecodeData_IndexFrame(t *testing.T) {
	frame := "0|H0UPANC0|1|0001^093000^2650.21^2^12.34^0.47^x^x^450000"

	quotes, err := DecodeData(frame)
	if err != nil {
		t.Fatalf("DecodeData failed: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("got %d quotes, want 1", len(quotes))
	}

	q := quotes[0]
	if q.Venue != model.VenueIndex {
		t.Errorf("Venue = %q, want %q", q.Venue, model.VenueIndex)
	}
	if q.Code != "0001" || q.Price != "2650.21" || q.Volume != "450000" {
		t.Errorf("decoded index quote = %+v", q)
	}
}

func TestDecodeData_Malformed(t *testing.T) {
	for _, payload := range []string{
		"0|H0STCNT0",          // too few segments
		"0|H0STCNT0|x|005930", // non-numeric count
	} {
		if _, err := DecodeData(payload); err == nil {
			t.Errorf("DecodeData(%q) succeeded, want error", payload)
		}
	}

	// Unrelated channel id with zero count yields nothing, not an error.
	quotes, err := DecodeData("0|H0STASP0|0|005930^093000")
	if err != nil {
		t.Fatalf("DecodeData failed: %v", err)
	}
	if len(quotes) != 0 {
		t.Errorf("got %d quotes from an unrelated channel, want 0", len(quotes))
	}
}
