package codec

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/stockplus/kisfeed/internal/model"
)

// Errors returned by frame decoding. All of them are recoverable: the caller
// skips the offending frame and keeps reading.
var (
	ErrMalformedFrame = errors.New("malformed data frame")
	ErrUnknownFrame   = errors.New("unknown frame type")
)

// heartbeatSentinel marks a keep-alive frame carrying no market data.
const heartbeatSentinel = "PINGPONG"

// FrameKind classifies a raw inbound payload.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameControl
	FrameData
	FrameHeartbeat
)

// Classify inspects a raw payload without fully parsing it.
// A frame is Control if it is a JSON object with a header section, Data if it
// starts with a one-character encryption flag followed by a pipe.
func Classify(payload string) FrameKind {
	if strings.Contains(payload, heartbeatSentinel) {
		return FrameHeartbeat
	}
	if strings.HasPrefix(payload, "{") && strings.Contains(payload, "header") {
		return FrameControl
	}
	if strings.HasPrefix(payload, "0|") || strings.HasPrefix(payload, "1|") {
		return FrameData
	}
	return FrameUnknown
}

// Control is a parsed JSON control frame (subscription ack or error).
type Control struct {
	Header ControlHeader `json:"header"`
	Body   ControlBody   `json:"body"`
}

// ControlHeader echoes the subscription the frame refers to.
type ControlHeader struct {
	TrID    string `json:"tr_id"`
	TrKey   string `json:"tr_key"`
	Encrypt string `json:"encrypt"`
}

// ControlBody carries the gateway's result code and message.
type ControlBody struct {
	RtCd  string `json:"rt_cd"`
	MsgCd string `json:"msg_cd"`
	Msg1  string `json:"msg1"`
}

// staleApprovalCode is the gateway's error code for an invalid or expired
// approval key on an already-open session.
const staleApprovalCode = "OPSP0011"

// ParseControl decodes a JSON control frame.
func ParseControl(payload string) (Control, error) {
	var c Control
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Control{}, err
	}
	return c, nil
}

// StaleApprovalKey reports whether the frame signals an invalid/expired
// approval key, which requires a forced credential rotation before the next
// connect attempt.
func (c Control) StaleApprovalKey() bool {
	return c.Body.MsgCd == staleApprovalCode ||
		strings.Contains(c.Body.Msg1, "invalid approval")
}

// SubscribeOK reports whether the frame acknowledges a successful
// subscription command.
func (c Control) SubscribeOK() bool {
	return c.Body.RtCd == "0"
}

// DecodeData parses a pipe/caret data frame into normalized quotes.
// Malformed records are skipped rather than failing the whole frame;
// indicative records whose price is empty or "0" are dropped because a zero
// indicative price means not-yet-available, not a real value.
func DecodeData(payload string) ([]model.Quote, error) {
	segments := strings.SplitN(payload, "|", 4)
	if len(segments) < 4 {
		return nil, ErrMalformedFrame
	}

	trID := segments[1]

	if strings.Contains(trID, "UPANC0") {
		return decodeIndex(payload)
	}

	isTrade := strings.Contains(trID, "CNT0")
	isIndicative := strings.Contains(trID, "ANC0")
	if !isTrade && !isIndicative {
		return nil, nil
	}

	recordCount, err := strconv.Atoi(segments[2])
	if err != nil {
		return nil, ErrMalformedFrame
	}
	// The gateway sometimes declares zero records on trade/quote channels
	// even though data follows; a zero count there is an undercount.
	if recordCount <= 0 {
		recordCount = 1
	}

	venue := venueForTrID(trID)
	fields := strings.Split(segments[3], "^")
	fieldsPerRecord := len(fields) / recordCount
	if fieldsPerRecord == 0 {
		return nil, ErrMalformedFrame
	}

	quotes := make([]model.Quote, 0, recordCount)
	for i := 0; i < recordCount; i++ {
		offset := i * fieldsPerRecord

		if isIndicative {
			q, ok := decodeIndicativeRecord(fields, offset, venue)
			if !ok {
				continue
			}
			quotes = append(quotes, q)
			continue
		}

		if offset+5 >= len(fields) {
			break
		}
		quotes = append(quotes, model.Quote{
			Code:       fields[offset],
			Venue:      venue,
			Time:       fields[offset+1],
			Price:      fields[offset+2],
			Sign:       fields[offset+3],
			Change:     fields[offset+4],
			ChangeRate: fields[offset+5],
			Volume:     fieldOr(fields, offset+13, "0"),
		})
	}

	return quotes, nil
}

// Indicative-quote field positions. These are the newer fixed offsets; the
// tradable price sits later in the record than it does for confirmed trades.
const (
	indicativePriceOffset  = 47
	indicativeChangeOffset = 48
	indicativeSignOffset   = 49
	indicativeRateOffset   = 50
	indicativeVolumeOffset = 51
)

func decodeIndicativeRecord(fields []string, offset int, venue model.Venue) (model.Quote, bool) {
	if len(fields) < offset+indicativeVolumeOffset {
		return model.Quote{}, false
	}
	price := fields[offset+indicativePriceOffset]
	if price == "" || price == "0" {
		return model.Quote{}, false
	}
	return model.Quote{
		Code:       fields[offset],
		Venue:      venue,
		Time:       fields[offset+1],
		Price:      price,
		Change:     fields[offset+indicativeChangeOffset],
		Sign:       fields[offset+indicativeSignOffset],
		ChangeRate: fields[offset+indicativeRateOffset],
		Volume:     fieldOr(fields, offset+indicativeVolumeOffset, "0"),
		IsExpected: true,
	}, true
}

// decodeIndex parses an index frame, which uses a simpler fixed layout:
// everything after the last pipe, split on carets.
func decodeIndex(payload string) ([]model.Quote, error) {
	content := payload[strings.LastIndex(payload, "|")+1:]
	fields := strings.Split(content, "^")
	if len(fields) < 6 {
		return nil, ErrMalformedFrame
	}
	return []model.Quote{{
		Code:       fields[0],
		Venue:      model.VenueIndex,
		Time:       fields[1],
		Price:      fields[2],
		Sign:       fields[3],
		Change:     fields[4],
		ChangeRate: fields[5],
		Volume:     fieldOr(fields, 8, "0"),
	}}, nil
}

// venueForTrID resolves the originating venue embedded in the channel id.
// Domestic-primary is the fallback.
func venueForTrID(trID string) model.Venue {
	switch {
	case strings.Contains(trID, "H0NX"):
		return model.VenueAlt
	case strings.Contains(trID, "H0UN"):
		return model.VenueUnified
	default:
		return model.VenuePrimary
	}
}

func fieldOr(fields []string, idx int, fallback string) string {
	if idx < len(fields) {
		return fields[idx]
	}
	return fallback
}
