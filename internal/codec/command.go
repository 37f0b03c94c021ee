package codec

import (
	"encoding/json"

	"github.com/stockplus/kisfeed/internal/model"
)

// Channel ids (tr_id) accepted by the gateway, keyed by venue and message
// kind. The index channel has a single id regardless of kind.
const (
	TrIDDomesticTrade      = "H0STCNT0"
	TrIDDomesticIndicative = "H0STANC0"
	TrIDUnifiedTrade       = "H0UNCNT0"
	TrIDUnifiedIndicative  = "H0UNANC0"
	TrIDNightTrade         = "H0NXCNT0"
	TrIDNightIndicative    = "H0NXANC0"
	TrIDIndex              = "H0UPANC0"
)

// ResolveTrID maps a (venue, channel) pair to the gateway channel id.
// Domestic trade is the fallback for anything unrecognized.
func ResolveTrID(venue model.Venue, channel model.Channel) string {
	switch venue {
	case model.VenueIndex:
		return TrIDIndex
	case model.VenueUnified:
		if channel == model.ChannelQuote {
			return TrIDUnifiedIndicative
		}
		return TrIDUnifiedTrade
	case model.VenueAlt:
		if channel == model.ChannelQuote {
			return TrIDNightIndicative
		}
		return TrIDNightTrade
	default:
		if channel == model.ChannelQuote {
			return TrIDDomesticIndicative
		}
		return TrIDDomesticTrade
	}
}

type commandHeader struct {
	ApprovalKey string `json:"approval_key"`
	CustType    string `json:"custtype"`
	TrType      string `json:"tr_type"`
	ContentType string `json:"content-type"`
}

type commandInput struct {
	TrID  string `json:"tr_id"`
	TrKey string `json:"tr_key"`
}

type commandBody struct {
	Input commandInput `json:"input"`
}

// Command is an outbound subscribe/unsubscribe frame.
type Command struct {
	Header commandHeader `json:"header"`
	Body   commandBody   `json:"body"`
}

// EncodeCommand serializes a subscription intent into the gateway's command
// frame, authenticated with the session's approval key.
func EncodeCommand(approvalKey string, intent model.SubscriptionIntent) ([]byte, error) {
	cmd := Command{
		Header: commandHeader{
			ApprovalKey: approvalKey,
			CustType:    "P", // retail account
			TrType:      string(intent.Action),
			ContentType: "utf-8",
		},
		Body: commandBody{
			Input: commandInput{
				TrID:  ResolveTrID(intent.Key.Venue, intent.Channel),
				TrKey: intent.Key.Code,
			},
		},
	}
	return json.Marshal(cmd)
}
