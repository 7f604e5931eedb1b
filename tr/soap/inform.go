package soap

import (
	"encoding/xml"
	"time"

	"github.com/catawampus/cwmpd/tr/attr"
)

// Standard Inform event codes.
const (
	EventBootstrap         = "0 BOOTSTRAP"
	EventBoot              = "1 BOOT"
	EventPeriodic          = "2 PERIODIC"
	EventValueChange       = "4 VALUE CHANGE"
	EventConnectionRequest = "6 CONNECTION REQUEST"
	EventTransferComplete  = "7 TRANSFER COMPLETE"
	EventMReboot           = "M Reboot"
)

type DeviceID struct {
	Manufacturer string `xml:"Manufacturer"`
	OUI          string `xml:"OUI"`
	ProductClass string `xml:"ProductClass"`
	SerialNumber string `xml:"SerialNumber"`
}

type Event struct {
	EventCode  string `xml:"EventCode"`
	CommandKey string `xml:"CommandKey"`
}

// Inform is the session-opening request.
type Inform struct {
	DeviceID     DeviceID
	Events       []Event
	MaxEnvelopes int
	CurrentTime  time.Time
	RetryCount   int
	Parameters   []ParameterValueOut
}

type informOut struct {
	XMLName  xml.Name `xml:"cwmp:Inform"`
	DeviceID DeviceID `xml:"DeviceId"`
	Event    struct {
		soapArray
		Events []Event `xml:"EventStruct"`
	} `xml:"Event"`
	MaxEnvelopes  int                `xml:"MaxEnvelopes"`
	CurrentTime   string             `xml:"CurrentTime"`
	RetryCount    int                `xml:"RetryCount"`
	ParameterList parameterValueList `xml:"ParameterList"`
}

// EncodeInform builds the Inform envelope.
func EncodeInform(id string, in Inform) ([]byte, error) {
	out := informOut{
		DeviceID:      in.DeviceID,
		MaxEnvelopes:  max(in.MaxEnvelopes, 1),
		CurrentTime:   attr.FormatDate(in.CurrentTime),
		RetryCount:    in.RetryCount,
		ParameterList: newParameterValueList(in.Parameters),
	}
	out.Event.ArrayType = arrayType("cwmp:EventStruct", len(in.Events))
	out.Event.Events = in.Events
	return Encode(id, nil, out)
}
