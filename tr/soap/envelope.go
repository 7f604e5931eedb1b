// Package soap encodes and decodes CWMP SOAP envelopes.
package soap

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

const (
	NsSoap    = "http://schemas.xmlsoap.org/soap/envelope/"
	NsSoapEnc = "http://schemas.xmlsoap.org/soap/encoding/"
	NsXsd     = "http://www.w3.org/2001/XMLSchema"
	NsXsi     = "http://www.w3.org/2001/XMLSchema-instance"
	NsCwmp    = "urn:dslforum-org:cwmp-1-2"
)

type envelopeIn struct {
	XMLName xml.Name `xml:"Envelope"`
	Header  struct {
		ID             string `xml:"ID"`
		HoldRequests   string `xml:"HoldRequests"`
		NoMoreRequests string `xml:"NoMoreRequests"`
	} `xml:"Header"`
	Body struct {
		Elements []element `xml:",any"`
	} `xml:"Body"`
}

type element struct {
	XMLName xml.Name
	Inner   []byte `xml:",innerxml"`
}

// Message is a parsed envelope. Method is the local name of the first body
// element, e.g. "GetParameterValues" or "InformResponse".
type Message struct {
	ID           string
	HoldRequests *bool
	Method       string

	inner []byte
}

// Parse reads one envelope.
func Parse(data []byte) (*Message, error) {
	var env envelopeIn
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid soap envelope: %w", err)
	}
	if len(env.Body.Elements) == 0 {
		return nil, fmt.Errorf("soap envelope has an empty body")
	}

	m := &Message{
		ID:     strings.TrimSpace(env.Header.ID),
		Method: env.Body.Elements[0].XMLName.Local,
		inner:  env.Body.Elements[0].Inner,
	}
	if h := strings.TrimSpace(env.Header.HoldRequests); h != "" {
		hold, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid HoldRequests %q", h)
		}
		m.HoldRequests = &hold
	}
	return m, nil
}

// Decode unmarshals the body element into v.
func (m *Message) Decode(v any) error {
	var buf bytes.Buffer
	buf.WriteString("<body>")
	buf.Write(m.inner)
	buf.WriteString("</body>")
	if err := xml.Unmarshal(buf.Bytes(), v); err != nil {
		return fmt.Errorf("invalid %s: %w", m.Method, err)
	}
	return nil
}

type envelopeOut struct {
	XMLName xml.Name   `xml:"soap:Envelope"`
	Soap    string     `xml:"xmlns:soap,attr"`
	SoapEnc string     `xml:"xmlns:soap-enc,attr"`
	Xsd     string     `xml:"xmlns:xsd,attr"`
	Xsi     string     `xml:"xmlns:xsi,attr"`
	Cwmp    string     `xml:"xmlns:cwmp,attr"`
	Header  *headerOut `xml:"soap:Header,omitempty"`
	Body    struct {
		Content any
	} `xml:"soap:Body"`
}

type headerOut struct {
	ID           *mustUnderstand `xml:"cwmp:ID,omitempty"`
	HoldRequests *mustUnderstand `xml:"cwmp:HoldRequests,omitempty"`
}

type mustUnderstand struct {
	MustUnderstand string `xml:"soap:mustUnderstand,attr"`
	Value          string `xml:",chardata"`
}

// Encode wraps content in an envelope. An empty id and a nil hold omit the
// corresponding header.
func Encode(id string, hold *bool, content any) ([]byte, error) {
	env := envelopeOut{
		Soap:    NsSoap,
		SoapEnc: NsSoapEnc,
		Xsd:     NsXsd,
		Xsi:     NsXsi,
		Cwmp:    NsCwmp,
	}
	if id != "" || hold != nil {
		env.Header = &headerOut{}
		if id != "" {
			env.Header.ID = &mustUnderstand{MustUnderstand: "1", Value: id}
		}
		if hold != nil {
			v := "0"
			if *hold {
				v = "1"
			}
			env.Header.HoldRequests = &mustUnderstand{MustUnderstand: "1", Value: v}
		}
	}
	env.Body.Content = content

	out, err := xml.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

func arrayType(elem string, n int) string {
	return fmt.Sprintf("%s[%d]", elem, n)
}
