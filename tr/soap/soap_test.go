package soap_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	tu "github.com/catawampus/cwmpd/std/utils/testutils"
	"github.com/catawampus/cwmpd/tr/api"
	"github.com/catawampus/cwmpd/tr/attr"
	"github.com/catawampus/cwmpd/tr/core"
	"github.com/catawampus/cwmpd/tr/notify"
	"github.com/catawampus/cwmpd/tr/soap"
	"github.com/stretchr/testify/require"
)

func request(id string, body string) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"
  xmlns:soap-enc="http://schemas.xmlsoap.org/soap/encoding/"
  xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
  xmlns:cwmp="urn:dslforum-org:cwmp-1-2">
 <soap:Header>
  <cwmp:ID soap:mustUnderstand="1">%s</cwmp:ID>
 </soap:Header>
 <soap:Body>%s</soap:Body>
</soap:Envelope>`, id, body))
}

type host struct {
	core.Object
}

var hostDesc = core.NewDesc("Host").
	Param("HostName", attr.String("")).
	Param("Active", attr.Bool(false))

type device struct {
	core.Object
}

var deviceDesc = core.NewDesc("Device").
	Param("Name", attr.String("cpe")).
	Param("Uptime", attr.ReadOnlyUnsigned(42)).
	Param("HostNumberOfEntries", attr.NumberOf("Host"))

func newHandler(t *testing.T) (*soap.Handler, *core.Root) {
	tu.SetT(t)
	d := &device{}
	d.Init(d, deviceDesc)
	d.AddList("Host", core.NewList(func() (core.Node, error) {
		h := &host{}
		h.Init(h, hostDesc)
		return h, nil
	}))
	root := core.NewRoot()
	root.AddObject("Device", d)

	cpe := tu.NoErr(api.NewCPE(root, notify.NewEngine(root, nil, nil), nil))
	return soap.NewHandler(cpe), root
}

func handle(t *testing.T, h *soap.Handler, body string) (string, int) {
	m := tu.NoErr(soap.Parse(request("req-1", body)))
	out, code, err := h.Handle(m)
	require.NoError(t, err)
	return string(out), code
}

func TestParse(t *testing.T) {
	tu.SetT(t)
	m := tu.NoErr(soap.Parse([]byte(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"
  xmlns:cwmp="urn:dslforum-org:cwmp-1-0">
 <soap:Header>
  <cwmp:ID soap:mustUnderstand="1"> 77 </cwmp:ID>
  <cwmp:HoldRequests soap:mustUnderstand="1">1</cwmp:HoldRequests>
 </soap:Header>
 <soap:Body><cwmp:InformResponse><MaxEnvelopes>1</MaxEnvelopes></cwmp:InformResponse></soap:Body>
</soap:Envelope>`)))
	require.Equal(t, "77", m.ID)
	require.Equal(t, "InformResponse", m.Method)
	require.NotNil(t, m.HoldRequests)
	require.True(t, *m.HoldRequests)

	var resp soap.InformResponse
	require.NoError(t, m.Decode(&resp))
	require.Equal(t, 1, resp.MaxEnvelopes)

	_, err := soap.Parse([]byte(`<soap:Envelope xmlns:soap="x"><soap:Body></soap:Body></soap:Envelope>`))
	require.Error(t, err)
	_, err = soap.Parse([]byte(`not xml`))
	require.Error(t, err)
}

func TestGetParameterValues(t *testing.T) {
	h, _ := newHandler(t)
	out, code := handle(t, h, `<cwmp:GetParameterValues>
  <ParameterNames soap-enc:arrayType="xsd:string[2]">
   <string>Device.Name</string>
   <string>Device.Uptime</string>
  </ParameterNames>
 </cwmp:GetParameterValues>`)
	require.Equal(t, 0, code)
	require.Contains(t, out, `<cwmp:ID soap:mustUnderstand="1">req-1</cwmp:ID>`)
	require.Contains(t, out, `<cwmp:GetParameterValuesResponse>`)
	require.Contains(t, out, `<Name>Device.Name</Name><Value xsi:type="xsd:string">cpe</Value>`)
	require.Contains(t, out, `<Name>Device.Uptime</Name><Value xsi:type="xsd:unsignedInt">42</Value>`)
	require.Contains(t, out, `soap-enc:arrayType="cwmp:ParameterValueStruct[2]"`)
}

func TestSetParameterValuesFault(t *testing.T) {
	h, root := newHandler(t)
	out, code := handle(t, h, `<cwmp:SetParameterValues>
  <ParameterList>
   <ParameterValueStruct><Name>Device.Name</Name><Value>router</Value></ParameterValueStruct>
   <ParameterValueStruct><Name>Device.Uptime</Name><Value>3</Value></ParameterValueStruct>
  </ParameterList>
  <ParameterKey>k1</ParameterKey>
 </cwmp:SetParameterValues>`)
	require.Equal(t, 9008, code)
	require.Contains(t, out, `<faultcode>Client</faultcode>`)
	require.Contains(t, out, `<FaultCode>9008</FaultCode>`)
	require.Contains(t, out, `<SetParameterValuesFault><ParameterName>Device.Uptime</ParameterName><FaultCode>9008</FaultCode>`)
	require.Equal(t, "cpe", tu.NoErr(root.Get("Device.Name")))

	out, code = handle(t, h, `<cwmp:SetParameterValues>
  <ParameterList>
   <ParameterValueStruct><Name>Device.Name</Name><Value>router</Value></ParameterValueStruct>
  </ParameterList>
  <ParameterKey>k2</ParameterKey>
 </cwmp:SetParameterValues>`)
	require.Equal(t, 0, code)
	require.Contains(t, out, `<cwmp:SetParameterValuesResponse><Status>0</Status></cwmp:SetParameterValuesResponse>`)
	require.Equal(t, "router", tu.NoErr(root.Get("Device.Name")))
}

func TestObjects(t *testing.T) {
	h, root := newHandler(t)
	out, code := handle(t, h, `<cwmp:AddObject><ObjectName>Device.Host.</ObjectName><ParameterKey>a</ParameterKey></cwmp:AddObject>`)
	require.Equal(t, 0, code)
	require.Contains(t, out, `<InstanceNumber>1</InstanceNumber><Status>0</Status>`)

	out, code = handle(t, h, `<cwmp:X_CATAWAMPUS_ORG_AddObjects>
  <ObjectList>
   <ObjectCountStruct><ObjectName>Device.Host.</ObjectName><Count>2</Count></ObjectCountStruct>
  </ObjectList>
  <ParameterKey>b</ParameterKey>
 </cwmp:X_CATAWAMPUS_ORG_AddObjects>`)
	require.Equal(t, 0, code)
	require.Contains(t, out, `<ObjectName>Device.Host.</ObjectName><InstanceNumbers><string>2</string><string>3</string></InstanceNumbers>`)
	require.Equal(t, uint64(3), tu.NoErr(root.Get("Device.HostNumberOfEntries")))

	_, code = handle(t, h, `<cwmp:DeleteObject><ObjectName>Device.Host.2.</ObjectName><ParameterKey>c</ParameterKey></cwmp:DeleteObject>`)
	require.Equal(t, 0, code)
	require.Equal(t, uint64(2), tu.NoErr(root.Get("Device.HostNumberOfEntries")))

	_, code = handle(t, h, `<cwmp:DeleteObject><ObjectName>Device.Host.2.</ObjectName><ParameterKey>c</ParameterKey></cwmp:DeleteObject>`)
	require.Equal(t, 9005, code)
}

func TestGetParameterNames(t *testing.T) {
	h, _ := newHandler(t)
	out, code := handle(t, h, `<cwmp:GetParameterNames><ParameterPath>Device.</ParameterPath><NextLevel>1</NextLevel></cwmp:GetParameterNames>`)
	require.Equal(t, 0, code)
	require.Contains(t, out, `<ParameterInfoStruct><Name>Device.Name</Name><Writable>1</Writable></ParameterInfoStruct>`)
	require.Contains(t, out, `<ParameterInfoStruct><Name>Device.Uptime</Name><Writable>0</Writable></ParameterInfoStruct>`)
	require.Contains(t, out, `<ParameterInfoStruct><Name>Device.Host.</Name><Writable>1</Writable></ParameterInfoStruct>`)

	_, code = handle(t, h, `<cwmp:GetParameterNames><ParameterPath>Device.</ParameterPath><NextLevel>maybe</NextLevel></cwmp:GetParameterNames>`)
	require.Equal(t, 9003, code)
}

func TestAttributes(t *testing.T) {
	h, _ := newHandler(t)
	_, code := handle(t, h, `<cwmp:SetParameterAttributes><ParameterList>
  <SetParameterAttributesStruct>
   <Name>Device.Name</Name>
   <NotificationChange>true</NotificationChange>
   <Notification>2</Notification>
   <AccessListChange>false</AccessListChange>
   <AccessList></AccessList>
  </SetParameterAttributesStruct>
 </ParameterList></cwmp:SetParameterAttributes>`)
	require.Equal(t, 0, code)

	out, code := handle(t, h, `<cwmp:GetParameterAttributes><ParameterNames><string>Device.Name</string></ParameterNames></cwmp:GetParameterAttributes>`)
	require.Equal(t, 0, code)
	require.Contains(t, out, `<Name>Device.Name</Name><Notification>2</Notification>`)
}

func TestUnsupported(t *testing.T) {
	h, _ := newHandler(t)
	out, code := handle(t, h, `<cwmp:Reboot><CommandKey>x</CommandKey></cwmp:Reboot>`)
	require.Equal(t, 9000, code)
	require.Contains(t, out, `<faultcode>Server</faultcode>`)
	require.Contains(t, out, `<FaultString>method not supported</FaultString>`)

	out, code = handle(t, h, `<cwmp:GetRPCMethods></cwmp:GetRPCMethods>`)
	require.Equal(t, 0, code)
	require.Contains(t, out, `<string>X_CATAWAMPUS_ORG_AddObjects</string>`)
}

func TestEncodeInform(t *testing.T) {
	tu.SetT(t)
	hold := false
	out := string(tu.NoErr(soap.Encode("", &hold, soap.GetRPCMethods{})))
	require.Contains(t, out, `<cwmp:HoldRequests soap:mustUnderstand="1">0</cwmp:HoldRequests>`)
	require.NotContains(t, out, `cwmp:ID`)

	out = string(tu.NoErr(soap.EncodeInform("9", soap.Inform{
		DeviceID: soap.DeviceID{Manufacturer: "Acme", OUI: "F88FCA", ProductClass: "Box", SerialNumber: "SN1"},
		Events: []soap.Event{
			{EventCode: soap.EventBoot},
			{EventCode: soap.EventValueChange},
		},
		CurrentTime: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		RetryCount:  2,
		Parameters:  []soap.ParameterValueOut{soap.NewParameterValue("Device.Enable", true)},
	})))
	require.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	require.Contains(t, out, `<DeviceId><Manufacturer>Acme</Manufacturer><OUI>F88FCA</OUI>`)
	require.Contains(t, out, `<Event soap-enc:arrayType="cwmp:EventStruct[2]"><EventStruct><EventCode>1 BOOT</EventCode><CommandKey></CommandKey></EventStruct>`)
	require.Contains(t, out, `<MaxEnvelopes>1</MaxEnvelopes><CurrentTime>2024-01-02T03:04:05Z</CurrentTime><RetryCount>2</RetryCount>`)
	require.Contains(t, out, `<Value xsi:type="xsd:boolean">true</Value>`)
}
