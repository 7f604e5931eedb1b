package soap

import (
	"encoding/xml"
	"time"

	"github.com/catawampus/cwmpd/tr/attr"
)

// Requests received from the ACS.

type GetParameterNames struct {
	ParameterPath string `xml:"ParameterPath"`
	NextLevel     string `xml:"NextLevel"`
}

type GetParameterValues struct {
	ParameterNames []string `xml:"ParameterNames>string"`
}

type ParameterValueIn struct {
	Name  string `xml:"Name"`
	Value string `xml:"Value"`
}

type SetParameterValues struct {
	ParameterList []ParameterValueIn `xml:"ParameterList>ParameterValueStruct"`
	ParameterKey  string             `xml:"ParameterKey"`
}

type AddObject struct {
	ObjectName   string `xml:"ObjectName"`
	ParameterKey string `xml:"ParameterKey"`
}

type ObjectCountIn struct {
	ObjectName string `xml:"ObjectName"`
	Count      int    `xml:"Count"`
}

type AddObjects struct {
	ObjectList   []ObjectCountIn `xml:"ObjectList>ObjectCountStruct"`
	ParameterKey string          `xml:"ParameterKey"`
}

type DeleteObject struct {
	ObjectName   string `xml:"ObjectName"`
	ParameterKey string `xml:"ParameterKey"`
}

type SetParameterAttributesIn struct {
	Name               string   `xml:"Name"`
	NotificationChange string   `xml:"NotificationChange"`
	Notification       int      `xml:"Notification"`
	AccessListChange   string   `xml:"AccessListChange"`
	AccessList         []string `xml:"AccessList>string"`
}

type SetParameterAttributes struct {
	ParameterList []SetParameterAttributesIn `xml:"ParameterList>SetParameterAttributesStruct"`
}

type GetParameterAttributes struct {
	ParameterNames []string `xml:"ParameterNames>string"`
}

// Responses received from the ACS.

type InformResponse struct {
	MaxEnvelopes int `xml:"MaxEnvelopes"`
}

type FaultIn struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
	Detail      struct {
		Code   int    `xml:"Fault>FaultCode"`
		String string `xml:"Fault>FaultString"`
	} `xml:"detail"`
}

// Messages sent by the CPE.

type soapArray struct {
	ArrayType string `xml:"soap-enc:arrayType,attr"`
}

type typedValue struct {
	Type  string `xml:"xsi:type,attr"`
	Value string `xml:",chardata"`
}

type ParameterValueOut struct {
	Name  string     `xml:"Name"`
	Value typedValue `xml:"Value"`
}

type parameterValueList struct {
	soapArray
	Values []ParameterValueOut `xml:"ParameterValueStruct"`
}

// NewParameterValue formats v with its XML schema type.
func NewParameterValue(name string, v any) ParameterValueOut {
	return ParameterValueOut{Name: name, Value: typedValue{Type: xsdType(v), Value: attr.FormatValue(v)}}
}

func newParameterValueList(vals []ParameterValueOut) parameterValueList {
	return parameterValueList{
		soapArray: soapArray{arrayType("cwmp:ParameterValueStruct", len(vals))},
		Values:    vals,
	}
}

func xsdType(v any) string {
	switch v.(type) {
	case bool:
		return "xsd:boolean"
	case int, int32, int64:
		return "xsd:int"
	case uint, uint32, uint64:
		return "xsd:unsignedInt"
	case time.Time:
		return "xsd:dateTime"
	}
	return "xsd:string"
}

type GetRPCMethodsResponse struct {
	XMLName    xml.Name `xml:"cwmp:GetRPCMethodsResponse"`
	MethodList struct {
		soapArray
		Methods []string `xml:"string"`
	} `xml:"MethodList"`
}

type ParameterInfoOut struct {
	Name     string `xml:"Name"`
	Writable int    `xml:"Writable"`
}

type GetParameterNamesResponse struct {
	XMLName       xml.Name `xml:"cwmp:GetParameterNamesResponse"`
	ParameterList struct {
		soapArray
		Infos []ParameterInfoOut `xml:"ParameterInfoStruct"`
	} `xml:"ParameterList"`
}

type GetParameterValuesResponse struct {
	XMLName       xml.Name           `xml:"cwmp:GetParameterValuesResponse"`
	ParameterList parameterValueList `xml:"ParameterList"`
}

type SetParameterValuesResponse struct {
	XMLName xml.Name `xml:"cwmp:SetParameterValuesResponse"`
	Status  int      `xml:"Status"`
}

type AddObjectResponse struct {
	XMLName        xml.Name `xml:"cwmp:AddObjectResponse"`
	InstanceNumber string   `xml:"InstanceNumber"`
	Status         int      `xml:"Status"`
}

type ObjectIndicesOut struct {
	ObjectName      string   `xml:"ObjectName"`
	InstanceNumbers []string `xml:"InstanceNumbers>string"`
}

type AddObjectsResponse struct {
	XMLName    xml.Name           `xml:"cwmp:X_CATAWAMPUS_ORG_AddObjectsResponse"`
	ObjectList []ObjectIndicesOut `xml:"ObjectList>ObjectIndexStruct"`
	Status     int                `xml:"Status"`
}

type DeleteObjectResponse struct {
	XMLName xml.Name `xml:"cwmp:DeleteObjectResponse"`
	Status  int      `xml:"Status"`
}

type SetParameterAttributesResponse struct {
	XMLName xml.Name `xml:"cwmp:SetParameterAttributesResponse"`
}

type ParameterAttributeOut struct {
	Name         string   `xml:"Name"`
	Notification int      `xml:"Notification"`
	AccessList   []string `xml:"AccessList>string"`
}

type GetParameterAttributesResponse struct {
	XMLName       xml.Name `xml:"cwmp:GetParameterAttributesResponse"`
	ParameterList struct {
		soapArray
		Attributes []ParameterAttributeOut `xml:"ParameterAttributeStruct"`
	} `xml:"ParameterList"`
}

type GetRPCMethods struct {
	XMLName xml.Name `xml:"cwmp:GetRPCMethods"`
}

// Fault

type ParameterFault struct {
	ParameterName string `xml:"ParameterName"`
	FaultCode     int    `xml:"FaultCode"`
	FaultString   string `xml:"FaultString"`
}

type FaultOut struct {
	XMLName     xml.Name `xml:"soap:Fault"`
	FaultCode   string   `xml:"faultcode"`
	FaultString string   `xml:"faultstring"`
	Detail      struct {
		Fault struct {
			FaultCode   int              `xml:"FaultCode"`
			FaultString string           `xml:"FaultString"`
			Params      []ParameterFault `xml:"SetParameterValuesFault,omitempty"`
		} `xml:"cwmp:Fault"`
	} `xml:"detail"`
}
