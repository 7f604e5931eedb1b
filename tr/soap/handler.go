package soap

import (
	"errors"
	"strconv"
	"strings"

	"github.com/catawampus/cwmpd/std/log"
	"github.com/catawampus/cwmpd/tr/api"
	"github.com/catawampus/cwmpd/tr/fault"
	"github.com/catawampus/cwmpd/tr/notify"
)

// Handler answers ACS requests with the CPE RPC layer.
type Handler struct {
	cpe *api.CPE
}

func NewHandler(cpe *api.CPE) *Handler {
	return &Handler{cpe: cpe}
}

func (h *Handler) String() string {
	return "soap-handler"
}

// Handle answers one request message. The returned code is the CWMP fault
// code sent, or zero on success. The error is only set when the response
// could not be encoded.
func (h *Handler) Handle(m *Message) ([]byte, int, error) {
	content, err := h.dispatch(m)
	if err != nil {
		code := fault.Code(err)
		log.Info(h, "RPC failed", "method", m.Method, "code", code, "err", err)
		out, encErr := Encode(m.ID, nil, NewFault(err))
		return out, code, encErr
	}
	out, err := Encode(m.ID, nil, content)
	return out, 0, err
}

func (h *Handler) dispatch(m *Message) (any, error) {
	switch m.Method {
	case "GetRPCMethods":
		resp := GetRPCMethodsResponse{}
		resp.MethodList.Methods = h.cpe.GetRPCMethods()
		resp.MethodList.ArrayType = arrayType("xsd:string", len(resp.MethodList.Methods))
		return resp, nil

	case "GetParameterNames":
		var req GetParameterNames
		if err := decode(m, &req); err != nil {
			return nil, err
		}
		next, err := parseBool(req.NextLevel)
		if err != nil {
			return nil, err
		}
		infos, err := h.cpe.GetParameterNames(strings.TrimSpace(req.ParameterPath), next)
		if err != nil {
			return nil, err
		}
		resp := GetParameterNamesResponse{}
		for _, i := range infos {
			resp.ParameterList.Infos = append(resp.ParameterList.Infos, ParameterInfoOut{
				Name:     i.Name,
				Writable: boolInt(i.Writable),
			})
		}
		resp.ParameterList.ArrayType = arrayType("cwmp:ParameterInfoStruct", len(infos))
		return resp, nil

	case "GetParameterValues":
		var req GetParameterValues
		if err := decode(m, &req); err != nil {
			return nil, err
		}
		vals, err := h.cpe.GetParameterValues(trimAll(req.ParameterNames))
		if err != nil {
			return nil, err
		}
		out := make([]ParameterValueOut, 0, len(vals))
		for _, v := range vals {
			out = append(out, NewParameterValue(v.Name, v.Value))
		}
		return GetParameterValuesResponse{ParameterList: newParameterValueList(out)}, nil

	case "SetParameterValues":
		var req SetParameterValues
		if err := decode(m, &req); err != nil {
			return nil, err
		}
		list := make([]api.ParamValue, 0, len(req.ParameterList))
		for _, p := range req.ParameterList {
			list = append(list, api.ParamValue{Name: strings.TrimSpace(p.Name), Value: p.Value})
		}
		if _, err := h.cpe.SetParameterValues(list, req.ParameterKey); err != nil {
			return nil, err
		}
		return SetParameterValuesResponse{Status: 0}, nil

	case "AddObject":
		var req AddObject
		if err := decode(m, &req); err != nil {
			return nil, err
		}
		idx, err := h.cpe.AddObject(strings.TrimSpace(req.ObjectName), req.ParameterKey)
		if err != nil {
			return nil, err
		}
		return AddObjectResponse{InstanceNumber: idx}, nil

	case "X_CATAWAMPUS_ORG_AddObjects":
		var req AddObjects
		if err := decode(m, &req); err != nil {
			return nil, err
		}
		list := make([]api.ObjectCount, 0, len(req.ObjectList))
		for _, o := range req.ObjectList {
			list = append(list, api.ObjectCount{Name: strings.TrimSpace(o.ObjectName), Count: o.Count})
		}
		res, err := h.cpe.AddObjects(list, req.ParameterKey)
		if err != nil {
			return nil, err
		}
		resp := AddObjectsResponse{}
		for _, r := range res {
			resp.ObjectList = append(resp.ObjectList, ObjectIndicesOut{ObjectName: r.Name, InstanceNumbers: r.Indices})
		}
		return resp, nil

	case "DeleteObject":
		var req DeleteObject
		if err := decode(m, &req); err != nil {
			return nil, err
		}
		if err := h.cpe.DeleteObject(strings.TrimSpace(req.ObjectName), req.ParameterKey); err != nil {
			return nil, err
		}
		return DeleteObjectResponse{}, nil

	case "SetParameterAttributes":
		var req SetParameterAttributes
		if err := decode(m, &req); err != nil {
			return nil, err
		}
		list := make([]notify.Attributes, 0, len(req.ParameterList))
		for _, p := range req.ParameterList {
			nc, err := parseBool(p.NotificationChange)
			if err != nil {
				return nil, err
			}
			ac, err := parseBool(p.AccessListChange)
			if err != nil {
				return nil, err
			}
			list = append(list, notify.Attributes{
				Name:               strings.TrimSpace(p.Name),
				NotificationChange: nc,
				Notification:       notify.Level(p.Notification),
				AccessListChange:   ac,
				AccessList:         p.AccessList,
			})
		}
		if err := h.cpe.SetParameterAttributes(list); err != nil {
			return nil, err
		}
		return SetParameterAttributesResponse{}, nil

	case "GetParameterAttributes":
		var req GetParameterAttributes
		if err := decode(m, &req); err != nil {
			return nil, err
		}
		attrs, err := h.cpe.GetParameterAttributes(trimAll(req.ParameterNames))
		if err != nil {
			return nil, err
		}
		resp := GetParameterAttributesResponse{}
		for _, a := range attrs {
			resp.ParameterList.Attributes = append(resp.ParameterList.Attributes, ParameterAttributeOut{
				Name:         a.Name,
				Notification: int(a.Notification),
				AccessList:   a.AccessList,
			})
		}
		resp.ParameterList.ArrayType = arrayType("cwmp:ParameterAttributeStruct", len(attrs))
		return resp, nil
	}

	return nil, fault.Errorf(fault.ErrMethodNotSupported, "%s", m.Method)
}

func decode(m *Message, v any) error {
	if err := m.Decode(v); err != nil {
		return fault.Errorf(fault.ErrInvalidArguments, "%v", err)
	}
	return nil
}

func parseBool(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fault.Errorf(fault.ErrInvalidArguments, "invalid boolean %q", s)
	}
	return b, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func trimAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.TrimSpace(n)
	}
	return out
}

// NewFault encodes err as a CWMP fault. Parameter faults of a
// SetParameterValues call are listed in the detail.
func NewFault(err error) FaultOut {
	code := fault.Code(err)
	f := FaultOut{FaultCode: "Server", FaultString: "CWMP fault"}
	if code >= 9003 && code <= 9008 {
		f.FaultCode = "Client"
	}
	f.Detail.Fault.FaultCode = code
	f.Detail.Fault.FaultString = fault.String(code)

	var l *fault.List
	if errors.As(err, &l) {
		for _, pe := range l.Faults {
			if pe.Name == "" {
				continue
			}
			f.Detail.Fault.Params = append(f.Detail.Fault.Params, ParameterFault{
				ParameterName: pe.Name,
				FaultCode:     pe.Code(),
				FaultString:   pe.Error(),
			})
		}
	}
	return f
}
