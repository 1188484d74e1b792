package obsws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

const (
	DefaultPort = 4455
	Subprotocol = "obswebsocket.json"
	RPCVersion  = 1
)

// Op codes of the obs-websocket v5 envelope.
const (
	OpHello           = 0
	OpIdentify        = 1
	OpIdentified      = 2
	OpReidentify      = 3
	OpEvent           = 5
	OpRequest         = 6
	OpRequestResponse = 7
)

// Event subscription bits. All excludes the high-volume categories.
const (
	SubscribeGeneral     = 1 << 0
	SubscribeConfig      = 1 << 1
	SubscribeScenes      = 1 << 2
	SubscribeInputs      = 1 << 3
	SubscribeTransitions = 1 << 4
	SubscribeFilters     = 1 << 5
	SubscribeOutputs     = 1 << 6
	SubscribeSceneItems  = 1 << 7
	SubscribeMediaInputs = 1 << 8
	SubscribeVendors     = 1 << 9
	SubscribeUI          = 1 << 10
	SubscribeAll         = SubscribeGeneral | SubscribeConfig | SubscribeScenes | SubscribeInputs |
		SubscribeTransitions | SubscribeFilters | SubscribeOutputs | SubscribeSceneItems |
		SubscribeMediaInputs | SubscribeVendors | SubscribeUI
)

// Request status codes used by this package and its mock.
const (
	StatusSuccess               = 100
	StatusUnknownRequestType    = 204
	StatusMissingRequestField   = 300
	StatusInvalidRequestField   = 400
	StatusOutputRunning         = 500
	StatusOutputNotRunning      = 501
	StatusResourceNotFound      = 600
	StatusResourceAlreadyExists = 601
)

// Close codes sent by obs-websocket.
const (
	CloseAuthenticationFailed  = 4009
	CloseUnsupportedRPCVersion = 4010
	CloseSessionInvalidated    = 4011
)

var closeReasons = map[int]string{
	4000: "unknown reason",
	4002: "message decode error",
	4003: "missing data field",
	4004: "invalid data field type",
	4005: "invalid data field value",
	4006: "unknown op code",
	4007: "not identified",
	4008: "already identified",
	4009: "authentication failed",
	4010: "unsupported rpc version",
	4011: "session invalidated",
	4012: "unsupported feature",
}

var (
	ErrAuthenticationRequired = errors.New("obs requires a password")
	ErrAuthenticationFailed   = errors.New("authentication failed")
	ErrRequestTimeout         = errors.New("request timed out")
)

type message struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type helloData struct {
	OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
	Authentication      *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication,omitempty"`
}

type identifyData struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions"`
}

type identifiedData struct {
	NegotiatedRPCVersion int `json:"negotiatedRpcVersion"`
}

type requestData struct {
	RequestType string          `json:"requestType"`
	RequestID   string          `json:"requestId"`
	RequestData json.RawMessage `json:"requestData,omitempty"`
}

// RequestStatus is the status block of a request response.
type RequestStatus struct {
	Result  bool   `json:"result"`
	Code    int    `json:"code"`
	Comment string `json:"comment,omitempty"`
}

type requestResponse struct {
	RequestType   string          `json:"requestType"`
	RequestID     string          `json:"requestId"`
	RequestStatus RequestStatus   `json:"requestStatus"`
	ResponseData  json.RawMessage `json:"responseData,omitempty"`
}

func encode(op int, d any) (message, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return message{}, fmt.Errorf("encode op %d: %w", op, err)
	}
	return message{Op: op, D: raw}, nil
}

// closeError turns a websocket close frame into a readable error.
func closeError(err error) error {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return err
	}
	if ce.Code == CloseAuthenticationFailed {
		return fmt.Errorf("%w (close %d)", ErrAuthenticationFailed, ce.Code)
	}
	if reason, ok := closeReasons[ce.Code]; ok {
		return fmt.Errorf("obs closed the connection: %s (close %d)", reason, ce.Code)
	}
	return err
}
