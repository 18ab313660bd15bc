package domain

import "fmt"

// ResponseKind is the owner's answer to a ding request.
type ResponseKind string

const (
	ResponseAccept ResponseKind = "accept"
	ResponseReject ResponseKind = "reject"
	ResponseBusy   ResponseKind = "busy"
	ResponseCustom ResponseKind = "custom"
)

// ParseResponseKind validates a wire-level response type string.
func ParseResponseKind(s string) (ResponseKind, error) {
	switch ResponseKind(s) {
	case ResponseAccept, ResponseReject, ResponseBusy, ResponseCustom:
		return ResponseKind(s), nil
	default:
		return "", fmt.Errorf("unknown response type %q", s)
	}
}

// VisitorMessage maps a response kind to the text shown to the visitor.
// Custom falls back to a generic line when the owner supplied no message.
func VisitorMessage(kind ResponseKind, customMessage string) string {
	switch kind {
	case ResponseAccept:
		return "Ding accepted. Video chat session starting."
	case ResponseReject:
		return "Door owner declined the request"
	case ResponseBusy:
		return "Door owner is busy, please try later"
	case ResponseCustom:
		if customMessage != "" {
			return customMessage
		}
		return "Custom response"
	default:
		return "Unknown response"
	}
}
