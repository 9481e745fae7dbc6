package domain

import "strings"

// Response status values.
const (
	ResponseSuccess = "success"
	ResponseError   = "error"
)

// Response acknowledges a command.
//
// ID is set only on the acknowledgement of a SUBSCRIBE and carries the
// subscription id, which relaying nodes use as a correlation id.
type Response struct {
	Response     string `json:"response"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	ID           string `json:"id,omitempty"`
}

// SuccessResponse returns a plain success response.
func SuccessResponse() Response {
	return Response{Response: ResponseSuccess}
}

// SubscribedResponse returns the success response of a SUBSCRIBE.
func SubscribedResponse(id string) Response {
	return Response{Response: ResponseSuccess, ID: id}
}

// ErrorResponse returns an error response with message.
func ErrorResponse(message string) Response {
	return Response{Response: ResponseError, ErrorMessage: message}
}

// ResponseFromError returns the error response reporting err.
func ResponseFromError(err error) Response {
	return ErrorResponse(WireMessage(err))
}

// IsSuccess reports whether the response signals success.
func (r Response) IsSuccess() bool {
	return strings.EqualFold(r.Response, ResponseSuccess)
}

// ResultSize terminates a stream of Resource frames with the number of
// resources sent, or carries the delivery count of an UNSUBSCRIBE.
type ResultSize struct {
	ResultSize int `json:"resultSize"`
}
