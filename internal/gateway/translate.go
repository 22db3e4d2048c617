package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kiranshivaraju/orthogate/internal/transport"
	"github.com/tidwall/gjson"
)

// maxJSONBody bounds JSON responses read into memory.
const maxJSONBody = 8 << 20

// detailFields are the upstream error-body fields consulted, in order.
var detailFields = []string{"detail", "error", "message"}

// translateError converts a transport failure into a gateway error.
// service names the collaborator in the caller-visible message.
func translateError(service string, err error) *Error {
	if gwErr, ok := AsError(err); ok {
		return gwErr
	}

	var statusErr *transport.StatusError
	switch {
	case errors.As(err, &statusErr):
		return translateRejection(statusErr)
	case errors.Is(err, transport.ErrTimeout):
		return &Error{
			Kind:    KindTimeout,
			Message: fmt.Sprintf("%s did not respond in time", service),
			Err:     err,
		}
	default:
		return &Error{
			Kind:    KindServiceUnavailable,
			Message: fmt.Sprintf("%s is unavailable", service),
			Err:     err,
		}
	}
}

func translateRejection(se *transport.StatusError) *Error {
	statusLine := se.StatusLine
	if statusLine == "" {
		statusLine = fmt.Sprintf("%d %s", se.Status, http.StatusText(se.Status))
	}

	gwErr := &Error{
		Kind:    KindUpstreamRejected,
		Message: "upstream returned " + statusLine,
		Status:  se.Status,
		Err:     se,
	}
	if msg, detail, ok := extractDetail(se.Body); ok {
		gwErr.Detail = detail
		if msg != "" {
			gwErr.Message = msg
		}
	}
	return gwErr
}

// extractDetail finds the first of detailFields present in body. A string
// value is returned as msg too; structured values only as raw JSON.
func extractDetail(body []byte) (msg string, detail json.RawMessage, ok bool) {
	if !gjson.ValidBytes(body) {
		return "", nil, false
	}
	for _, field := range detailFields {
		res := gjson.GetBytes(body, field)
		if !res.Exists() || res.Type == gjson.Null {
			continue
		}
		if res.Type == gjson.String {
			msg = res.String()
		}
		return msg, json.RawMessage(res.Raw), true
	}
	return "", nil, false
}

// checkEnvelope inspects a 2xx JSON body. Malformed JSON or an explicit
// "success": false is a processing failure.
func checkEnvelope(service string, body []byte) *Error {
	if !gjson.ValidBytes(body) {
		return &Error{
			Kind:    KindProcessingFailed,
			Message: fmt.Sprintf("%s returned a malformed response", service),
		}
	}

	success := gjson.GetBytes(body, "success")
	if success.Exists() && success.Type == gjson.False {
		gwErr := &Error{
			Kind:    KindProcessingFailed,
			Message: fmt.Sprintf("%s reported a failure", service),
		}
		if msg, detail, ok := extractDetail(body); ok {
			gwErr.Detail = detail
			if msg != "" {
				gwErr.Message = msg
			}
		}
		return gwErr
	}
	return nil
}

// readJSON drains a 2xx response and validates its envelope.
func readJSON(service string, resp *transport.Response) ([]byte, *Error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody+1))
	if err != nil {
		return nil, translateError(service, err)
	}
	if len(body) > maxJSONBody {
		return nil, &Error{
			Kind:    KindProcessingFailed,
			Message: fmt.Sprintf("%s response exceeds %d bytes", service, maxJSONBody),
		}
	}
	if gwErr := checkEnvelope(service, body); gwErr != nil {
		return nil, gwErr
	}
	return body, nil
}
