package apierror

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// errorBody is the JSON envelope returned for every failed request.
type errorBody struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
	Timestamp     string `json:"timestamp"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// HTTPErrorHandler converts errors escaping handlers into the stable
// JSON error contract. It understands *Error variants, echo's own
// *HTTPError (404s, method-not-allowed and friends) and collapses
// anything else to a generic 500. Replay detections are logged
// distinctly so they can be alerted on.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	code := "internal_error"
	message := "internal server error"

	if ae, ok := As(err); ok {
		status = ae.Kind.HTTPStatus()
		code = ae.Code
		message = ae.Message
		switch ae.Kind {
		case KindReplayDetected:
			c.Logger().Warnf("refresh token replay detected: %v (correlation_id=%s ip=%s)",
				ae.Err, correlationID(c), c.RealIP())
		case KindInternal, KindUnavailable:
			c.Logger().Errorf("%s: %v (correlation_id=%s)", ae.Code, ae.Err, correlationID(c))
		}
	} else if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		code = http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(he.Code)
		}
	} else {
		c.Logger().Errorf("unhandled error: %v (correlation_id=%s)", err, correlationID(c))
	}

	body := errorResponse{Error: errorBody{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID(c),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}

// correlationID returns the request id assigned by the RequestID
// middleware, falling back to the inbound header if present.
func correlationID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
