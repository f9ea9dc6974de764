package frame

import (
	goerrors "errors"
	"fmt"
	"time"

	"github.com/real-rm/chatrelay/internal/errors"
)

// Correlation identifies the request a failure belongs to, as far as known.
type Correlation struct {
	ConnectionID string
	ReceiptID    string
	Destination  string
}

// errMissingEnvelopeField reports a domain-event envelope missing a required field.
func errMissingEnvelopeField(name string) error {
	return errors.ErrMissingField(fmt.Sprintf("envelope.%s", name))
}

// FrameError converts any failure into a structured outbound error envelope.
// It unwraps the cause chain looking for a domain-typed error; if none is
// found it synthesizes a generic internal error instead of leaking internals.
func FrameError(err error, corr Correlation) *ErrorEnvelope {
	env := &ErrorEnvelope{
		OccurredAt:         time.Now().UTC(),
		ConnectionID:       corr.ConnectionID,
		ReceiptID:          corr.ReceiptID,
		RequestDestination: corr.Destination,
	}

	var de *errors.DeliveryError
	if goerrors.As(err, &de) {
		env.Code = string(de.Code)
		env.Message = de.Message
		if len(de.Details) > 0 {
			details := make(map[string]string, len(de.Details))
			for k, v := range de.Details {
				details[k] = v
			}
			env.Details = details
		}
		return env
	}

	env.Code = string(errors.ErrCodeInternalError)
	env.Message = "Internal server error"
	return env
}
