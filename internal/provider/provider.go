// Package provider holds the send-provider implementations used by the
// dispatch coordinator. Every Sender returns one Outcome per input email,
// in input order; an error return means the batch could not be attempted
// or was cut short by a provider-wide failure.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

type Email struct {
	To       string
	ToName   string
	From     string
	FromName string
	Subject  string
	Text     string
	HTML     string
	// Tags are passed to providers that support message tagging.
	Tags map[string]string
}

type Outcome struct {
	Address           string
	Success           bool
	ProviderMessageID string
	Error             string
}

// Report receives outcomes as soon as the provider has them. offset is the
// index in the input slice of outcomes[0]. Calls are sequential and happen
// before SendBatch returns; each email is reported at most once. A nil Report
// is allowed.
type Report func(offset int, outcomes []Outcome)

type Sender interface {
	SendBatch(ctx context.Context, emails []Email, report Report) ([]Outcome, error)
}

// formatAddress renders "Name <addr>" or just addr.
func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}

// HTTPStatusError is a provider HTTP reply that rejects the whole request
// rather than one recipient.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("provider replied %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *HTTPStatusError) HTTPStatusCode() int { return e.StatusCode }

func providerWideStatus(code int) bool {
	return code == http.StatusUnauthorized ||
		code == http.StatusForbidden ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}

// statusGuard turns provider-wide HTTP replies into errors before the
// client library flattens them into per-request messages.
type statusGuard struct {
	next http.RoundTripper
}

func (g statusGuard) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := g.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if providerWideStatus(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// abortsBatch reports whether err means the provider as a whole is
// unavailable: unreachable, cancelled, throttled, unauthorised or down.
// Anything else is a rejection of the single email.
func abortsBatch(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) && providerWideStatus(status.HTTPStatusCode()) {
		return true
	}
	var (
		throttled *types.TooManyRequestsException
		limited   *types.LimitExceededException
		paused    *types.SendingPausedException
		suspended *types.AccountSuspendedException
	)
	return errors.As(err, &throttled) || errors.As(err, &limited) ||
		errors.As(err, &paused) || errors.As(err, &suspended)
}

// sendEach loops send over emails, converting per-email failures into outcomes
// and reporting each one as it completes. Provider-wide failures abort the
// rest of the batch; what was already reported stands.
func sendEach(ctx context.Context, emails []Email, report Report, send func(ctx context.Context, e Email) (string, error)) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(emails))
	for i, e := range emails {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var o Outcome
		id, err := send(ctx, e)
		switch {
		case err != nil && abortsBatch(err):
			return nil, err
		case err != nil:
			o = Outcome{Address: e.To, Success: false, Error: err.Error()}
		default:
			o = Outcome{Address: e.To, Success: true, ProviderMessageID: id}
		}
		outcomes = append(outcomes, o)
		if report != nil {
			report(i, []Outcome{o})
		}
	}
	return outcomes, nil
}
