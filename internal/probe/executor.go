// Package probe implements the HTTP probe executor:
// DNS-then-connect HTTP with an SSRF guard rejecting private/loopback/
// link-local destinations before any socket is opened, producing one
// structured CheckResult per probe.
package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/netip"
	"time"

	"uptimemesh"
	"uptimemesh/internal/clock"
	"uptimemesh/internal/telemetry"
)

// maxBodyBytes bounds how much of a response body is read before computing
// ok/mismatch, so a misbehaving upstream can't exhaust process memory.
const maxBodyBytes = 1 << 20

// dialFunc matches (*net.Dialer).DialContext and net/http.Transport.DialContext,
// letting the SSRF-guarded dialer be swapped out in tests the same way Store
// and ViewSource are elsewhere.
type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Executor runs one probe at a time per call; callers (the scheduler) are
// responsible for bounding concurrency across calls.
type Executor struct {
	clock      clock.Clock
	selfNodeID string
	dial       dialFunc
}

// New constructs an Executor. selfNodeID is stamped onto every result row.
// selfIP is the node's own configured address; the guard in dial.go blocks
// any check that resolves to it, same as it blocks loopback and private
// space. Every dial goes through that guard.
func New(clk clock.Clock, selfNodeID string, selfIP netip.Addr) *Executor {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	return &Executor{clock: clk, selfNodeID: selfNodeID, dial: newGuardedDialer(dialer, selfIP).DialContext}
}

// newExecutorWithDialer builds an Executor around a caller-supplied dial
// func, bypassing the SSRF guard. Used by tests that need to reach an
// httptest server on loopback, which the guard would otherwise reject.
func newExecutorWithDialer(clk clock.Clock, selfNodeID string, dial dialFunc) *Executor {
	return &Executor{clock: clk, selfNodeID: selfNodeID, dial: dial}
}

// Probe runs a single HTTP check against one region and returns the
// resulting row. It never returns an error — every failure mode is encoded
// as an Outcome on the result; outcomes are normal data to the scheduler,
// not errors.
func (e *Executor) Probe(ctx context.Context, check uptimemesh.Check, region uptimemesh.Region, scheduledAtMicros int64) (result uptimemesh.CheckResult) {
	result = uptimemesh.CheckResult{
		CheckID:           check.ID,
		Region:            region,
		TimeBucket:        timeBucket(scheduledAtMicros),
		ScheduledAtMicros: scheduledAtMicros,
		ExecutorNodeID:    e.selfNodeID,
	}
	defer func() {
		telemetry.ProbeOutcomes.WithLabelValues(string(result.Outcome), string(region)).Inc()
		telemetry.ProbeResponseTime.WithLabelValues(string(region)).Observe(float64(result.ResponseTimeMicros) / 1e6)
	}()

	if !isHTTPOrHTTPS(check.URL) {
		result.Outcome = uptimemesh.OutcomeInternal
		return result
	}

	timeout := time.Duration(check.TimeoutSecs) * time.Second
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := e.clock.MonotonicMicros()

	client := e.buildClient()
	req, err := e.buildRequest(reqCtx, check)
	if err != nil {
		result.Outcome = uptimemesh.OutcomeInternal
		return result
	}

	resp, err := client.Do(req)
	if err != nil {
		outcome := classifyError(err)
		result.Outcome = outcome
		if outcome == uptimemesh.OutcomeBlockedPrivate {
			// No connection was ever opened; report zero latency
			// regardless of how long DNS resolution took.
			result.ResponseTimeMicros = 0
			return result
		}
		result.ResponseTimeMicros = uint64(e.clock.MonotonicMicros() - start)
		return result
	}
	defer resp.Body.Close()

	_, readErr := io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	elapsed := uint64(e.clock.MonotonicMicros() - start)
	result.ResponseTimeMicros = elapsed

	if readErr != nil {
		result.Outcome = uptimemesh.OutcomeBodyReadFail
		return result
	}

	status := resp.StatusCode
	result.ObservedStatus = &status
	if status == check.ExpectStatus {
		result.Outcome = uptimemesh.OutcomeOK
	} else {
		result.Outcome = uptimemesh.OutcomeStatusMismatch
	}
	return result
}

func (e *Executor) buildRequest(ctx context.Context, check uptimemesh.Check) (*http.Request, error) {
	var body io.Reader
	if len(check.Body) > 0 {
		body = bytes.NewReader(check.Body)
	}
	req, err := http.NewRequestWithContext(ctx, string(check.Method), check.URL, body)
	if err != nil {
		return nil, err
	}
	for _, h := range check.Headers {
		req.Header.Add(h.Name, h.Value)
	}
	return req, nil
}

func (e *Executor) buildClient() *http.Client {
	transport := &http.Transport{
		DialContext:           e.dial,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableKeepAlives:     true, // one-shot probes, no connection reuse across checks
	}
	return &http.Client{Transport: transport}
}

// classifyError maps a client.Do failure to an Outcome. *net.DNSError is
// checked before context.DeadlineExceeded: the DNS lookup runs under its own
// bounded sub-context (dial.go), so a timeout during resolution surfaces as
// a DNSError and must classify as DNS_FAIL, not TIMEOUT.
func classifyError(err error) uptimemesh.Outcome {
	if errors.Is(err, ErrBlockedAddr) {
		return uptimemesh.OutcomeBlockedPrivate
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return uptimemesh.OutcomeDNSFail
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return uptimemesh.OutcomeTimeout
	}

	var certErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &recordErr) {
		return uptimemesh.OutcomeTLSFail
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return uptimemesh.OutcomeTimeout
	}

	return uptimemesh.OutcomeConnFail
}
