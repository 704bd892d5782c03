package flightclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

// SeatService is the booking side's view of the flight service.
type SeatService interface {
	FetchFlight(ctx context.Context, flightID int64) (*domain.Flight, error)
	ReserveSeats(ctx context.Context, flightID int64, req domain.SeatRequest) (string, error)
	ReleaseSeats(ctx context.Context, flightID int64, req domain.SeatRequest) (string, error)
}

// HTTPSeatService calls the flight service REST API.
type HTTPSeatService struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSeatService(baseURL string, timeout time.Duration) *HTTPSeatService {
	return NewHTTPSeatServiceWithClient(baseURL, &http.Client{Timeout: timeout})
}

func NewHTTPSeatServiceWithClient(baseURL string, client *http.Client) *HTTPSeatService {
	return &HTTPSeatService{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *HTTPSeatService) FetchFlight(ctx context.Context, flightID int64) (*domain.Flight, error) {
	var flight domain.Flight
	if err := s.do(ctx, http.MethodGet, fmt.Sprintf("/api/flight/get/%d", flightID), nil, &flight); err != nil {
		return nil, err
	}
	return &flight, nil
}

func (s *HTTPSeatService) ReserveSeats(ctx context.Context, flightID int64, req domain.SeatRequest) (string, error) {
	if req.IsSeatMap() {
		return s.message(ctx, http.MethodPost, fmt.Sprintf("/api/flight/book-seats/%d", flightID), req.SeatNumbers)
	}
	return s.message(ctx, http.MethodPut, fmt.Sprintf("/api/flight/update-seats/%d/%d", flightID, req.Count), nil)
}

func (s *HTTPSeatService) ReleaseSeats(ctx context.Context, flightID int64, req domain.SeatRequest) (string, error) {
	if req.IsSeatMap() {
		return s.message(ctx, http.MethodPost, fmt.Sprintf("/api/flight/release-seats/%d", flightID), req.SeatNumbers)
	}
	return s.message(ctx, http.MethodPut, fmt.Sprintf("/api/flight/rollback-seats/%d/%d", flightID, req.Count), nil)
}

func (s *HTTPSeatService) message(ctx context.Context, method, path string, body any) (string, error) {
	var resp messageResponse
	if err := s.do(ctx, method, path, body, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (s *HTTPSeatService) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.NewUpstreamError("flight service unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewUpstreamError("flight service response truncated", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return domain.NewUpstreamError("flight service returned malformed body", err)
		}
		return nil
	}
	return statusError(resp.StatusCode, data)
}

// statusError turns a non-2xx response into a domain error, keeping the code
// the flight service reported when there is one.
func statusError(status int, data []byte) error {
	var body errorResponse
	_ = json.Unmarshal(data, &body)
	msg := body.Error
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusNotFound:
		return &domain.Error{Kind: domain.KindNotFound, Code: codeOr(body.Code, domain.CodeFlightNotFound), Message: msg}
	case status == http.StatusBadRequest:
		return &domain.Error{Kind: domain.KindValidation, Code: codeOr(body.Code, domain.CodeValidation), Message: msg}
	case status == http.StatusConflict:
		return &domain.Error{Kind: domain.KindConflict, Code: codeOr(body.Code, domain.CodeInsufficientSeats), Message: msg}
	default:
		return domain.NewUpstreamError(msg, errors.New(http.StatusText(status)))
	}
}

func codeOr(code, fallback string) string {
	if code != "" {
		return code
	}
	return fallback
}

var _ SeatService = (*HTTPSeatService)(nil)
