package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	ccErrors "github.com/go-foreman/commandcenter/errors"
	"github.com/go-foreman/commandcenter/event"
	"github.com/go-foreman/commandcenter/eventstore"
	"github.com/go-foreman/commandcenter/log"
	"github.com/go-foreman/commandcenter/runtime/scheme"
	"github.com/go-foreman/commandcenter/saga"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type SagaBatch struct {
	Total int          `json:"total"`
	Items []SagaStatus `json:"items"`
}

type SagaStatus struct {
	SagaUID string        `json:"saga_uid"`
	Status  string        `json:"status"`
	Payload saga.Snapshot `json:"payload"`
	Events  []SagaEvent   `json:"events,omitempty"`
}

type SagaEvent struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    event.Event `json:"payload"`
}

//go:generate mockgen --build_flags=--mod=mod -destination ./mock_test.go -package status . StatusService

type Pagination struct {
	Offset int
	Limit  int
}

type Filters struct {
	SagaID string
	TeamID string
}

type StatusService interface {
	GetStatus(ctx context.Context, sagaId uuid.UUID) (*SagaStatus, error)
	GetFilteredBy(ctx context.Context, filters *Filters, pagination *Pagination) (*SagaBatch, error)
}

// ActiveSagas lists sagas waiting for acknowledgements, saga.Manager implements it.
type ActiveSagas interface {
	ActiveSagas() []saga.Snapshot
}

func NewStatusService(reader eventstore.Reader, active ActiveSagas, knownTypes scheme.KnownTypesRegistry) StatusService {
	return &statusService{reader: reader, active: active, knownTypes: knownTypes}
}

type statusService struct {
	reader     eventstore.Reader
	active     ActiveSagas
	knownTypes scheme.KnownTypesRegistry
}

// GetStatus rebuilds the saga from its history without any side effect, so finished sagas are visible too.
func (s statusService) GetStatus(ctx context.Context, sagaId uuid.UUID) (*SagaStatus, error) {
	history, err := s.reader.ReadByCorrelationID(ctx, sagaId)
	if err != nil {
		return nil, errors.Wrapf(err, "error loading saga '%s'", sagaId)
	}

	params, err := saga.ParamsFromHistory(sagaId, history)
	if err != nil {
		return nil, NewResponseError(http.StatusNotFound, errors.Errorf("saga '%s' not found", sagaId))
	}

	sagaInstance, err := saga.LoadFromEvents(ctx, params, saga.NopCompensation, history)
	if err != nil {
		return nil, errors.Wrapf(err, "error rebuilding saga '%s'", sagaId)
	}

	events := make([]SagaEvent, len(history))

	for i, ev := range history {
		gk, err := s.knownTypes.ObjectKind(ev)
		if err != nil {
			return nil, errors.WithStack(err)
		}

		events[i] = SagaEvent{Type: gk.String(), OccurredAt: ev.OccurredAt(), Payload: ev}
	}

	snapshot := sagaInstance.Snapshot()

	return &SagaStatus{SagaUID: sagaId.String(), Status: snapshot.Status.String(), Payload: snapshot, Events: events}, nil
}

// GetFilteredBy pages through active sagas ordered by deadline.
func (s statusService) GetFilteredBy(ctx context.Context, filters *Filters, pagination *Pagination) (*SagaBatch, error) {
	var matched []saga.Snapshot

	for _, snapshot := range s.active.ActiveSagas() {
		if filters.SagaID != "" && snapshot.CommandID.String() != filters.SagaID {
			continue
		}

		if filters.TeamID != "" && snapshot.TeamID.String() != filters.TeamID {
			continue
		}

		matched = append(matched, snapshot)
	}

	total := len(matched)

	if pagination != nil {
		if pagination.Offset < 0 || pagination.Limit < 0 {
			return nil, NewResponseError(http.StatusBadRequest, errors.Errorf("Offset and limit must not be negative"))
		}

		if pagination.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[pagination.Offset:]
			if pagination.Limit < len(matched) {
				matched = matched[:pagination.Limit]
			}
		}
	}

	statuses := make([]SagaStatus, len(matched))

	for i, snapshot := range matched {
		statuses[i] = SagaStatus{
			SagaUID: snapshot.CommandID.String(),
			Status:  snapshot.Status.String(),
			Payload: snapshot,
		}
	}

	return &SagaBatch{
		Total: total,
		Items: statuses,
	}, nil
}

type StatusHandler struct {
	service StatusService
	logger  log.Logger
}

func NewStatusHandler(logger log.Logger, service StatusService) *StatusHandler {
	return &StatusHandler{service: service, logger: logger}
}

// RegisterRoutes mounts GET /sagas and GET /sagas/{sagaId}.
func (h *StatusHandler) RegisterRoutes(r chi.Router) {
	r.Get("/sagas", h.GetFilteredBy)
	r.Get("/sagas/", h.GetStatus)
	r.Get("/sagas/{sagaId}", h.GetStatus)
}

func (h *StatusHandler) GetStatus(resp http.ResponseWriter, r *http.Request) {

	rawId := chi.URLParam(r, "sagaId")

	if rawId == "" {
		NewResponseWriterFromErrMsg("Saga id is empty", http.StatusBadRequest).write(resp, h.logger)
		return
	}

	sagaId, err := uuid.Parse(rawId)

	if err != nil {
		NewResponseWriterFromErrMsg("Saga id is expected to be a uuid", http.StatusBadRequest).write(resp, h.logger)
		return
	}

	statusResp, err := h.service.GetStatus(r.Context(), sagaId)

	if err != nil {
		h.logFailure(err)
		NewResponseWriterFromError(err).write(resp, h.logger)
		return
	}

	NewResponseWriter(statusResp, http.StatusOK).write(resp, h.logger)
}

func (h *StatusHandler) GetFilteredBy(resp http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var (
		filters    Filters
		pagination *Pagination
	)

	filters.SagaID = query.Get("sagaId")
	filters.TeamID = query.Get("teamId")

	offset, err := h.getInt(query, "offset")

	if err != nil {
		NewResponseWriterFromError(err).write(resp, h.logger)
		return
	}

	limit, err := h.getInt(query, "limit")

	if err != nil {
		NewResponseWriterFromError(err).write(resp, h.logger)
		return
	}

	if offset != nil && limit == nil {
		NewResponseWriterFromErrMsg("Query param 'limit' must be specified along with 'offset'", http.StatusBadRequest).write(resp, h.logger)
		return
	}

	if limit != nil && offset == nil {
		NewResponseWriterFromErrMsg("Query param 'offset' must be specified along with 'limit'", http.StatusBadRequest).write(resp, h.logger)
		return
	}

	if limit != nil || offset != nil {
		pagination = &Pagination{
			Offset: *offset,
			Limit:  *limit,
		}
	}

	statusesResp, err := h.service.GetFilteredBy(r.Context(), &filters, pagination)

	if err != nil {
		h.logFailure(err)
		NewResponseWriterFromError(err).write(resp, h.logger)
		return
	}

	NewResponseWriter(statusesResp, http.StatusOK).write(resp, h.logger)
}

func (h *StatusHandler) getInt(values url.Values, paramName string) (*int, error) {
	paramValue := values.Get(paramName)
	if paramValue != "" {
		intValue, err := strconv.Atoi(paramValue)
		if err != nil {
			return nil, NewResponseError(http.StatusBadRequest, errors.Errorf("Query parameter '%s' is expected to be an integer", paramName))
		}

		return &intValue, nil
	}

	return nil, nil
}

func (h *StatusHandler) logFailure(err error) {
	if ccErrors.IsPersistence(err) || ccErrors.IsDecode(err) {
		h.logger.Logf(log.ErrorLevel, "status request failed (%s): %s", ccErrors.Kind(err), err)
	}
}

type responseWriter struct {
	body   interface{}
	status int
}

func NewResponseWriterFromError(err error) *responseWriter {
	if respErr, ok := err.(ResponseError); ok {
		return &responseWriter{
			body:   respErr,
			status: respErr.Status(),
		}
	}

	return &responseWriter{
		body:   err,
		status: http.StatusInternalServerError,
	}
}

func NewResponseWriter(body interface{}, status int) *responseWriter {
	return &responseWriter{
		body:   body,
		status: status,
	}
}

func NewResponseWriterFromErrMsg(errMsg string, status int) *responseWriter {
	return NewResponseWriterFromError(NewResponseError(status, errors.New(errMsg)))
}

func (rw *responseWriter) encode() ([]byte, error) {
	var (
		respBody []byte
		err      error
	)

	if respErr, ok := rw.body.(error); ok {
		respBody = []byte(respErr.Error())
	} else {
		respBody, err = json.Marshal(rw.body)
	}

	return respBody, err
}

func (rw *responseWriter) write(resp http.ResponseWriter, logger log.Logger) {
	respBody, err := rw.encode()
	if err != nil {
		logger.Log(log.ErrorLevel, err)
		resp.WriteHeader(http.StatusInternalServerError)
		return
	}

	resp.Header().Set("Content-Type", "application/json")

	resp.WriteHeader(rw.status)

	if _, err = resp.Write(respBody); err != nil {
		logger.Log(log.ErrorLevel, err)
	}
}

type ResponseError struct {
	error
	status int
}

//Status returns http status code
func (e ResponseError) Status() int {
	return e.status
}

func NewResponseError(status int, err error) ResponseError {
	return ResponseError{status: status, error: err}
}
