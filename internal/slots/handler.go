package slots

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/availability-engine/internal/availability"
	"github.com/wolfman30/availability-engine/internal/http/render"
	"github.com/wolfman30/availability-engine/internal/precompute"
	"github.com/wolfman30/availability-engine/internal/rules"
	"github.com/wolfman30/availability-engine/pkg/logging"
)

// Precomputer schedules background cache warming.
type Precomputer interface {
	Start(ctx context.Context, organizerID string, daysAhead int) (precompute.Ack, error)
	Job(ctx context.Context, jobID string) (*precompute.Job, error)
}

// Handler serves slot queries and cache management.
type Handler struct {
	service    *Service
	precompute Precomputer
	validate   *validator.Validate
	logger     *logging.Logger
}

func NewHandler(service *Service, pre Precomputer, validate *validator.Validate, logger *logging.Logger) *Handler {
	if service == nil {
		panic("slots: service required")
	}
	if pre == nil {
		panic("slots: precomputer required")
	}
	if validate == nil {
		validate = rules.NewValidator()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, precompute: pre, validate: validate, logger: logger}
}

// RegisterPublicRoutes mounts the booking page endpoints.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/events/slots/{organizer}/{eventType}", h.GetSlots)
	r.Post("/events/slots/{organizer}/{eventType}/group", h.GroupSlots)
}

// RegisterManagementRoutes mounts cache management. r must be scoped to
// /organizers/{organizerID}.
func (h *Handler) RegisterManagementRoutes(r chi.Router) {
	r.Post("/availability/cache/clear", h.ClearCache)
	r.Post("/availability/cache/precompute", h.Precompute)
	r.Get("/availability/cache/precompute/{jobID}", h.PrecomputeStatus)
	r.Get("/availability/stats", h.Stats)
}

// GetSlots handles GET /events/slots/{organizer}/{eventType}.
func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	h.answer(w, r, q)
}

// GroupRequest is the body of POST .../group.
type GroupRequest struct {
	StartDate     string        `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string        `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Timezone      string        `json:"timezone"`
	AttendeeCount int           `json:"attendee_count" validate:"min=0"`
	Invitees      []InviteeSpec `json:"invitees" validate:"required,min=1,max=20,dive"`
}

// GroupSlots handles POST /events/slots/{organizer}/{eventType}/group.
func (h *Handler) GroupSlots(w http.ResponseWriter, r *http.Request) {
	var req GroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Error(w, h.logger, availability.BadRequest("body", "invalid JSON body: %v", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		render.Error(w, h.logger, requestError(err))
		return
	}
	start, _ := availability.ParseDate(req.StartDate)
	end := start
	if req.EndDate != "" {
		end, _ = availability.ParseDate(req.EndDate)
	}
	h.answer(w, r, Query{
		Organizer:     chi.URLParam(r, "organizer"),
		EventType:     chi.URLParam(r, "eventType"),
		StartDate:     start,
		EndDate:       end,
		Timezone:      req.Timezone,
		AttendeeCount: req.AttendeeCount,
		Invitees:      req.Invitees,
	})
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request, q Query) {
	resp, err := h.service.Query(r.Context(), q)
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, resp)
}

func parseQuery(r *http.Request) (Query, error) {
	v := r.URL.Query()
	q := Query{
		Organizer: chi.URLParam(r, "organizer"),
		EventType: chi.URLParam(r, "eventType"),
		Timezone:  strings.TrimSpace(v.Get("timezone")),
	}

	raw := v.Get("start_date")
	if raw == "" {
		return q, availability.BadRequest("start_date", "start_date is required")
	}
	start, err := availability.ParseDate(raw)
	if err != nil {
		return q, availability.BadRequest("start_date", "expected YYYY-MM-DD, got %q", raw)
	}
	q.StartDate, q.EndDate = start, start
	if raw := v.Get("end_date"); raw != "" {
		end, err := availability.ParseDate(raw)
		if err != nil {
			return q, availability.BadRequest("end_date", "expected YYYY-MM-DD, got %q", raw)
		}
		q.EndDate = end
	}

	if raw := v.Get("attendee_count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, availability.BadRequest("attendee_count", "expected a positive integer, got %q", raw)
		}
		q.AttendeeCount = n
	}

	if raw := v.Get("invitee_timezones"); raw != "" {
		for _, tz := range strings.Split(raw, ",") {
			if tz = strings.TrimSpace(tz); tz != "" {
				q.Invitees = append(q.Invitees, InviteeSpec{Timezone: tz})
			}
		}
	}
	return q, nil
}

// requestError maps validator failures on query bodies to ErrInvalidRequest.
func requestError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return availability.BadRequest(fe.Field(), "failed %q validation", fe.Tag())
	}
	return availability.BadRequest("body", "%v", err)
}

// ClearCache handles POST /organizers/{organizerID}/availability/cache/clear.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	gen, err := h.service.ClearCache(r.Context(), chi.URLParam(r, "organizerID"))
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, map[string]any{"status": "cleared", "cache_generation": gen})
}

// PrecomputeRequest is the optional body of the precompute action.
type PrecomputeRequest struct {
	DaysAhead int `json:"days_ahead" validate:"min=0,max=366"`
}

// Precompute handles POST /organizers/{organizerID}/availability/cache/precompute.
// It answers 202 before any slot is computed.
func (h *Handler) Precompute(w http.ResponseWriter, r *http.Request) {
	var req PrecomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		render.Error(w, h.logger, availability.BadRequest("body", "invalid JSON body: %v", err))
		return
	}
	if raw := r.URL.Query().Get("days_ahead"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			render.Error(w, h.logger, availability.BadRequest("days_ahead", "expected an integer, got %q", raw))
			return
		}
		req.DaysAhead = n
	}
	if err := h.validate.Struct(req); err != nil {
		render.Error(w, h.logger, requestError(err))
		return
	}

	orgID, err := h.service.EnsureOrganizer(r.Context(), chi.URLParam(r, "organizerID"))
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	ack, err := h.precompute.Start(r.Context(), orgID, req.DaysAhead)
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusAccepted, ack)
}

// PrecomputeStatus handles GET .../cache/precompute/{jobID}.
func (h *Handler) PrecomputeStatus(w http.ResponseWriter, r *http.Request) {
	orgID, err := h.service.EnsureOrganizer(r.Context(), chi.URLParam(r, "organizerID"))
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	jobID := chi.URLParam(r, "jobID")
	job, err := h.precompute.Job(r.Context(), jobID)
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	if job.OrganizerID != orgID {
		render.Error(w, h.logger, availability.NotFound("job", jobID))
		return
	}
	render.JSON(w, http.StatusOK, job)
}

// Stats handles GET /organizers/{organizerID}/availability/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	orgID, err := h.service.EnsureOrganizer(r.Context(), chi.URLParam(r, "organizerID"))
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	st, err := h.service.Stats(r.Context(), orgID)
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, st)
}
