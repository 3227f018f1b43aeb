package rules

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/availability-engine/internal/availability"
	"github.com/wolfman30/availability-engine/internal/http/render"
	"github.com/wolfman30/availability-engine/pkg/logging"
)

const maxICSBytes = 5 << 20

// Handler exposes organizer rule management over HTTP.
type Handler struct {
	service     *Service
	validate    *validator.Validate
	logger      *logging.Logger
	horizonDays int
}

// NewHandler creates a rules handler. horizonDays bounds ICS imports for
// organizers without their own horizon.
func NewHandler(service *Service, validate *validator.Validate, logger *logging.Logger, horizonDays int) *Handler {
	if service == nil {
		panic("rules: service required")
	}
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = logging.Default()
	}
	if horizonDays <= 0 {
		horizonDays = 60
	}
	return &Handler{service: service, validate: validate, logger: logger, horizonDays: horizonDays}
}

// RegisterRoutes mounts the per-organizer routes. r must be scoped to
// /organizers/{organizerID}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.GetOrganizer)
	r.Put("/", h.UpdateOrganizer)

	r.Get("/event-types", h.ListEventTypes)
	r.Post("/event-types", h.CreateEventType)
	r.Put("/event-types/{id}", h.UpdateEventType)
	r.Delete("/event-types/{id}", h.DeleteEventType)

	r.Get("/availability/rules", h.ListRules)
	r.Post("/availability/rules", h.CreateRule)
	r.Put("/availability/rules/{id}", h.UpdateRule)
	r.Delete("/availability/rules/{id}", h.DeleteRule)

	r.Get("/availability/overrides", h.ListOverrides)
	r.Post("/availability/overrides", h.CreateOverride)
	r.Put("/availability/overrides/{id}", h.UpdateOverride)
	r.Delete("/availability/overrides/{id}", h.DeleteOverride)

	r.Get("/availability/blocked-times", h.ListBlockedTimes)
	r.Post("/availability/blocked-times", h.CreateBlockedTime)
	r.Post("/availability/blocked-times/import", h.ImportBlockedTimes)
	r.Put("/availability/blocked-times/{id}", h.UpdateBlockedTime)
	r.Delete("/availability/blocked-times/{id}", h.DeleteBlockedTime)

	r.Get("/availability/recurring-blocks", h.ListRecurringBlocks)
	r.Post("/availability/recurring-blocks", h.CreateRecurringBlock)
	r.Put("/availability/recurring-blocks/{id}", h.UpdateRecurringBlock)
	r.Delete("/availability/recurring-blocks/{id}", h.DeleteRecurringBlock)

	r.Get("/availability/buffer", h.GetBuffer)
	r.Patch("/availability/buffer", h.PatchBuffer)

	r.Get("/availability/audit", h.ListAudit)
}

func orgID(r *http.Request) string { return chi.URLParam(r, "organizerID") }

// decode parses and validates a JSON body into dst.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		render.Error(w, h.logger, availability.BadRequest("body", "invalid JSON body: %v", err))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		render.Error(w, h.logger, availability.WithContext(validationError(err), orgID(r), ""))
		return false
	}
	return true
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func parseClockPtr(s *string) *availability.Clock {
	if s == nil {
		return nil
	}
	c := availability.MustClock(*s)
	return &c
}

func parseDatePtr(s *string) *availability.Date {
	if s == nil || *s == "" {
		return nil
	}
	d := availability.MustDate(*s)
	return &d
}

// OrganizerRequest is the body of organizer create and update.
type OrganizerRequest struct {
	Name           string `json:"name" validate:"required_without=Slug,max=200"`
	Slug           string `json:"slug" validate:"max=100"`
	Timezone       string `json:"timezone" validate:"required,timezone"`
	MaxHorizonDays int    `json:"max_horizon_days" validate:"min=0,max=730"`
}

// CreateOrganizer registers an organizer.
// POST /organizers
func (h *Handler) CreateOrganizer(w http.ResponseWriter, r *http.Request) {
	var req OrganizerRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.service.CreateOrganizer(r.Context(), availability.Organizer{
		Name: req.Name, Slug: req.Slug, Timezone: req.Timezone, MaxHorizonDays: req.MaxHorizonDays,
	})
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusCreated, o)
}

// GetOrganizer returns the organizer record.
// GET /organizers/{organizerID}
func (h *Handler) GetOrganizer(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.GetOrganizer(r.Context(), orgID(r))
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, o)
}

// UpdateOrganizer changes name, timezone or horizon. The slug is immutable.
// PUT /organizers/{organizerID}
func (h *Handler) UpdateOrganizer(w http.ResponseWriter, r *http.Request) {
	var req OrganizerRequest
	if !h.decode(w, r, &req) {
		return
	}
	current, err := h.service.GetOrganizer(r.Context(), orgID(r))
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	current.Timezone = req.Timezone
	current.MaxHorizonDays = req.MaxHorizonDays
	if req.Name != "" {
		current.Name = req.Name
	}
	o, err := h.service.UpdateOrganizer(r.Context(), *current)
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, o)
}

// EventTypeRequest is the body of event type create and update.
type EventTypeRequest struct {
	Name             string `json:"name" validate:"required,max=200"`
	Slug             string `json:"slug" validate:"max=100"`
	DurationMinutes  int    `json:"duration_minutes" validate:"required,min=1,max=1440"`
	MinNoticeMinutes int    `json:"min_notice_minutes" validate:"min=0"`
	MaxHorizonDays   int    `json:"max_horizon_days" validate:"min=0,max=730"`
	Capacity         int    `json:"capacity" validate:"min=0,max=10000"`
	Active           *bool  `json:"active"`
}

func (req EventTypeRequest) model() availability.EventType {
	return availability.EventType{
		Name:             req.Name,
		Slug:             req.Slug,
		DurationMinutes:  req.DurationMinutes,
		MinNoticeMinutes: req.MinNoticeMinutes,
		MaxHorizonDays:   req.MaxHorizonDays,
		Capacity:         req.Capacity,
		Active:           boolOr(req.Active, true),
	}
}

func (h *Handler) ListEventTypes(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListEventTypes(r.Context(), orgID(r))
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, nonNil(items))
}

func (h *Handler) CreateEventType(w http.ResponseWriter, r *http.Request) {
	var req EventTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	et, err := h.service.CreateEventType(r.Context(), orgID(r), req.model())
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusCreated, et)
}

func (h *Handler) UpdateEventType(w http.ResponseWriter, r *http.Request) {
	var req EventTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	et, err := h.service.UpdateEventType(r.Context(), orgID(r), chi.URLParam(r, "id"), req.model())
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, et)
}

func (h *Handler) DeleteEventType(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteEventType(r.Context(), orgID(r), chi.URLParam(r, "id")); err != nil {
		render.Error(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RuleRequest is the body of weekly rule create and update.
type RuleRequest struct {
	DayOfWeek      *int               `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime      string             `json:"start_time" validate:"required,clock"`
	EndTime        string             `json:"end_time" validate:"required,clock"`
	EventTypeScope availability.Scope `json:"event_type_scope" validate:"omitempty,dive,required"`
	Active         *bool              `json:"active"`
}

func (req RuleRequest) model() availability.AvailabilityRule {
	return availability.AvailabilityRule{
		DayOfWeek:      time.Weekday(*req.DayOfWeek),
		StartTime:      availability.MustClock(req.StartTime),
		EndTime:        availability.MustClock(req.EndTime),
		EventTypeScope: req.EventTypeScope,
		Active:         boolOr(req.Active, true),
	}
}

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListRules(r.Context(), orgID(r))
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, nonNil(items))
}

func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if !h.decode(w, r, &req) {
		return
	}
	rule, err := h.service.CreateRule(r.Context(), orgID(r), req.model())
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusCreated, rule)
}

func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if !h.decode(w, r, &req) {
		return
	}
	rule, err := h.service.UpdateRule(r.Context(), orgID(r), chi.URLParam(r, "id"), req.model())
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, rule)
}

func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRule(r.Context(), orgID(r), chi.URLParam(r, "id")); err != nil {
		render.Error(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OverrideRequest is the body of date override create and update.
type OverrideRequest struct {
	Date           string             `json:"date" validate:"required,datetime=2006-01-02"`
	IsAvailable    bool               `json:"is_available"`
	StartTime      *string            `json:"start_time" validate:"omitempty,clock"`
	EndTime        *string            `json:"end_time" validate:"omitempty,clock"`
	EventTypeScope availability.Scope `json:"event_type_scope" validate:"omitempty,dive,required"`
	Active         *bool              `json:"active"`
}

func (req OverrideRequest) model() availability.DateOverrideRule {
	return availability.DateOverrideRule{
		Date:           availability.MustDate(req.Date),
		IsAvailable:    req.IsAvailable,
		StartTime:      parseClockPtr(req.StartTime),
		EndTime:        parseClockPtr(req.EndTime),
		EventTypeScope: req.EventTypeScope,
		Active:         boolOr(req.Active, true),
	}
}

func (h *Handler) ListOverrides(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListOverrides(r.Context(), orgID(r))
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, nonNil(items))
}

func (h *Handler) CreateOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.service.CreateOverride(r.Context(), orgID(r), req.model())
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusCreated, o)
}

func (h *Handler) UpdateOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.service.UpdateOverride(r.Context(), orgID(r), chi.URLParam(r, "id"), req.model())
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, o)
}

func (h *Handler) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteOverride(r.Context(), orgID(r), chi.URLParam(r, "id")); err != nil {
		render.Error(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BlockedTimeRequest is the body of blocked time create and update.
type BlockedTimeRequest struct {
	Title         string    `json:"title" validate:"max=200"`
	StartDatetime time.Time `json:"start_datetime" validate:"required"`
	EndDatetime   time.Time `json:"end_datetime" validate:"required"`
	Source        string    `json:"source" validate:"omitempty,oneof=manual external-sync"`
	ExternalID    string    `json:"external_id" validate:"max=500"`
	Active        *bool     `json:"active"`
}

func (req BlockedTimeRequest) model() availability.BlockedTime {
	return availability.BlockedTime{
		Title:         req.Title,
		StartDatetime: req.StartDatetime.UTC(),
		EndDatetime:   req.EndDatetime.UTC(),
		Source:        availability.BlockSource(req.Source),
		ExternalID:    req.ExternalID,
		Active:        boolOr(req.Active, true),
	}
}

func (h *Handler) ListBlockedTimes(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListBlockedTimes(r.Context(), orgID(r))
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, nonNil(items))
}

func (h *Handler) CreateBlockedTime(w http.ResponseWriter, r *http.Request) {
	var req BlockedTimeRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.service.CreateBlockedTime(r.Context(), orgID(r), req.model())
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusCreated, b)
}

func (h *Handler) UpdateBlockedTime(w http.ResponseWriter, r *http.Request) {
	var req BlockedTimeRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.service.UpdateBlockedTime(r.Context(), orgID(r), chi.URLParam(r, "id"), req.model())
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, b)
}

func (h *Handler) DeleteBlockedTime(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteBlockedTime(r.Context(), orgID(r), chi.URLParam(r, "id")); err != nil {
		render.Error(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportBlockedTimes replaces external-sync blocks from a text/calendar body.
// POST /organizers/{organizerID}/availability/blocked-times/import
func (h *Handler) ImportBlockedTimes(w http.ResponseWriter, r *http.Request) {
	body := io.LimitReader(r.Body, maxICSBytes)
	n, err := h.service.ImportICS(r.Context(), orgID(r), body, h.horizonDays)
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, map[string]int{"imported": n})
}

// RecurringBlockRequest is the body of recurring block create and update.
type RecurringBlockRequest struct {
	Name      string  `json:"name" validate:"required,max=200"`
	DayOfWeek *int    `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime string  `json:"start_time" validate:"required,clock"`
	EndTime   string  `json:"end_time" validate:"required,clock"`
	StartDate *string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Active    *bool   `json:"active"`
}

func (req RecurringBlockRequest) model() availability.RecurringBlockedTime {
	return availability.RecurringBlockedTime{
		Name:      req.Name,
		DayOfWeek: time.Weekday(*req.DayOfWeek),
		StartTime: availability.MustClock(req.StartTime),
		EndTime:   availability.MustClock(req.EndTime),
		StartDate: parseDatePtr(req.StartDate),
		EndDate:   parseDatePtr(req.EndDate),
		Active:    boolOr(req.Active, true),
	}
}

func (h *Handler) ListRecurringBlocks(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListRecurringBlocks(r.Context(), orgID(r))
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, nonNil(items))
}

func (h *Handler) CreateRecurringBlock(w http.ResponseWriter, r *http.Request) {
	var req RecurringBlockRequest
	if !h.decode(w, r, &req) {
		return
	}
	rb, err := h.service.CreateRecurringBlock(r.Context(), orgID(r), req.model())
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusCreated, rb)
}

func (h *Handler) UpdateRecurringBlock(w http.ResponseWriter, r *http.Request) {
	var req RecurringBlockRequest
	if !h.decode(w, r, &req) {
		return
	}
	rb, err := h.service.UpdateRecurringBlock(r.Context(), orgID(r), chi.URLParam(r, "id"), req.model())
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, rb)
}

func (h *Handler) DeleteRecurringBlock(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRecurringBlock(r.Context(), orgID(r), chi.URLParam(r, "id")); err != nil {
		render.Error(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetBuffer(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.GetBuffer(r.Context(), orgID(r))
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, b)
}

// PatchBuffer updates buffer settings.
// PATCH /organizers/{organizerID}/availability/buffer
func (h *Handler) PatchBuffer(w http.ResponseWriter, r *http.Request) {
	var req BufferPatch
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.service.PatchBuffer(r.Context(), orgID(r), req)
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, b)
}

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.service.AuditTrail(r.Context(), orgID(r), limit)
	if err != nil {
		render.Error(w, h.logger, err)
		return
	}
	render.JSON(w, http.StatusOK, nonNil(items))
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
