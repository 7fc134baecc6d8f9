// Package handler exposes the services over HTTP with gin. Every response
// uses the respond envelope.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"campustrack/internal/analytics"
	"campustrack/internal/apperr"
	"campustrack/internal/audit"
	"campustrack/internal/auth"
	"campustrack/internal/cv"
	"campustrack/internal/identity"
	"campustrack/internal/intake"
	"campustrack/internal/logging"
	"campustrack/internal/respond"
	"campustrack/internal/storage"
	"campustrack/internal/verification"
)

// AuditQuerier reads the audit log.
type AuditQuerier interface {
	Query(ctx context.Context, f audit.Filter) ([]audit.Entry, int, error)
}

// Deps are the services behind the routes.
type Deps struct {
	Verification *verification.Engine
	Analytics    *analytics.Aggregator
	Identity     *identity.Service
	Intake       *intake.Service
	CV           *cv.Service
	Audit        AuditQuerier
	Log          *slog.Logger
	// MaxUploadBytes caps multipart file sizes. Zero means 10 MiB.
	MaxUploadBytes int64
}

type Handler struct {
	Deps
	validate *validator.Validate
}

func New(d Deps) *Handler {
	d.Log = logging.OrDefault(d.Log)
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 10 << 20
	}
	return &Handler{Deps: d, validate: NewValidator()}
}

// NewValidator reports field errors by their json (or form) names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	return v
}

// FormatValidationErrors turns validator errors into one readable message.
func FormatValidationErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min", "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "max", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		case "fqdn":
			msgs = append(msgs, field+" must be a valid domain name")
		case "datetime":
			msgs = append(msgs, fmt.Sprintf("%s must match %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func (h *Handler) check(v any) error {
	if err := h.validate.Struct(v); err != nil {
		return apperr.Validation(FormatValidationErrors(err))
	}
	return nil
}

// bindJSON decodes an optional JSON body into dst. An empty body leaves dst
// untouched.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("Invalid request body")
	}
	return nil
}

// fail writes err. Uncoded errors are logged and reported as code.
func (h *Handler) fail(c *gin.Context, err error, code, message string) {
	if e, ok := apperr.As(err); ok {
		respond.Fail(c, e)
		return
	}
	h.Log.ErrorContext(c.Request.Context(), message, "route", c.FullPath(), "err", err)
	respond.Fail(c, respond.Internal(code, message))
}

func actor(c *gin.Context) identity.Actor {
	a, _ := auth.ActorFrom(c)
	return a
}

func origin(c *gin.Context) audit.Origin {
	return audit.Origin{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

// formFile reads the multipart "file" field. It returns nil when the field
// is absent.
func (h *Handler) formFile(c *gin.Context) (*storage.File, error) {
	fh, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Validation("Invalid multipart form")
	}
	if fh.Size > h.MaxUploadBytes {
		return nil, apperr.New(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the upload limit")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return &storage.File{Name: fh.Filename, Data: data, ContentType: fh.Header.Get("Content-Type")}, nil
}
