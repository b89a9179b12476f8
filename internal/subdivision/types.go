// Package subdivision orchestrates the location registry and the subdivision
// store: it resolves ring coordinates before writes and assembles nested
// aggregates on reads.
package subdivision

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/realestate/server/internal/geometry"
)

// SubdivisionRequest creates a subdivision, optionally with lots. An empty ID
// is replaced by a generated one; lots inherit the subdivision id.
type SubdivisionRequest struct {
	ID       string        `json:"id,omitempty" validate:"omitempty,max=128"`
	Name     string        `json:"name" validate:"required,max=200"`
	Boundary geometry.Ring `json:"area" validate:"ring"`
	Lots     []LotRequest  `json:"lots,omitempty" validate:"omitempty,dive"`
}

// LotRequest creates a lot. The lot id is always derived from its name and
// subdivision, so ID is accepted but not used.
type LotRequest struct {
	ID            string        `json:"id,omitempty"`
	Name          string        `json:"name" validate:"required,max=200"`
	SubdivisionID string        `json:"subdivision_id" validate:"max=128"`
	Boundary      geometry.Ring `json:"area" validate:"ring"`
}

// SearchRequest selects a search by name or by coordinates. Name wins when
// both are present.
type SearchRequest struct {
	Name   *string
	Coords *geometry.Point
}

// Aggregate is the nested read model: a subdivision, its ring and its lots.
type Aggregate struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Boundary geometry.Ring  `json:"area"`
	Lots     []LotAggregate `json:"lots"`
	// DroppedPoints counts ring points skipped by lenient reconstruction
	// across the subdivision and its lots.
	DroppedPoints int `json:"dropped_points,omitempty"`
	// Distance is set by proximity search, in meters.
	Distance *float64 `json:"distance,omitempty"`
}

// LotAggregate is a lot with its resolved ring.
type LotAggregate struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	SubdivisionID string        `json:"subdivision_id"`
	Boundary      geometry.Ring `json:"area"`
}

// Event types published on writes.
const (
	EventSubdivisionCreated = "subdivision.created"
	EventSubdivisionRenamed = "subdivision.renamed"
	EventSubdivisionDeleted = "subdivision.deleted"
	EventLotsCreated        = "lots.created"
)

// Event notifies subscribers of a completed write.
type Event struct {
	Type          string    `json:"type"`
	SubdivisionID string    `json:"subdivision_id"`
	Name          string    `json:"name,omitempty"`
	LotIDs        []string  `json:"lot_ids,omitempty"`
	At            time.Time `json:"at"`
}

// ValidationError reports a malformed request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("ring", func(fl validator.FieldLevel) bool {
		ring, ok := fl.Field().Interface().(geometry.Ring)
		return ok && ring.Validate() == nil
	})
	return v
}

// nameRules are the Name tag rules, for names validated outside a struct.
// Lengths count characters, not bytes.
const nameRules = "required,max=200"

// validationError converts validator output into a ValidationError naming
// each failing field.
func validationError(err error) error {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return &ValidationError{Message: err.Error()}
	}
	messages := make([]string, 0, len(ve))
	for _, fe := range ve {
		messages = append(messages, fmt.Sprintf("%s: %s", fe.Namespace(), validationMessage(fe)))
	}
	return &ValidationError{Message: strings.Join(messages, "; ")}
}

// fieldError converts the output of a single-value validation.
func fieldError(field string, err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return &ValidationError{Message: fmt.Sprintf("%s %s", field, validationMessage(ve[0]))}
	}
	return &ValidationError{Message: err.Error()}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "ring":
		if ring, ok := fe.Value().(geometry.Ring); ok {
			if err := ring.Validate(); err != nil {
				return err.Error()
			}
		}
		return "must be a valid boundary"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
