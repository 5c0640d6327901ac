package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// LocationUpdate is the payload a driver device sends on every GPS fix.
// Shared by the HTTP ingest route and the MQTT subscriber.
type LocationUpdate struct {
	BusID   string   `json:"busId" validate:"notblank"`
	RouteID string   `json:"routeId"`
	Lat     *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng     *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
	Speed   *float64 `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Heading *float64 `json:"heading,omitempty" validate:"omitempty,gte=0,lt=360"`
}

// ErrInvalidPayload is returned when the body is not a location object at all.
var ErrInvalidPayload = errors.New("invalid payload")

// Client-facing messages, one per field.
var fieldMessages = map[string]string{
	"busId":   "busId is required and must be a non-empty string.",
	"lat":     "lat is required and must be a number between -90 and 90.",
	"lng":     "lng is required and must be a number between -180 and 180.",
	"speed":   "speed must be a non-negative number.",
	"heading": "heading must be a number in [0, 360).",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report json names so messages match the wire format
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	}); err != nil {
		panic(fmt.Sprintf("models: register notblank validation: %v", err))
	}

	return v
}

// ParseLocationUpdate decodes a JSON location payload.
// Anything but a JSON object is ErrInvalidPayload; a field of the wrong
// type reports that field's message.
func ParseLocationUpdate(data []byte) (LocationUpdate, error) {
	var u LocationUpdate

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return u, ErrInvalidPayload
	}

	if err := json.Unmarshal(trimmed, &u); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			if msg, ok := fieldMessages[typeErr.Field]; ok {
				return u, errors.New(msg)
			}
		}
		return u, ErrInvalidPayload
	}

	return u, nil
}

// Validate checks the update against the ingest preconditions.
// The first failing field decides the message.
func (u *LocationUpdate) Validate() error {
	if u == nil {
		return ErrInvalidPayload
	}

	err := validate.Struct(u)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if msg, ok := fieldMessages[verrs[0].Field()]; ok {
			return errors.New(msg)
		}
		return verrs[0]
	}
	return err
}

// ToState converts a validated update into the stored representation.
// UpdatedAt is left zero; the store stamps it.
func (u *LocationUpdate) ToState() VehicleState {
	state := VehicleState{
		VehicleID: u.BusID,
		RouteID:   u.RouteID,
	}
	if u.Lat != nil {
		state.Latitude = *u.Lat
	}
	if u.Lng != nil {
		state.Longitude = *u.Lng
	}
	if u.Speed != nil {
		v := *u.Speed
		state.SpeedKmh = &v
	}
	if u.Heading != nil {
		v := *u.Heading
		state.HeadingDeg = &v
	}
	return state
}
