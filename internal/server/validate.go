// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// feedbackBody and ticketBody carry the validation rules for the submission
// endpoints. Handlers trim and default the decoded request before checking.
type feedbackBody struct {
	Message  string `json:"message" validate:"required,max=5000"`
	Category string `json:"category" validate:"required,max=64"`
}

type ticketBody struct {
	Category    string `json:"category" validate:"required,oneof=Technical Billing Feature"`
	Priority    string `json:"priority" validate:"required,oneof=Low Medium High Urgent"`
	Subject     string `json:"subject" validate:"required,max=200"`
	Description string `json:"description" validate:"required,max=5000"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names so messages match the wire fields.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// checkBody validates body and returns a client-facing message for the first
// failing field, or "".
func checkBody(body any) string {
	err := validate.Struct(body)
	if err == nil {
		return ""
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request"
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fe.Field() + " must be one of " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}
