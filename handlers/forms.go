package handlers

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type credentialsForm struct {
	DisplayName string `validate:"required,max=300"`
	Password    string `validate:"required,max=72"`
}

type commentForm struct {
	Content string `validate:"required"`
}

type nameForm struct {
	DisplayName string `validate:"required"`
}

type postForm struct {
	Content string
	Gift    string `validate:"omitempty,oneof=on true 1 false 0"`
}

func (f postForm) IsGift() bool {
	switch f.Gift {
	case "on", "true", "1":
		return true
	}
	return false
}

// bind validates a form struct already filled from the request. Text limits
// beyond presence are enforced by the services after markup is stripped.
func bind(form any) error {
	return validate.Struct(form)
}

func credentialsFrom(r *http.Request) credentialsForm {
	return credentialsForm{
		DisplayName: strings.TrimSpace(r.PostFormValue("display_name")),
		Password:    r.PostFormValue("password"),
	}
}
