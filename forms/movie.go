// Package forms validates movie submissions before anything touches disk or
// the database.
package forms

import (
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError is one failed rule on one submitted field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// MovieForm is the raw multipart submission.
type MovieForm struct {
	Title       string                `form:"title"`
	Description string                `form:"description"`
	Poster      *multipart.FileHeader `form:"poster"`
}

// MovieInput is a MovieForm that passed validation.
type MovieInput struct {
	Title       string
	Description string
	Poster      *multipart.FileHeader
}

type Rules struct {
	TitleMin          int
	TitleMax          int
	DescriptionMin    int
	DescriptionMax    int
	AllowedExtensions []string
	MaxPosterSize     int64
}

func DefaultRules() Rules {
	return Rules{
		TitleMin:          2,
		TitleMax:          100,
		DescriptionMin:    10,
		DescriptionMax:    500,
		AllowedExtensions: []string{"jpg", "jpeg", "png"},
		MaxPosterSize:     10 * 1024 * 1024,
	}
}

type Validator struct {
	rules    Rules
	validate *validator.Validate

	titleTag       string
	descriptionTag string
	extensionTag   string
}

func NewValidator(rules Rules) *Validator {
	return &Validator{
		rules:          rules,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		titleTag:       fmt.Sprintf("min=%d,max=%d", rules.TitleMin, rules.TitleMax),
		descriptionTag: fmt.Sprintf("min=%d,max=%d", rules.DescriptionMin, rules.DescriptionMax),
		extensionTag:   "oneof=" + strings.Join(rules.AllowedExtensions, " "),
	}
}

func (v *Validator) Rules() Rules { return v.rules }

// ValidateMovie checks title, description and poster in that order. Each
// field reports at most one error: the first rule it fails.
func (v *Validator) ValidateMovie(form MovieForm) (MovieInput, []FieldError) {
	var errs []FieldError

	if msg := v.checkTitle(form.Title); msg != "" {
		errs = append(errs, FieldError{Field: "title", Message: msg})
	}
	if msg := v.checkDescription(form.Description); msg != "" {
		errs = append(errs, FieldError{Field: "description", Message: msg})
	}
	if msg := v.checkPoster(form.Poster); msg != "" {
		errs = append(errs, FieldError{Field: "poster", Message: msg})
	}

	if len(errs) > 0 {
		return MovieInput{}, errs
	}
	return MovieInput{
		Title:       form.Title,
		Description: form.Description,
		Poster:      form.Poster,
	}, nil
}

func (v *Validator) checkTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return "Movie title is required"
	}
	if v.validate.Var(title, v.titleTag) != nil {
		return fmt.Sprintf("Title must be between %d and %d characters", v.rules.TitleMin, v.rules.TitleMax)
	}
	return ""
}

func (v *Validator) checkDescription(description string) string {
	if strings.TrimSpace(description) == "" {
		return "Movie description is required"
	}
	if v.validate.Var(description, v.descriptionTag) != nil {
		return fmt.Sprintf("Description must be between %d and %d characters", v.rules.DescriptionMin, v.rules.DescriptionMax)
	}
	return ""
}

func (v *Validator) checkPoster(poster *multipart.FileHeader) string {
	if poster == nil || poster.Filename == "" {
		return "Movie poster is required"
	}
	if v.validate.Var(Extension(poster.Filename), v.extensionTag) != nil {
		return "Only image files are allowed"
	}
	if poster.Size > v.rules.MaxPosterSize {
		return PosterTooLargeMessage(v.rules.MaxPosterSize)
	}
	return ""
}

// Extension returns the lower-cased text after the last dot, or "" when
// the name has no dot.
func Extension(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(filename[i+1:])
}

func PosterTooLargeMessage(limit int64) string {
	return fmt.Sprintf("Poster must be at most %d bytes", limit)
}
