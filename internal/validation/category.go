package validation

import (
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"task-manager/internal/model"
)

var categorySchema = jsonschema.MustCompileString("category.json", `{
	"type": "object",
	"properties": {
		"name": {"type": "string", "minLength": 1, "maxLength": 50},
		"color": {"type": "string", "pattern": "^#[0-9a-fA-F]{6}$"},
		"description": {"type": "string", "maxLength": 500}
	},
	"required": ["name", "color"]
}`)

var categoryMessages = messages{
	"name": {
		"maxLength": "Name must be at most 50 characters",
		"*":         "Name is required",
	},
	"color":       {"*": "Color must be a hex value like #6366f1"},
	"description": {"*": "Description must be at most 500 characters"},
}

// CategoryInput is the raw shape submitted by a category form.
type CategoryInput struct {
	Name        string `json:"name" form:"name"`
	Color       string `json:"color" form:"color"`
	Description string `json:"description" form:"description"`
}

// Category is a validated category form.
type Category struct {
	Name        string
	Color       string
	Description *string
}

// ValidateCategory checks input against the category rules. An empty color
// falls back to model.DefaultCategoryColor.
func ValidateCategory(input CategoryInput) (Category, FieldErrors) {
	name := strings.TrimSpace(input.Name)
	color := strings.ToLower(strings.TrimSpace(input.Color))
	if color == "" {
		color = model.DefaultCategoryColor
	}
	description := strings.TrimSpace(input.Description)

	doc := map[string]interface{}{"name": name, "color": color}
	if description != "" {
		doc["description"] = description
	}

	errs := FieldErrors{}
	check(categorySchema, doc, categoryMessages, errs)
	if len(errs) > 0 {
		return Category{}, errs
	}

	out := Category{Name: name, Color: color}
	if description != "" {
		out.Description = &description
	}
	return out, nil
}
