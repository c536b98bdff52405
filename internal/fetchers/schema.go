package fetchers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"marketplace-listing-api/internal/models"
	"marketplace-listing-api/pkg/utils"
)

var validate = validator.New()

// Schema maps the backend's record keys onto Item. Keys may be dotted paths
// into nested objects ("subcategory.name"). The first present key of a list
// wins.
type Schema struct {
	IDKeys       []string
	NameKeys     []string
	PriceKey     string
	CategoryKey  string
	StatusKey    string
	CreatedAtKey string
	TextKeys     []string
}

// DefaultSchema matches the marketplace backend's product records.
func DefaultSchema() Schema {
	return Schema{
		IDKeys:       []string{"_id", "id"},
		NameKeys:     []string{"name", "title"},
		PriceKey:     "price",
		CategoryKey:  "subcategory",
		StatusKey:    "status",
		CreatedAtKey: "createdAt",
		TextKeys:     []string{"description", "seller.shopName"},
	}
}

// Decode converts one raw record. Records without an id, with a negative or
// non-numeric price, or with an unreadable timestamp are rejected.
func (s Schema) Decode(raw map[string]any) (models.Item, error) {
	var item models.Item
	if raw == nil {
		return item, fmt.Errorf("record is not an object")
	}

	for _, key := range s.IDKeys {
		if id, ok := scalarString(lookup(raw, key)); ok && id != "" {
			item.ID = id
			break
		}
	}

	for _, key := range s.NameKeys {
		if name, ok := scalarString(lookup(raw, key)); ok && name != "" {
			item.Name = name
			break
		}
	}

	if s.PriceKey != "" {
		price, ok := utils.PriceValue(lookup(raw, s.PriceKey))
		if !ok {
			return item, fmt.Errorf("record %q: invalid %s", item.ID, s.PriceKey)
		}
		item.Price = price
	}

	if s.CategoryKey != "" {
		item.Category = categoryName(lookup(raw, s.CategoryKey))
	}

	if s.StatusKey != "" {
		item.Status, _ = scalarString(lookup(raw, s.StatusKey))
	}

	if s.CreatedAtKey != "" {
		createdAt, ok := utils.ParseTime(lookup(raw, s.CreatedAtKey))
		if !ok {
			return item, fmt.Errorf("record %q: invalid %s", item.ID, s.CreatedAtKey)
		}
		item.CreatedAt = createdAt
	}

	for _, key := range s.TextKeys {
		if text, ok := scalarString(lookup(raw, key)); ok && text != "" {
			if item.Text == nil {
				item.Text = make(map[string]string, len(s.TextKeys))
			}
			item.Text[key] = text
		}
	}

	if err := validate.Struct(item); err != nil {
		return item, fmt.Errorf("record %q: %w", item.ID, err)
	}

	return item, nil
}

// DecodeAll converts every record; the first bad record fails the batch.
func (s Schema) DecodeAll(records []map[string]any) ([]models.Item, error) {
	items := make([]models.Item, 0, len(records))
	for i, raw := range records {
		item, err := s.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("data[%d]: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func lookup(raw map[string]any, path string) any {
	var current any = raw
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[part]
	}
	return current
}

func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

// categoryName accepts a plain string or an object carrying a name.
func categoryName(v any) string {
	if name, ok := scalarString(v); ok {
		return name
	}
	if obj, ok := v.(map[string]any); ok {
		name, _ := scalarString(obj["name"])
		return name
	}
	return ""
}
