package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pavelanni/qtadmin/internal/model"
)

// ErrUnknownRole is returned for role values other than teacher, parent and student.
var ErrUnknownRole = errors.New("unknown role")

// ErrNoIdentifier is returned when a profile carries neither id nor user_id.
var ErrNoIdentifier = errors.New("profile has no identifier")

// notSpecified fills the self entry of a student without children data.
const notSpecified = "Not specified"

// Legacy phone keys. Both are written so older views keep working.
const (
	phoneKey       = "phone"
	phoneNumberKey = "phone_number"
)

// Normalize turns a /users/me body into a Profile. The backend is not
// consistent about field names: the role may come as role or user_type and
// the identifier as id or user_id.
func Normalize(raw []byte) (*model.Profile, error) {
	fields, err := decodeFields(raw)
	if err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	role, err := roleOf(fields)
	if err != nil {
		return nil, err
	}
	id := str(first(fields, "id", "user_id"))
	if id == "" {
		return nil, ErrNoIdentifier
	}

	p := &model.Profile{
		ID:     id,
		Role:   role,
		Email:  str(fields["email"]),
		Name:   str(first(fields, "name", "full_name")),
		Fields: fields,
	}
	fields["id"] = id

	if role == model.RoleTeacher {
		p.IsTeacher = true
		return p, nil
	}

	if phone := str(first(fields, phoneKey, phoneNumberKey)); phone != "" {
		fields[phoneKey] = phone
		fields[phoneNumberKey] = phone
	}

	children, err := orderedChildren(raw)
	if err != nil {
		return nil, fmt.Errorf("decode children: %w", err)
	}
	if len(children) == 0 && role == model.RoleStudent {
		children = []model.Child{selfChild(p, fields)}
	}
	p.Children = children
	return p, nil
}

func decodeFields(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("empty profile")
	}
	return fields, nil
}

func roleOf(fields map[string]any) (model.Role, error) {
	v := strings.ToLower(strings.TrimSpace(str(first(fields, "role", "user_type"))))
	switch r := model.Role(v); r {
	case model.RoleTeacher, model.RoleParent, model.RoleStudent:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, v)
	}
}

// orderedChildren reads the children mapping keeping the backend's key order.
// An array of objects with an id member is accepted too.
func orderedChildren(raw []byte) ([]model.Child, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, err
	}
	data, ok := top["children"]
	if !ok || len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	var children []model.Child
	switch tok {
	case json.Delim('{'):
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			var attrs map[string]any
			if err := dec.Decode(&attrs); err != nil {
				return nil, err
			}
			children = append(children, childFrom(keyTok.(string), attrs))
		}
	case json.Delim('['):
		for dec.More() {
			var attrs map[string]any
			if err := dec.Decode(&attrs); err != nil {
				return nil, err
			}
			id := str(first(attrs, "id", "child_id"))
			if id == "" {
				continue
			}
			children = append(children, childFrom(id, attrs))
		}
	default:
		return nil, fmt.Errorf("unexpected children value %v", tok)
	}
	return children, nil
}

func childFrom(id string, attrs map[string]any) model.Child {
	return model.Child{
		ID:     id,
		Name:   str(first(attrs, "name", "child_name")),
		Grade:  str(attrs["grade"]),
		School: str(attrs["school"]),
		Board:  str(attrs["board"]),
	}
}

// selfChild is the entry that lets a student be viewed like a parent's child.
func selfChild(p *model.Profile, fields map[string]any) model.Child {
	c := model.Child{
		ID:     p.ID,
		Name:   p.Name,
		Grade:  str(fields["grade"]),
		School: str(fields["school"]),
		Board:  str(fields["board"]),
	}
	if c.Name == "" {
		c.Name = "Student"
	}
	if c.Grade == "" {
		c.Grade = notSpecified
	}
	if c.School == "" {
		c.School = notSpecified
	}
	return c
}

func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil && str(v) != "" {
			return v
		}
	}
	return nil
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
