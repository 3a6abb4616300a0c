package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/userhub/apiserver/types"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Error carries every violation found in a payload. All fields are checked
// before failing so callers see the full list at once.
type Error struct {
	Violations []string
}

func (e *Error) Error() string {
	return "validation error: " + strings.Join(e.Violations, ", ")
}

// CreateUser validates an untyped creation payload and produces a typed
// record with defaults applied. Email, username, full name, and password
// are required; the rest are optional.
func CreateUser(data map[string]any) (types.CreateUser, error) {
	var violations []string

	email, _ := data["email"].(string)
	if !validEmail(data["email"]) {
		violations = append(violations, "invalid email format")
	}

	username, _ := data["username"].(string)
	if !validString(data["username"], 3, 100) {
		violations = append(violations, "username must be between 3 and 100 characters")
	}

	fullName, _ := data["full_name"].(string)
	if !validString(data["full_name"], 1, 255) {
		violations = append(violations, "full name must be between 1 and 255 characters")
	}

	password, _ := data["password"].(string)
	if !validString(data["password"], 6, 255) {
		violations = append(violations, "password must be between 6 and 255 characters")
	}

	avatarURL, ok := optionalString(data, "avatar_url", 1, 1000)
	if !ok {
		violations = append(violations, "avatar url must be a string of at most 1000 characters")
	}

	bio, ok := optionalString(data, "bio", 1, 1000)
	if !ok {
		violations = append(violations, "bio must be a string of at most 1000 characters")
	}

	role, ok := optionalString(data, "role", 1, 50)
	if !ok {
		violations = append(violations, "role must be a string of at most 50 characters")
	}

	if len(violations) > 0 {
		return types.CreateUser{}, &Error{Violations: violations}
	}

	dto := types.CreateUser{
		Email:     email,
		Username:  username,
		FullName:  fullName,
		Password:  password,
		AvatarURL: avatarURL,
		Bio:       bio,
		Role:      types.DefaultRole,
	}
	if role != nil {
		dto.Role = *role
	}
	return dto, nil
}

// UpdateUser validates an untyped partial-update payload. Every field is
// optional; an absent or null field means "leave unchanged".
func UpdateUser(data map[string]any) (types.UserPatch, error) {
	var violations []string
	var patch types.UserPatch

	if present(data, "email") {
		if !validEmail(data["email"]) {
			violations = append(violations, "invalid email format")
		} else {
			email := data["email"].(string)
			patch.Email = &email
		}
	}

	patch.Username = optionalField(data, "username", 3, 100, &violations,
		"username must be between 3 and 100 characters")
	patch.FullName = optionalField(data, "full_name", 1, 255, &violations,
		"full name must be between 1 and 255 characters")
	patch.Password = optionalField(data, "password", 6, 255, &violations,
		"password must be between 6 and 255 characters")
	patch.AvatarURL = optionalField(data, "avatar_url", 1, 1000, &violations,
		"avatar url must be a string of at most 1000 characters")
	patch.Bio = optionalField(data, "bio", 1, 1000, &violations,
		"bio must be a string of at most 1000 characters")
	patch.Role = optionalField(data, "role", 1, 50, &violations,
		"role must be a string of at most 50 characters")

	if present(data, "is_active") {
		active, ok := data["is_active"].(bool)
		if !ok {
			violations = append(violations, "is_active must be a boolean")
		} else {
			patch.IsActive = &active
		}
	}

	if len(violations) > 0 {
		return types.UserPatch{}, &Error{Violations: violations}
	}
	return patch, nil
}

// Keyword validates a search keyword, 1 to 100 characters.
func Keyword(keyword string) error {
	length := utf8.RuneCountInString(keyword)
	if length < 1 || length > 100 {
		return &Error{Violations: []string{"search keyword must be between 1 and 100 characters"}}
	}
	return nil
}

func validEmail(value any) bool {
	s, ok := value.(string)
	return ok && emailPattern.MatchString(s)
}

// Length limits count characters, not bytes.
func validString(value any, minLen, maxLen int) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	length := utf8.RuneCountInString(s)
	return length >= minLen && length <= maxLen
}

// present reports whether the key was supplied with a non-null value.
// JSON null decodes to a nil any, which is treated the same as absent.
func present(data map[string]any, key string) bool {
	value, exists := data[key]
	return exists && value != nil
}

func optionalString(data map[string]any, key string, minLen, maxLen int) (*string, bool) {
	if !present(data, key) {
		return nil, true
	}
	if !validString(data[key], minLen, maxLen) {
		return nil, false
	}
	s := data[key].(string)
	return &s, true
}

func optionalField(data map[string]any, key string, minLen, maxLen int, violations *[]string, message string) *string {
	value, ok := optionalString(data, key, minLen, maxLen)
	if !ok {
		*violations = append(*violations, message)
		return nil
	}
	return value
}
