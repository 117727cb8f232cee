package requirements

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// CustomValidatorFunc checks a submitted value for MethodCustom. It gets
// the whole submission alongside the value so cross-field checks are
// possible, returns whether the value passes, and may return a detail
// string used as the error message. Implementations must be synchronous
// and fast; the engine performs no I/O and imposes no timeout.
type CustomValidatorFunc func(value any, submission map[string]any) (bool, string)

// ValidatorRegistry holds named custom validators. The host populates it
// at startup and hands it to the engine; there is no global registration.
// Safe for concurrent lookups.
type ValidatorRegistry struct {
	mu    sync.RWMutex
	funcs map[string]CustomValidatorFunc
}

// NewValidatorRegistry creates an empty registry.
func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{funcs: make(map[string]CustomValidatorFunc)}
}

// Register adds a named validator. Registering a name twice is an error so
// a misconfigured host fails at startup, not at submission time.
func (r *ValidatorRegistry) Register(name string, fn CustomValidatorFunc) error {
	if name == "" {
		return fmt.Errorf("validator name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("validator %s cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("validator %s is already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// Lookup returns the validator registered under name.
func (r *ValidatorRegistry) Lookup(name string) (CustomValidatorFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered validator names.
func (r *ValidatorRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

// DefaultRegistry returns a registry preloaded with the contact-data
// validators survey requirement sets reference most often.
func DefaultRegistry() *ValidatorRegistry {
	reg := NewValidatorRegistry()
	reg.Register("email", ValidateEmail)
	reg.Register("phone_number", ValidatePhoneNumber)
	return reg
}

// ValidateEmail checks basic email address shape.
func ValidateEmail(value any, _ map[string]any) (bool, string) {
	s, ok := value.(string)
	if !ok {
		return false, "email must be a string"
	}
	if !emailPattern.MatchString(s) {
		return false, "invalid email address format"
	}
	return true, ""
}

// ValidatePhoneNumber checks phone number shape after stripping the
// separators respondents commonly type.
func ValidatePhoneNumber(value any, _ map[string]any) (bool, string) {
	s, ok := value.(string)
	if !ok {
		return false, "phone number must be a string"
	}
	normalized := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(s)
	if !phonePattern.MatchString(normalized) {
		return false, "invalid phone number format"
	}
	return true, ""
}
