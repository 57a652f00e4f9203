package request

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ironsheep/image-flow/internal/flow"
	"github.com/ironsheep/image-flow/internal/imaging"
	"github.com/ironsheep/image-flow/internal/nodes"
)

// validate checks requests and operation parameters. Field names in errors
// are the YAML names.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("imgcolor", func(fl validator.FieldLevel) bool {
		_, err := imaging.ParseColor(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("resample", func(fl validator.FieldLevel) bool {
		_, err := imaging.ParseFilter(fl.Field().String())
		return err == nil
	})
}

// ValidationError reports a request that cannot be built. Structural
// problems (unknown node ids, cycles, a missing graph) also match
// flow.ErrGraphInvalid.
type ValidationError struct {
	// Field locates the problem, e.g. "graph.nodes.2"; empty for the whole
	// request.
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid request: %v", e.Err)
	}
	return fmt.Sprintf("invalid request: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func structural(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Err: fmt.Errorf("%w: "+format, append([]any{flow.ErrGraphInvalid}, args...)...)}
}

// Validate checks the request's fields and every operation's parameters.
func (r *Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return &ValidationError{Err: describe(err)}
	}

	switch {
	case r.Graph == nil && len(r.Steps) == 0:
		return structural("", "request has neither graph nor steps")
	case r.Graph != nil && len(r.Steps) > 0:
		return structural("", "request has both graph and steps")
	}

	seen := make(map[int]bool, len(r.IO))
	for i, spec := range r.IO {
		field := fmt.Sprintf("io[%d]", i)
		if seen[spec.ID] {
			return &ValidationError{Field: field, Err: fmt.Errorf("duplicate io id %d", spec.ID)}
		}
		seen[spec.ID] = true
		if err := spec.validate(); err != nil {
			return &ValidationError{Field: field, Err: err}
		}
	}

	if r.Graph != nil {
		for _, key := range sortedKeys(r.Graph.Nodes) {
			if err := validateOp(r.Graph.Nodes[key]); err != nil {
				return &ValidationError{Field: "graph.nodes." + key, Err: err}
			}
		}
		return nil
	}
	for i, n := range r.Steps {
		if err := validateOp(n); err != nil {
			return &ValidationError{Field: fmt.Sprintf("steps[%d]", i), Err: err}
		}
	}
	return nil
}

// Validate checks a single port declaration.
func (s IOSpec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return &ValidationError{Err: describe(err)}
	}
	if err := s.validate(); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

func (s IOSpec) validate() error {
	sources := 0
	for _, set := range []bool{s.Path != "", s.Base64 != "", s.Buffer, s.Key != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return errors.New("exactly one of path, base64, buffer or key is required")
	}
	out := s.Direction == "out" || s.Direction == "output"
	if out && s.Base64 != "" {
		return errors.New("base64 is only valid for inputs")
	}
	if !out && s.Buffer {
		return errors.New("buffer is only valid for outputs")
	}
	return nil
}

func validateOp(n NodeSpec) error {
	if n.Op == nil {
		return fmt.Errorf("%w: empty node", flow.ErrGraphInvalid)
	}
	if err := validate.Struct(n.Op); err != nil {
		return describe(err)
	}
	if v, ok := n.Op.(nodes.Validator); ok {
		return v.Validate()
	}
	return nil
}

// describe turns validator field errors into one readable error.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		ns := fe.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		msgs = append(msgs, fmt.Sprintf("%s fails %s (got %v)", ns, rule, fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
