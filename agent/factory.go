package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/saltpond/drover/llm"
)

var (
	ctxType     = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType     = reflect.TypeOf((*error)(nil)).Elem()
	openArgType = reflect.TypeOf(map[string]any{})
)

// Describer lets an instance supply descriptions for the tools extracted
// from its methods, keyed by tool name. Instances that do not implement it
// get generated descriptions.
type Describer interface {
	ToolDescriptions() map[string]string
}

// FromFunction converts a plain Go function into a Tool, deriving the
// parameter schema from the function's argument type.
//
// Supported shapes:
//
//	func(ctx context.Context, args T) (R, error)
//	func(args T) (R, error)
//	func(ctx context.Context) (R, error)
//	func() (R, error)
//
// where T is a struct (fields become schema properties, controlled by the
// json, desc, enum, and default struct tags) or a map[string]any (open
// object, arguments passed through unvalidated), and the trailing error is
// optional. A field carrying a default tag is optional; all others are
// required. An empty description gets a generated fallback.
func FromFunction(name, description string, fn any) (Tool, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return Tool{}, llm.NewConfigurationError("tool %q: expected a function, got %T", name, fn)
	}
	sig, err := analyzeSignature(v.Type())
	if err != nil {
		return Tool{}, llm.NewConfigurationError("tool %q: %v", name, err)
	}
	if description == "" {
		description = fmt.Sprintf("Invoke the %s tool.", name)
	}
	return Tool{
		Name:        name,
		Description: description,
		Parameters:  sig.schema(),
		invoke:      sig.bind(v),
	}, nil
}

// FromInstance extracts a Tool for every exported method of obj whose
// signature fits the shape FromFunction accepts and whose last result is
// an error. Methods without a trailing error (plain accessors) and methods
// whose signatures do not fit are skipped silently; they are treated as
// internal helpers. Every extracted Tool invokes a method bound to the
// same obj, so state mutated by one call is visible to later calls.
//
// Tool names are the snake_case form of the method name. An instance whose
// methods collide after conversion (for example GetURL and GetUrl) is a
// registration error naming both methods.
func FromInstance(obj any) ([]Tool, error) {
	v := reflect.ValueOf(obj)
	if !v.IsValid() {
		return nil, llm.NewConfigurationError("cannot extract tools from a nil instance")
	}

	var docs map[string]string
	if d, ok := obj.(Describer); ok {
		docs = d.ToolDescriptions()
	}

	t := v.Type()
	var tools []Tool
	seen := make(map[string]string)
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if m.Name == "ToolDescriptions" {
			continue
		}
		bound := v.Method(i)
		if bound.Type().NumOut() == 0 {
			// No declared result means the method is not intended as
			// a tool.
			continue
		}
		sig, err := analyzeSignature(bound.Type())
		if err != nil || !sig.hasErr {
			continue
		}

		name := snakeCase(m.Name)
		if prev, dup := seen[name]; dup {
			return nil, llm.NewConfigurationError(
				"duplicate tool name %q: extracted from both %s.%s and %s.%s",
				name, t, prev, t, m.Name)
		}
		seen[name] = m.Name

		desc := docs[name]
		if desc == "" {
			desc = fmt.Sprintf("Call the %s method of %s.", m.Name, t)
		}
		tools = append(tools, Tool{
			Name:        name,
			Description: desc,
			Parameters:  sig.schema(),
			invoke:      sig.bind(bound),
		})
	}
	return tools, nil
}

// signature is the analyzed shape of a tool function: whether it takes a
// context, what its argument type is, and how its results are laid out.
type signature struct {
	takesCtx bool
	argsType reflect.Type // nil when the function takes no arguments
	openArgs bool         // argsType is map[string]any
	fields   []argField
	hasValue bool // a non-error result exists
	hasErr   bool
}

// argField is one property of a struct argument type.
type argField struct {
	index    int
	name     string
	jsonType string
	items    string // element type for arrays, empty otherwise
	desc     string
	enum     []string
	def      string
	hasDef   bool
}

func analyzeSignature(t reflect.Type) (*signature, error) {
	sig := &signature{}

	in := 0
	if t.NumIn() > 0 && t.In(0) == ctxType {
		sig.takesCtx = true
		in = 1
	}
	switch t.NumIn() - in {
	case 0:
	case 1:
		at := t.In(in)
		switch {
		case at == openArgType:
			sig.argsType = at
			sig.openArgs = true
		case at.Kind() == reflect.Struct:
			fields, err := structFields(at)
			if err != nil {
				return nil, err
			}
			sig.argsType = at
			sig.fields = fields
		default:
			return nil, fmt.Errorf("argument must be a struct or map[string]any, got %s", at)
		}
	default:
		return nil, fmt.Errorf("too many arguments: want at most (context.Context, args)")
	}

	switch t.NumOut() {
	case 1:
		if t.Out(0) == errType {
			sig.hasErr = true
		} else {
			sig.hasValue = true
		}
	case 2:
		if t.Out(1) != errType {
			return nil, fmt.Errorf("second return value must be error, got %s", t.Out(1))
		}
		sig.hasValue = true
		sig.hasErr = true
	default:
		return nil, fmt.Errorf("want one or two return values, got %d", t.NumOut())
	}

	return sig, nil
}

// structFields parses the exported fields of a struct argument type into
// schema properties.
func structFields(t reflect.Type) ([]argField, error) {
	var fields []argField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue // unexported
		}

		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
		} else {
			name = snakeCase(name)
		}

		jsonType, items, err := jsonTypeOf(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}

		af := argField{
			index:    i,
			name:     name,
			jsonType: jsonType,
			items:    items,
			desc:     f.Tag.Get("desc"),
		}
		if tag, ok := f.Tag.Lookup("enum"); ok && tag != "" {
			af.enum = strings.Split(tag, ",")
		}
		if tag, ok := f.Tag.Lookup("default"); ok {
			af.def = tag
			af.hasDef = true
		}
		fields = append(fields, af)
	}
	return fields, nil
}

// jsonTypeOf maps a Go type to its JSON-schema type name.
func jsonTypeOf(t reflect.Type) (jsonType, items string, err error) {
	switch t.Kind() {
	case reflect.String:
		return "string", "", nil
	case reflect.Bool:
		return "boolean", "", nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer", "", nil
	case reflect.Float32, reflect.Float64:
		return "number", "", nil
	case reflect.Slice, reflect.Array:
		elem, _, err := jsonTypeOf(t.Elem())
		if err != nil {
			return "", "", err
		}
		return "array", elem, nil
	case reflect.Map, reflect.Struct:
		return "object", "", nil
	case reflect.Ptr:
		return jsonTypeOf(t.Elem())
	default:
		return "", "", fmt.Errorf("unsupported type %s", t)
	}
}

// schema builds the JSON-schema parameter object advertised to providers.
func (s *signature) schema() map[string]any {
	props := make(map[string]any, len(s.fields))
	var required []string
	for _, f := range s.fields {
		p := map[string]any{"type": f.jsonType}
		if f.items != "" {
			p["items"] = map[string]any{"type": f.items}
		}
		if f.desc != "" {
			p["description"] = f.desc
		}
		if len(f.enum) > 0 {
			p["enum"] = f.enum
		}
		if f.hasDef {
			p["default"] = f.def
		} else {
			required = append(required, f.name)
		}
		props[f.name] = p
	}

	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	if s.openArgs {
		schema["additionalProperties"] = true
	}
	return schema
}

// bind wraps the function value in an Invoker that decodes arguments,
// applies defaults, and unpacks the results.
func (s *signature) bind(fn reflect.Value) Invoker {
	return func(ctx context.Context, args map[string]any) (any, error) {
		in := make([]reflect.Value, 0, 2)
		if s.takesCtx {
			in = append(in, reflect.ValueOf(ctx))
		}
		if s.argsType != nil {
			av, err := s.decodeArgs(args)
			if err != nil {
				return nil, err
			}
			in = append(in, av)
		}

		out := fn.Call(in)

		var result any
		if s.hasValue {
			result = out[0].Interface()
		}
		if s.hasErr {
			if errv := out[len(out)-1]; !errv.IsNil() {
				return nil, errv.Interface().(error)
			}
		}
		return result, nil
	}
}

// decodeArgs coerces the raw argument map into the function's argument
// type, surfacing type mismatches and missing required fields.
func (s *signature) decodeArgs(args map[string]any) (reflect.Value, error) {
	if args == nil {
		args = map[string]any{}
	}
	if s.openArgs {
		return reflect.ValueOf(args), nil
	}

	for _, f := range s.fields {
		if _, present := args[f.name]; !present && !f.hasDef {
			return reflect.Value{}, fmt.Errorf("missing required argument %q", f.name)
		}
	}

	data, err := json.Marshal(args)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("encode arguments: %w", err)
	}
	ptr := reflect.New(s.argsType)
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("arguments do not match schema: %w", err)
	}

	for _, f := range s.fields {
		if !f.hasDef {
			continue
		}
		if _, present := args[f.name]; present {
			continue
		}
		if err := setDefault(ptr.Elem().Field(f.index), f.def); err != nil {
			return reflect.Value{}, fmt.Errorf("default for %q: %w", f.name, err)
		}
	}
	return ptr.Elem(), nil
}

// setDefault parses a default tag value into a struct field.
func setDefault(v reflect.Value, def string) error {
	switch v.Kind() {
	case reflect.String:
		v.SetString(def)
	case reflect.Bool:
		b, err := strconv.ParseBool(def)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(def, 10, 64)
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(def, 10, 64)
		if err != nil {
			return err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(def, 64)
		if err != nil {
			return err
		}
		v.SetFloat(f)
	default:
		return fmt.Errorf("type %s does not support defaults", v.Type())
	}
	return nil
}

// snakeCase converts a Go identifier to snake_case, keeping runs of
// initialisms together (GetURL becomes get_url).
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (!unicode.IsUpper(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
