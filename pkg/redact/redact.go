// Package redact scrubs personally identifiable information from log
// entries before they cross a process boundary. Two passes run
// together: a pattern pass over string values (emails, phone numbers,
// card and social security numbers, tokens) and a field-name pass that
// blanks whole values under sensitive keys. Output is always
// json-serializable and running the engine twice changes nothing.
package redact

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DeBrosOfficial/logfan/pkg/logging"
)

const (
	defaultMaxDepth     = 10
	defaultMaxStringLen = 10000
	defaultMaxArrayLen  = 100
)

// Config bounds the traversal and extends the sensitive field set.
type Config struct {
	MaxDepth     int
	MaxStringLen int
	MaxArrayLen  int
	ExtraFields  []string
}

// Redactor applies the two redaction passes. Safe for concurrent use;
// all state is read-only after construction.
type Redactor struct {
	cfg      Config
	patterns []pattern
	exact    map[string]struct{}
}

// exactFields are matched against normalized keys (lowercased, with
// underscores, dashes and spaces stripped).
var exactFields = []string{
	"password", "passwd", "pwd", "passphrase",
	"secret", "secretkey", "apikey", "apisecret",
	"token", "accesstoken", "refreshtoken", "idtoken", "bearer",
	"privatekey", "authorization", "auth", "credential", "credentials",
	"email", "emailaddress", "phone", "phonenumber", "mobile",
	"ssn", "socialsecuritynumber",
	"creditcard", "cardnumber", "ccnumber", "cvv", "cvc", "pin",
	"name", "firstname", "lastname", "fullname",
	"address", "street", "dob", "dateofbirth",
}

// substringFields catch composed keys like user_password or
// x-auth-token. Short generic words (name, auth) are kept out of this
// list so filename and author stay readable.
var substringFields = []string{
	"password", "passwd", "passphrase", "secret", "apikey", "token",
	"credential", "privatekey", "creditcard", "cardnumber", "cvv",
	"ssn", "authorization",
}

// New builds a Redactor; zero config fields take defaults.
func New(cfg Config) *Redactor {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	if cfg.MaxStringLen <= 0 {
		cfg.MaxStringLen = defaultMaxStringLen
	}
	if cfg.MaxArrayLen <= 0 {
		cfg.MaxArrayLen = defaultMaxArrayLen
	}
	r := &Redactor{
		cfg:      cfg,
		patterns: patterns,
		exact:    make(map[string]struct{}, len(exactFields)+len(cfg.ExtraFields)),
	}
	for _, f := range exactFields {
		r.exact[normalizeKey(f)] = struct{}{}
	}
	for _, f := range cfg.ExtraFields {
		r.exact[normalizeKey(f)] = struct{}{}
	}
	return r
}

// Default returns a Redactor with default limits.
func Default() *Redactor {
	return New(Config{})
}

func normalizeKey(k string) string {
	k = strings.ToLower(k)
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return -1
		}
		return r
	}, k)
}

func (r *Redactor) sensitiveKey(key string) bool {
	n := normalizeKey(key)
	if _, ok := r.exact[n]; ok {
		return true
	}
	for _, sub := range substringFields {
		if strings.Contains(n, sub) {
			return true
		}
	}
	return false
}

// Redact returns a scrubbed deep copy of v. The input is never
// mutated.
func (r *Redactor) Redact(v any) any {
	return r.walk(v, 0, make(map[uintptr]struct{}))
}

// RedactMap scrubs a string-keyed map, the common shape of entry
// context and data.
func (r *Redactor) RedactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := r.walk(m, 0, make(map[uintptr]struct{})).(map[string]any)
	return out
}

// RedactEntry scrubs everything in an entry that carries free-form
// content: message, context, data and the error text. Correlation ids
// and tags pass through.
func (r *Redactor) RedactEntry(e logging.Entry) logging.Entry {
	e.Message = r.truncate(r.RedactString(e.Message))
	e.Context = r.RedactMap(e.Context)
	e.Data = r.RedactMap(e.Data)
	if e.Err != nil {
		e.Err = errors.New(r.truncate(r.RedactString(e.Err.Error())))
	}
	return e
}

func (r *Redactor) walk(v any, depth int, seen map[uintptr]struct{}) any {
	if v == nil {
		return nil
	}
	if depth > r.cfg.MaxDepth {
		return depthMarker
	}

	switch t := v.(type) {
	case string:
		return r.truncate(r.RedactString(t))
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, time.Time, time.Duration:
		return t
	case []byte:
		// Binary blobs are never inspected or forwarded, only described.
		return map[string]any{"type": "binary", "size": len(t)}
	case error:
		return r.truncate(r.RedactString(t.Error()))
	case map[string]any:
		ptr := reflect.ValueOf(t).Pointer()
		if _, ok := seen[ptr]; ok {
			return cycleMarker
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)
		out := make(map[string]any, len(t))
		for k, val := range t {
			if r.sensitiveKey(k) {
				out[k] = redactedField
				continue
			}
			out[k] = r.walk(val, depth+1, seen)
		}
		return out
	case []any:
		if t == nil {
			return nil
		}
		ptr := reflect.ValueOf(t).Pointer()
		if _, ok := seen[ptr]; ok {
			return cycleMarker
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)
		return r.walkSlice(reflect.ValueOf(t), depth, seen)
	}

	return r.walkReflect(reflect.ValueOf(v), depth, seen)
}

func (r *Redactor) walkReflect(rv reflect.Value, depth int, seen map[uintptr]struct{}) any {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		if rv.Kind() == reflect.Pointer {
			ptr := rv.Pointer()
			if _, ok := seen[ptr]; ok {
				return cycleMarker
			}
			seen[ptr] = struct{}{}
			defer delete(seen, ptr)
		}
		return r.walk(rv.Elem().Interface(), depth, seen)

	case reflect.Map:
		ptr := rv.Pointer()
		if _, ok := seen[ptr]; ok {
			return cycleMarker
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprint(iter.Key().Interface())
			if r.sensitiveKey(key) {
				out[key] = redactedField
				continue
			}
			out[key] = r.walk(iter.Value().Interface(), depth+1, seen)
		}
		return out

	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		ptr := rv.Pointer()
		if _, ok := seen[ptr]; ok {
			return cycleMarker
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)
		return r.walkSlice(rv, depth, seen)

	case reflect.Array:
		return r.walkSlice(rv, depth, seen)

	case reflect.Struct:
		rt := rv.Type()
		out := make(map[string]any, rt.NumField())
		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			if !f.IsExported() {
				continue
			}
			if r.sensitiveKey(f.Name) {
				out[f.Name] = redactedField
				continue
			}
			out[f.Name] = r.walk(rv.Field(i).Interface(), depth+1, seen)
		}
		return out

	case reflect.String:
		return r.truncate(r.RedactString(rv.String()))

	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rv.Interface()

	default:
		// Functions, channels, complex numbers, unsafe pointers.
		return fmt.Sprintf("[UNSERIALIZABLE %s]", rv.Kind())
	}
}

// walkSlice truncates long arrays to the limit with the marker counted
// as one of the kept slots, so re-running the engine over its own
// output never re-truncates.
func (r *Redactor) walkSlice(rv reflect.Value, depth int, seen map[uintptr]struct{}) any {
	n := rv.Len()
	truncated := 0
	if n > r.cfg.MaxArrayLen {
		truncated = n - (r.cfg.MaxArrayLen - 1)
		n = r.cfg.MaxArrayLen - 1
	}
	out := make([]any, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, r.walk(rv.Index(i).Interface(), depth+1, seen))
	}
	if truncated > 0 {
		out = append(out, fmt.Sprintf("[TRUNCATED %d items]", truncated))
	}
	return out
}

func (r *Redactor) truncate(s string) string {
	if len(s) <= r.cfg.MaxStringLen {
		return s
	}
	cut := s[:r.cfg.MaxStringLen]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut + "…"
}
