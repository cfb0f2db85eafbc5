package mcu

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Telemetry text grammar, the only one accepted:
//   key:value[,key:value...]
// Any order, spaces around tokens ignored, keys case-insensitive.
// Value is decimal fixed point, e.g. 23.5 or -4 or 512.
// Unparseable pair means the field is absent, not a failed read.

const (
	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
	FieldLight       = "light"
	FieldDistance    = "distance"
)

var DefaultFields = []string{FieldTemperature, FieldHumidity, FieldLight, FieldDistance}

var fieldAlias = map[string]string{
	"temp": FieldTemperature,
	"hum":  FieldHumidity,
	"lux":  FieldLight,
	"dist": FieldDistance,
}

// Reading is one decoded telemetry frame. Immutable.
type Reading struct {
	fields map[string]float64
	expect []string
	raw    string
}

// Get returns field value and presence.
func (r Reading) Get(name string) (float64, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// Value returns 0 for absent field.
func (r Reading) Value(name string) float64 { return r.fields[name] }

func (r Reading) Len() int { return len(r.fields) }

// Raw is payload text after padding strip.
func (r Reading) Raw() string { return r.raw }

// Fields returns a copy.
func (r Reading) Fields() map[string]float64 {
	m := make(map[string]float64, len(r.fields))
	for k, v := range r.fields {
		m[k] = v
	}
	return m
}

// Missing expected fields.
func (r Reading) Missing() []string {
	var out []string
	for _, name := range r.expect {
		if _, ok := r.fields[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

func (r Reading) Complete() bool { return len(r.Missing()) == 0 }

func (r Reading) String() string {
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ":" + strconv.FormatFloat(r.fields[k], 'f', -1, 64)
	}
	return fmt.Sprintf("Reading(%s)", strings.Join(parts, ","))
}

type readingJSON struct {
	Data     map[string]float64 `json:"data"`
	Complete bool               `json:"complete"`
	Missing  []string           `json:"missing,omitempty"`
	Raw      string             `json:"raw"`
}

func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(readingJSON{
		Data:     r.Fields(),
		Complete: r.Complete(),
		Missing:  r.Missing(),
		Raw:      r.raw,
	})
}

type Decoder struct {
	// Expected fields, used for Reading.Complete/Missing.
	Fields []string
	// Fewer parsed fields than this is DecodeError. Values <1 mean 1.
	MinFields int
}

func NewDecoder(fields []string, minFields int) *Decoder {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	return &Decoder{Fields: fields, MinFields: minFields}
}

// StripPadding removes 0x00 and 0xff, microcontroller fills unused frame space with them.
func StripPadding(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b != 0x00 && b != 0xff {
			out = append(out, b)
		}
	}
	return out
}

// Decode never fails on garbage. Reading is always usable,
// error is *DecodeError when payload is empty or below MinFields.
func (d *Decoder) Decode(raw []byte) (Reading, error) {
	text := string(StripPadding(raw))
	r := Reading{
		fields: make(map[string]float64, len(d.Fields)),
		expect: d.Fields,
		raw:    text,
	}
	for _, part := range strings.Split(text, ",") {
		if key, value, ok := parsePair(part); ok {
			r.fields[key] = value
		}
	}

	min := d.MinFields
	if min < 1 {
		min = 1
	}
	if len(r.fields) < min {
		return r, &DecodeError{Raw: text, Found: len(r.fields), Min: min}
	}
	return r, nil
}

func parsePair(s string) (string, float64, bool) {
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return "", 0, false
	}
	key := strings.ToLower(strings.TrimSpace(s[:i]))
	if !validKey(key) {
		return "", 0, false
	}
	if canon, ok := fieldAlias[key]; ok {
		key = canon
	}
	text := strings.TrimSpace(s[i+1:])
	if !fixedPoint(text) {
		return "", 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(v, 0) {
		return "", 0, false
	}
	return key, v, true
}

// fixedPoint accepts [+-]digits[.digits], no exponent or hex.
func fixedPoint(s string) bool {
	if s != "" && (s[0] == '-' || s[0] == '+') {
		s = s[1:]
	}
	digits, dot := 0, false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return digits != 0
}

func validKey(key string) bool {
	if key == "" {
		return false
	}
	for _, c := range key {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_') {
			return false
		}
	}
	return true
}
