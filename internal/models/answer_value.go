package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type ValueKind uint8

const (
	ValueNone ValueKind = iota
	ValueText
	ValueMapping
)

// AnswerValue is either a plain string (multiple_choice, true_false,
// fill_blank) or a flat left->right label mapping (matching). On the wire
// it is a JSON string or a JSON object of strings.
type AnswerValue struct {
	kind  ValueKind
	text  string
	pairs map[string]string
}

var ErrInvalidAnswerValue = errors.New("answer value must be a string or an object of strings")

func TextValue(s string) AnswerValue {
	return AnswerValue{kind: ValueText, text: s}
}

func MappingValue(pairs map[string]string) AnswerValue {
	cp := make(map[string]string, len(pairs))
	for k, v := range pairs {
		cp[k] = v
	}
	return AnswerValue{kind: ValueMapping, pairs: cp}
}

func (v AnswerValue) Kind() ValueKind { return v.kind }
func (v AnswerValue) Text() string    { return v.text }
func (v AnswerValue) IsZero() bool    { return v.kind == ValueNone }

// Pairs returns the mapping. Callers must not modify it.
func (v AnswerValue) Pairs() map[string]string { return v.pairs }

// Fits reports whether the value has the shape questions of type t take.
func (v AnswerValue) Fits(t QuestionType) bool {
	switch t {
	case QuestionMatching:
		return v.kind == ValueMapping
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionFillBlank:
		return v.kind == ValueText
	}
	return false
}

func (v AnswerValue) String() string {
	switch v.kind {
	case ValueText:
		return v.text
	case ValueMapping:
		return fmt.Sprint(v.pairs)
	}
	return "<none>"
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueText:
		return json.Marshal(v.text)
	case ValueMapping:
		if v.pairs == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.pairs)
	}
	return []byte("null"), nil
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = AnswerValue{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = TextValue(s)
		return nil
	case '{':
		var m map[string]string
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAnswerValue, err)
		}
		*v = AnswerValue{kind: ValueMapping, pairs: m}
		return nil
	}
	return ErrInvalidAnswerValue
}
