package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerDecodeShapes(t *testing.T) {
	tests := []struct {
		raw  string
		kind AnswerKind
	}{
		{`null`, AnswerNone},
		{`"Samsung"`, AnswerText},
		{`42.5`, AnswerNumber},
		{`{"optionId": "other", "otherText": "Nokia"}`, AnswerChoice},
		{`["a", "b"]`, AnswerChoices},
		{`[{"optionId": "a"}, "b"]`, AnswerChoices},
		{`[{"key": "Pixel 9", "value": [1, 2]}]`, AnswerMatrix},
		{`[]`, AnswerChoices},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			var a Answer
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &a))
			assert.Equal(t, tc.kind, a.Kind)
		})
	}
}

func TestAnswerDecodeRejectsUnknownObject(t *testing.T) {
	var a Answer
	assert.Error(t, json.Unmarshal([]byte(`{"url": "x"}`), &a))
}

func TestAnswerEncodeKeepsWireShape(t *testing.T) {
	raw := `[{"optionId":"other","otherText":"Nokia"},"b"]`
	var a Answer
	require.NoError(t, json.Unmarshal([]byte(raw), &a))

	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestAnswerEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Answer
		want bool
	}{
		{"plain lists ignore order", ChoicesAnswer("a", "b"), ChoicesAnswer("b", "a"), true},
		{"plain lists are multisets", ChoicesAnswer("a", "a"), ChoicesAnswer("a", "b"), false},
		{"boxed lists compare element-wise", Answer{Kind: AnswerChoices, Choices: []Choice{{OptionID: "a", Boxed: true}, {OptionID: "b"}}},
			Answer{Kind: AnswerChoices, Choices: []Choice{{OptionID: "b"}, {OptionID: "a", Boxed: true}}}, false},
		{"matrix ignores row and column order", MatrixAnswer(
			MatrixRow{Key: "x", Value: []int{2, 1}}, MatrixRow{Key: "y", Value: []int{0}},
		), MatrixAnswer(
			MatrixRow{Key: "y", Value: []int{0}}, MatrixRow{Key: "x", Value: []int{1, 2}},
		), true},
		{"matrix differs", MatrixAnswer(MatrixRow{Key: "x", Value: []int{1}}), MatrixAnswer(MatrixRow{Key: "x", Value: []int{2}}), false},
		{"empty matrix equals empty list", MatrixAnswer(), ChoicesAnswer(), true},
		{"boxed choice other text", ChoiceAnswer("o", "Nokia"), ChoiceAnswer("o", "Jio"), false},
		{"scalars are strict", TextAnswer("5"), NumberAnswer(5), false},
		{"none equals none", Answer{}, Answer{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Equal(tc.b))
			assert.Equal(t, tc.want, tc.b.Equal(tc.a))
		})
	}
}

func TestAnswerCloneIsDeep(t *testing.T) {
	a := MatrixAnswer(MatrixRow{Key: "x", Value: []int{1}})
	b := a.Clone()
	b.Matrix[0].Value[0] = 7
	assert.Equal(t, []int{1}, a.Matrix[0].Value)
}

func TestAnswerPredicates(t *testing.T) {
	assert.False(t, TextAnswer("").HasValue())
	assert.True(t, ChoicesAnswer().HasValue())
	assert.False(t, ChoicesAnswer().IsAnswered())
	assert.True(t, NumberAnswer(0).IsAnswered())
	assert.Equal(t, "a, other: Nokia", Answer{Kind: AnswerChoices, Choices: []Choice{
		{OptionID: "a"}, {OptionID: "other", OtherText: "Nokia", Boxed: true},
	}}.String())
}
