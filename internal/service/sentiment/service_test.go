package sentiment

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

)

type fakeModel struct {
	reply string
	err   error
	seen  []*schema.Message
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.seen = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeModel) BindTools([]*schema.ToolInfo) error { return nil }

// fixedPolarity stands in for the VADER fallback.
type fixedPolarity struct {
	value float64
	err   error
}

func (f fixedPolarity) Polarity(context.Context, string) (float64, error) {
	return f.value, f.err
}

func newService(t *testing.T, m *fakeModel, enabled bool) *Service {
	t.Helper()
	return newServiceWithFallback(t, m, enabled, fixedPolarity{value: 0.25})
}

func newServiceWithFallback(t *testing.T, m *fakeModel, enabled bool, fallback fixedPolarity) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), m, fallback, Config{Enabled: enabled}, nil, nil)
	require.NoError(t, err)
	return svc
}

func TestPolarityFromModel(t *testing.T) {
	m := &fakeModel{reply: "sure: {\"polarity\": 0.7}"}
	svc := newService(t, m, true)

	got, err := svc.Polarity(context.Background(), "  what a lovely day  ")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, got, 1e-9)

	require.Len(t, m.seen, 2)
	assert.Equal(t, schema.System, m.seen[0].Role)
	assert.Equal(t, "what a lovely day", m.seen[1].Content)
}

func TestPolarityIsClamped(t *testing.T) {
	svc := newService(t, &fakeModel{reply: `{"polarity": -4}`}, true)

	got, err := svc.Polarity(context.Background(), "awful")
	require.NoError(t, err)
	assert.Equal(t, -1.0, got)
}

func TestPolarityFallsBackToScorer(t *testing.T) {
	cases := map[string]*fakeModel{
		"model error":   {err: errors.New("rate limited")},
		"empty reply":   {reply: "   "},
		"not json":      {reply: "pretty positive I think"},
		"missing field": {reply: `{"score": 0.9}`},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := newService(t, m, true).Polarity(context.Background(), "this is good")
			require.NoError(t, err)
			assert.InDelta(t, 0.25, got, 1e-9)
		})
	}
}

func TestDisabledServiceNeverCallsModel(t *testing.T) {
	m := &fakeModel{reply: `{"polarity": 1}`}
	svc := newServiceWithFallback(t, m, false, fixedPolarity{value: -0.25})

	assert.False(t, svc.Enabled())
	got, err := svc.Polarity(context.Background(), "this is bad")
	require.NoError(t, err)
	assert.InDelta(t, -0.25, got, 1e-9)
	assert.Nil(t, m.seen)
}

func TestFallbackErrorIsNeutral(t *testing.T) {
	svc := newServiceWithFallback(t, &fakeModel{err: errors.New("down")}, true, fixedPolarity{value: 0.9, err: errors.New("broken")})

	got, err := svc.Polarity(context.Background(), "anything")
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestParsePolarity(t *testing.T) {
	_, err := parsePolarity("no braces here")
	assert.Error(t, err)

	v, err := parsePolarity("```json\n{\"polarity\": 0}\n```")
	require.NoError(t, err)
	assert.Zero(t, v)
}
