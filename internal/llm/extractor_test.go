package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	text string
	err  error
}

type fakeModel struct {
	replies []reply
	calls   int
	last    VisionRequest
}

func (f *fakeModel) Name() string { return "fake" }

func (f *fakeModel) Generate(_ context.Context, req VisionRequest) (string, error) {
	f.last = req
	i := f.calls
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	f.calls++
	return f.replies[i].text, f.replies[i].err
}

func noWait() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3}
}

func pageReq() PageRequest {
	return PageRequest{ImagePNG: []byte("png"), Columns: []string{"Species", "County"}, PageNumber: 4}
}

func TestExtractPageParsesRows(t *testing.T) {
	m := &fakeModel{replies: []reply{{text: "```json\n{\"extracted_data\":[{\"species\":\"Quercus alba\",\"County\":\"Knox\"}],\"confidence_level\":\"high\"}\n```"}}}
	e := NewExtractor(m, nil, WithRetryPolicy(noWait()))

	res, err := e.ExtractPage(context.Background(), pageReq())
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Quercus alba", res.Rows[0]["Species"])
	assert.Equal(t, "high", res.Confidence)
	assert.False(t, res.Recovered)
	assert.Equal(t, 1, res.Attempts)

	assert.Equal(t, DefaultMaxTokens, m.last.MaxTokens)
	assert.Equal(t, DefaultTemperature, m.last.Temperature)
	assert.Contains(t, m.last.Prompt, `"Species", "County"`)
}

func TestExtractPageRetriesThrottling(t *testing.T) {
	m := &fakeModel{replies: []reply{
		{err: &APIError{Provider: "fake", StatusCode: http.StatusTooManyRequests}},
		{err: &APIError{Provider: "fake", StatusCode: http.StatusBadGateway}},
		{text: `{"extracted_data":[]}`},
	}}
	e := NewExtractor(m, nil, WithRetryPolicy(noWait()))

	res, err := e.ExtractPage(context.Background(), pageReq())
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Equal(t, 3, res.Attempts)
}

func TestExtractPageGivesUpAfterMaxAttempts(t *testing.T) {
	m := &fakeModel{replies: []reply{{err: &APIError{Provider: "fake", StatusCode: http.StatusServiceUnavailable}}}}
	e := NewExtractor(m, nil, WithRetryPolicy(RetryPolicy{MaxAttempts: 2}))

	res, err := e.ExtractPage(context.Background(), pageReq())
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 2, res.Attempts)
}

func TestExtractPageDoesNotRetryClientErrors(t *testing.T) {
	m := &fakeModel{replies: []reply{
		{err: &APIError{Provider: "fake", StatusCode: http.StatusUnauthorized}},
		{text: `{"extracted_data":[]}`},
	}}
	e := NewExtractor(m, nil, WithRetryPolicy(noWait()))

	res, err := e.ExtractPage(context.Background(), pageReq())
	require.Error(t, err)
	assert.Equal(t, 1, res.Attempts)
}

func TestExtractPageUnparseableIsEmpty(t *testing.T) {
	m := &fakeModel{replies: []reply{{text: "I could not find any table on this page."}}}
	e := NewExtractor(m, nil, WithRetryPolicy(noWait()))

	res, err := e.ExtractPage(context.Background(), pageReq())
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.True(t, res.Recovered)
}

func TestExtractPageRecoversArray(t *testing.T) {
	m := &fakeModel{replies: []reply{{text: `Rows: [{"Species":"Acer rubrum","County":"Blount"}]`}}}
	e := NewExtractor(m, nil, WithRetryPolicy(noWait()))

	res, err := e.ExtractPage(context.Background(), pageReq())
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.True(t, res.Recovered)
	assert.Equal(t, "Blount", res.Rows[0]["County"])
}

func TestExtractPageCancelled(t *testing.T) {
	m := &fakeModel{replies: []reply{{text: `{"extracted_data":[]}`}}}
	e := NewExtractor(m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.ExtractPage(ctx, pageReq())
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&APIError{StatusCode: 429}))
	assert.True(t, IsRetryable(&APIError{StatusCode: 500}))
	assert.False(t, IsRetryable(&APIError{StatusCode: 400}))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(errors.New("boom")))
	assert.False(t, IsRetryable(nil))
}

func TestBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: 3 * time.Second}
	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 3*time.Second, p.Backoff(2))
	assert.Equal(t, time.Duration(0), RetryPolicy{}.Backoff(3))
}
