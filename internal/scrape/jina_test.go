package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/arbitrage-cli/internal/resilience"
	"github.com/sells-group/arbitrage-cli/pkg/jina"
)

type fakeJina struct {
	resp *jina.ReadResponse
	err  error
}

func (f *fakeJina) Read(_ context.Context, _ string) (*jina.ReadResponse, error) {
	return f.resp, f.err
}

func TestJinaAdapter_Success(t *testing.T) {
	client := &fakeJina{resp: &jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{
			Title:   "Sterling set",
			Content: "Heavy sterling  set\n![front](/img/1.jpg)",
			Images: map[string]string{
				"Image 2": "https://cdn.example.com/z.jpg",
				"Image 1": "https://shop.example.com/img/1.jpg",
				"Image 3": "https://cdn.example.com/a.jpg",
			},
		},
	}}

	res, err := NewJinaAdapter(client).Scrape(context.Background(), "https://shop.example.com/item")
	require.NoError(t, err)
	assert.Equal(t, "jina", res.Source)
	assert.Equal(t, "Sterling set", res.Title)
	assert.Contains(t, res.Text, "Heavy sterling")
	assert.Equal(t, []string{
		"https://shop.example.com/img/1.jpg",
		"https://cdn.example.com/a.jpg",
		"https://cdn.example.com/z.jpg",
	}, res.ImageURLs)
}

func TestJinaAdapter_StatusError(t *testing.T) {
	client := &fakeJina{err: &jina.StatusError{StatusCode: 429, Body: "slow down"}}

	_, err := NewJinaAdapter(client).Scrape(context.Background(), "https://shop.example.com/item")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestJinaAdapter_Error(t *testing.T) {
	client := &fakeJina{err: errors.New("dial failed")}

	_, err := NewJinaAdapter(client).Scrape(context.Background(), "https://shop.example.com/item")
	require.Error(t, err)
}
