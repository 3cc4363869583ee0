package source

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/enrichment-worker/pkg/brave"
)

type mockBraveClient struct {
	mock.Mock
}

func (m *mockBraveClient) Search(ctx context.Context, query string, opts ...brave.SearchOption) (*brave.SearchResponse, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*brave.SearchResponse), args.Error(1)
}

func searchResponse(urls ...string) *brave.SearchResponse {
	resp := &brave.SearchResponse{}
	for _, u := range urls {
		resp.Web.Results = append(resp.Web.Results, brave.SearchResult{URL: u})
	}
	return resp
}
