package query

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockExecutor is a test double for the query executor.
type MockExecutor struct {
	mock.Mock
}

var _ Executor = (*MockExecutor)(nil)

func (m *MockExecutor) Execute(ctx context.Context, req *Request) (*Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Response), args.Error(1)
}

// RowsResponse builds a Response whose body is the given JSON.
func RowsResponse(body string) *Response {
	return &Response{Body: []byte(body)}
}

// CountResponse builds a body-less Response carrying count.
func CountResponse(count int64) *Response {
	return &Response{Count: &count}
}
