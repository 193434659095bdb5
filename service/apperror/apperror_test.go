package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"plain error", errors.New("boom"), Internal},
		{"invalid", Invalid("bad hash"), InvalidInput},
		{"wrapped not found", fmt.Errorf("lookup: %w", NotFoundf("no such tx")), NotFound},
		{"upstream", Upstream(errors.New("dial tcp"), "fetch transaction"), UpstreamError},
		{"malformed", Malformed("missing hash"), MalformedUpstreamData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestHTTPMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(InvalidInput))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(UpstreamError))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(MalformedUpstreamData))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(RateLimited))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Internal))

	assert.Equal(t, "UPSTREAM_ERROR", Code(MalformedUpstreamData))
	assert.Equal(t, "BAD_REQUEST", Code(InvalidInput))
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Upstream(cause, "fetch account")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "fetch account: connection reset", err.Error())
}

func TestPublicMessageHidesDetails(t *testing.T) {
	assert.Equal(t, "failed to fetch data from upstream", PublicMessage(Upstream(errors.New("10.0.0.1:443 refused"), "fetch")))
	assert.Equal(t, "upstream returned data in an unexpected format", PublicMessage(Malformed("field hash missing")))
	assert.Equal(t, "bad hash", PublicMessage(Invalid("bad hash")))
	assert.Equal(t, "internal server error", PublicMessage(errors.New("nil map")))
}

func TestStatusForUnavailableUpstream(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(Upstream(ErrUnavailable, "fetch transaction")))
	assert.Equal(t, http.StatusBadGateway, StatusFor(Upstream(errors.New("EOF"), "fetch transaction")))
	assert.Equal(t, http.StatusNotFound, StatusFor(NotFoundf("transaction not found")))
}
