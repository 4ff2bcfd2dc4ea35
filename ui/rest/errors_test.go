package rest

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	pkgError "github.com/AzielCF/az-publish/pkg/error"
	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/stretchr/testify/assert"
)

func TestToHTTPError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("get: %w", domain.ErrTaskNotFound), http.StatusNotFound, "NOT_FOUND"},
		{domain.ErrJobNotFound, http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("create: %w", domain.ErrTaskAlreadyTracked), http.StatusConflict, "CONFLICT"},
		{domain.ErrClaimConflict, http.StatusConflict, "CONFLICT"},
		{pkgError.NotFoundError("post not found"), http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		got := toHTTPError(tc.err)
		if assert.NotNil(t, got, tc.err.Error()) {
			assert.Equal(t, tc.status, got.StatusCode(), tc.err.Error())
			assert.Equal(t, tc.code, got.ErrCode(), tc.err.Error())
		}
	}
	assert.Nil(t, toHTTPError(errors.New("disk on fire")))
	assert.Equal(t, "already_queued", toHTTPError(domain.ErrClaimConflict).Error())
}
