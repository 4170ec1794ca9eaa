package httpx

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/waste-rewards/internal/common"
)

type costBody struct {
	Cost int64 `json:"cost"`
}

func TestDecodeOptional(t *testing.T) {
	tests := []struct {
		name    string
		body    io.Reader
		want    int64
		wantErr bool
	}{
		{"без тела", nil, 0, false},
		{"пустое тело", strings.NewReader(""), 0, false},
		{"обычное тело", strings.NewReader(`{"cost": 40}`), 40, false},
		{"chunked тело", io.MultiReader(strings.NewReader(`{"cost": 35}`)), 35, false},
		{"chunked пустое", io.MultiReader(strings.NewReader("")), 0, false},
		{"мусор", io.MultiReader(strings.NewReader(`{"cost":`)), 0, true},
		{"лишнее поле", strings.NewReader(`{"cost": 1, "x": 2}`), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", tt.body)
			var v costBody
			err := DecodeOptional(httptest.NewRecorder(), req, &v)
			if tt.wantErr {
				require.ErrorIs(t, err, common.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, v.Cost)
		})
	}
}

func TestDecodeRequiresBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	var v costBody
	err := Decode(httptest.NewRecorder(), req, &v)
	require.ErrorIs(t, err, common.ErrInvalidInput)
	require.Equal(t, "request body is empty", err.Error())
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusNotFound, StatusFor(common.ErrRedeemRewardNotFound))
	require.Equal(t, http.StatusConflict, StatusFor(common.ErrInsufficientPoints))
	require.Equal(t, http.StatusTooManyRequests, StatusFor(common.ErrTooManyAttempts))
	require.Equal(t, http.StatusUnauthorized, StatusFor(common.ErrSessionExpired))
	require.Equal(t, http.StatusBadGateway, StatusFor(common.Upstream("x", nil)))
	require.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}
