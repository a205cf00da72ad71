package fundgate_test

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"quotefeed/internal/provider/fundgate"
	"quotefeed/internal/quote"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	// Assert: a valid key should return a client.
	client, err := fundgate.NewClient("test")
	require.NoError(t, err)
	require.NotNil(t, client)

	// Assert: a missing key should be rejected.
	_, err = fundgate.NewClient("")
	require.Error(t, err)
}

func valuationBody(t *testing.T, body string) io.ReadCloser {
	t.Helper()
	return io.NopCloser(bytes.NewBufferString(body))
}

func TestProvider_Fetch(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	// Arrange: a mock transport returning one valuation.
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/api/v1/fund/VWRL", req.URL.Path)
			require.Equal(t, "Bearer test-key", req.Header.Get("Authorization"))
			return &http.Response{
				StatusCode: http.StatusOK,
				Body: valuationBody(t, `{
					"code": 0,
					"data": {
						"symbol": "VWRL",
						"name": "Vanguard FTSE All-World",
						"nav": "112.84",
						"change_pct": "0.42",
						"currency": "USD",
						"updated_at": 1767225600
					}
				}`),
			}, nil
		}).
		Times(1)

	client, err := fundgate.NewClient("test-key", fundgate.WithHTTPClient(httpClient))
	require.NoError(t, err)
	p := fundgate.New(fundgate.Config{}, client)
	require.Equal(t, "FundGate", p.Name())

	// Act
	snap, err := p.Fetch(t.Context(), "VWRL")

	// Assert
	require.NoError(t, err)
	require.Equal(t, "VWRL", snap.Key)
	fv, ok := snap.Payload.(*quote.FundValuation)
	require.Truef(t, ok, "unexpected payload type %T", snap.Payload)
	require.Equal(t, "112.84", fv.NetValue)
	require.Equal(t, "0.42", fv.DayChangePct)
	require.Equal(t, "USD", fv.Currency)
	require.Equal(t, time.Unix(1767225600, 0).UTC(), fv.ValuedAt)
}

func TestProvider_Fetch_APIError(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(&http.Response{
			StatusCode: http.StatusOK,
			Body:       valuationBody(t, `{"code": 42, "message": "symbol not found"}`),
		}, nil).
		Times(1)

	client, err := fundgate.NewClient("test-key", fundgate.WithHTTPClient(httpClient))
	require.NoError(t, err)
	p := fundgate.New(fundgate.Config{}, client)

	_, err = p.Fetch(t.Context(), "NOPE")
	require.ErrorContains(t, err, "symbol not found")
}

func TestProvider_Fetch_HTTPError(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(&http.Response{
			StatusCode: http.StatusBadGateway,
			Body:       valuationBody(t, `upstream unavailable`),
		}, nil).
		Times(1)

	client, err := fundgate.NewClient("test-key", fundgate.WithHTTPClient(httpClient))
	require.NoError(t, err)
	p := fundgate.New(fundgate.Config{}, client)

	_, err = p.Fetch(t.Context(), "VWRL")
	require.ErrorContains(t, err, "502")
}

func TestProvider_Fetch_MissingValuation(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(&http.Response{
			StatusCode: http.StatusOK,
			Body:       valuationBody(t, `{"code": 0, "data": {"symbol": "VWRL", "nav": "0"}}`),
		}, nil).
		Times(1)

	client, err := fundgate.NewClient("test-key", fundgate.WithHTTPClient(httpClient))
	require.NoError(t, err)
	p := fundgate.New(fundgate.Config{}, client)

	_, err = p.Fetch(t.Context(), "VWRL")
	require.ErrorContains(t, err, "no valuation")
}
