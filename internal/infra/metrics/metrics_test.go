package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetSetupStateSingleActive(t *testing.T) {
	all := []string{"inactive", "pairing", "selecting_backend"}

	SetSetupState("pairing", all)
	assert.Equal(t, 1.0, testutil.ToFloat64(setupState.WithLabelValues("pairing")))
	assert.Equal(t, 0.0, testutil.ToFloat64(setupState.WithLabelValues("inactive")))

	SetSetupState("inactive", all)
	assert.Equal(t, 0.0, testutil.ToFloat64(setupState.WithLabelValues("pairing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(setupState.WithLabelValues("inactive")))
}

func TestRecordPollTick(t *testing.T) {
	before := testutil.ToFloat64(PollTicksTotal.WithLabelValues("pending"))
	RecordPollTick("pending")
	RecordPollTick("pending")
	assert.Equal(t, before+2, testutil.ToFloat64(PollTicksTotal.WithLabelValues("pending")))

	beforeUnknown := testutil.ToFloat64(PollTicksTotal.WithLabelValues("unknown"))
	RecordPollTick("")
	assert.Equal(t, beforeUnknown+1, testutil.ToFloat64(PollTicksTotal.WithLabelValues("unknown")))
}

func TestHandlerExposesInstruments(t *testing.T) {
	CodesIssuedTotal.Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "devicepair_codes_issued_total")
}
