package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/newsdesk/llm"
	"github.com/c360studio/newsdesk/model"
	"github.com/c360studio/newsdesk/news"
	"github.com/c360studio/newsdesk/salvage"
	"github.com/c360studio/newsdesk/storage"
)

func newCollector(t *testing.T) *Collector {
	t.Helper()
	c, err := New(prometheus.NewRegistry())
	require.NoError(t, err)
	return c
}

func TestCollector_Gateway(t *testing.T) {
	c := newCollector(t)

	c.ObserveCall(model.SlotPrimary, llm.OutcomeFailure, 2*time.Second)
	c.ObserveCall(model.SlotSecondary, llm.OutcomeSuccess, time.Second)
	c.ObserveCall(model.SlotPrimary, llm.OutcomeSkipped, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.gatewayCalls.WithLabelValues("primary", llm.OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.gatewayCalls.WithLabelValues("secondary", llm.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.gatewayCalls.WithLabelValues("primary", llm.OutcomeSkipped)))

	// Skipped slots record no latency.
	assert.Equal(t, 2, testutil.CollectAndCount(c.gatewayDuration))
}

func TestCollector_PollAndUpsert(t *testing.T) {
	c := newCollector(t)

	c.ObservePoll(4, llm.StatusComplete)
	c.ObserveUpsert("news_items", storage.OutcomeInserted)
	c.ObserveUpsert("news_items", storage.OutcomeInserted)
	c.ObserveUpsert("news_items", storage.OutcomeUpdated)

	assert.Equal(t, 1, testutil.CollectAndCount(c.pollAttempts))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.upserts.WithLabelValues("news_items", storage.OutcomeInserted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.upserts.WithLabelValues("news_items", storage.OutcomeUpdated)))
}

func TestCollector_Desk(t *testing.T) {
	c := newCollector(t)

	c.ObserveExtraction(news.KindNewsItem, salvage.StageTrailingCommaStrip, 2, 1)
	c.ObserveExtraction(news.KindNewsItem, "", 0, 0)
	c.ObserveJob(news.KindNewsItem, news.JobSucceeded)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.salvageStages.WithLabelValues("news_item", "trailing_comma_strip")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.salvageStages.WithLabelValues("news_item", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.salvageRejected.WithLabelValues("news_item")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobs.WithLabelValues("news_item", news.JobSucceeded)))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveCall(model.SlotPrimary, llm.OutcomeSuccess, time.Second)
		c.ObservePoll(1, llm.StatusComplete)
		c.ObserveUpsert("x", storage.OutcomeFailed)
		c.ObserveExtraction(news.KindTutorial, salvage.StageDirect, 1, 0)
		c.ObserveJob(news.KindTutorial, news.JobFailed)
	})
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}
