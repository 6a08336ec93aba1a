package events

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/market-scout/internal/models"
)

func sampleReport() models.AnalysisReport {
	return models.AnalysisReport{
		Keyword: "yoga mat",
		PerPlatformAvg: map[string]models.Money{
			"Amazon": {Amount: decimal.NewFromInt(15), Currency: models.CurrencyUSD},
		},
		CrossPlatformAvgCNY: models.Money{Amount: decimal.NewFromInt(108), Currency: models.CurrencyCNY},
		SourcingAvgCNY:      models.Money{Amount: decimal.NewFromInt(50), Currency: models.CurrencyCNY},
		GrossMarginPct:      0.537,
		Recommendation:      models.HighPotential,
		Sources: []models.SourceSummary{
			{Source: "Amazon", Listings: 2},
			{Source: "Temu", Error: "navigation failed"},
			{Source: "1688", Listings: 1},
		},
	}
}

func TestNewAnalysisCompleted(t *testing.T) {
	p := NewAnalysisCompleted("run-1", sampleReport())

	assert.NotEmpty(t, p.EventID)
	assert.Equal(t, "ANALYSIS_COMPLETED", p.EventType)
	assert.Equal(t, "run-1", p.RunID)
	assert.Equal(t, "High Potential", p.Recommendation)
	assert.Equal(t, "108.00", p.CrossPlatformAvgCNY)
	assert.Equal(t, "50.00", p.SourcingAvgCNY)
	assert.Equal(t, "15.00 USD", p.PerPlatformAvg["Amazon"])
	assert.Equal(t, 3, p.ListingCount)
	assert.Equal(t, []string{"Temu"}, p.FailedSources)
	assert.Equal(t, "market-scout", p.Source)
}

func streamValues(t *testing.T, p *AnalysisCompletedPayload) map[string]interface{} {
	t.Helper()
	values, err := p.StreamValues()
	require.NoError(t, err)
	return values
}

func TestStreamValues(t *testing.T) {
	p := NewAnalysisCompleted("run-1", sampleReport())

	values := streamValues(t, p)
	assert.Equal(t, "ANALYSIS_COMPLETED", values["event_type"])
	assert.Equal(t, "run-1", values["run_id"])
	assert.Equal(t, "yoga mat", values["keyword"])
	assert.Equal(t, "High Potential", values["recommendation"])
	assert.Equal(t, "0.5370", values["gross_margin_pct"])
	assert.Equal(t, "108.00", values["cross_platform_avg_cny"])
	assert.Equal(t, "50.00", values["sourcing_avg_cny"])
	assert.Equal(t, "3", values["listing_count"])
	assert.Equal(t, "Temu", values["failed_sources"])
	assert.Equal(t, "market-scout", values["source"])
	assert.NotEmpty(t, values["data"])
}

func TestDecode(t *testing.T) {
	p := NewAnalysisCompleted("run-1", sampleReport())

	decoded, err := Decode(streamValues(t, p))
	require.NoError(t, err)
	assert.Equal(t, p.RunID, decoded.RunID)
	assert.Equal(t, p.GrossMarginPct, decoded.GrossMarginPct)

	_, err = Decode(map[string]interface{}{})
	assert.Error(t, err)

	assert.Equal(t, "15.00 USD", decoded.PerPlatformAvg["Amazon"])

	_, err = Decode(map[string]interface{}{"data": `{"id":"x"}`})
	assert.Error(t, err)

	_, err = Decode(map[string]interface{}{"data": "not json"})
	assert.Error(t, err)
}

type MockStreamClient struct {
	mock.Mock
}

func (m *MockStreamClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	args := m.Called(ctx, stream, group, start)
	cmd := redis.NewStatusCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	}
	return cmd
}

func (m *MockStreamClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	args := m.Called(ctx, a)
	cmd := redis.NewXStreamSliceCmd(ctx)
	if err := args.Error(1); err != nil {
		cmd.SetErr(err)
		return cmd
	}
	cmd.SetVal(args.Get(0).([]redis.XStream))
	return cmd
}

func (m *MockStreamClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	args := m.Called(ctx, stream, group, ids)
	cmd := redis.NewIntCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
		return cmd
	}
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func TestConsumerPoll(t *testing.T) {
	ctx := context.Background()
	client := new(MockStreamClient)

	completed := NewAnalysisCompleted("run-1", sampleReport())
	client.On("XReadGroup", ctx, mock.Anything).Return([]redis.XStream{{
		Stream: StreamMarketAnalysis,
		Messages: []redis.XMessage{
			{ID: "1-0", Values: streamValues(t, completed)},
			{ID: "2-0", Values: map[string]interface{}{"event_type": "SOMETHING_ELSE"}},
			{ID: "3-0", Values: map[string]interface{}{"event_type": "ANALYSIS_COMPLETED"}},
		},
	}}, nil)
	client.On("XAck", ctx, StreamMarketAnalysis, "market-scout-watchers", []string{"1-0"}).Return(nil)
	client.On("XAck", ctx, StreamMarketAnalysis, "market-scout-watchers", []string{"2-0"}).Return(nil)

	var handled []string
	c := NewConsumer(client, ConsumerConfig{}, func(ctx context.Context, p *AnalysisCompletedPayload) error {
		handled = append(handled, p.RunID)
		return nil
	}, slog.Default())

	require.NoError(t, c.poll(ctx))

	assert.Equal(t, []string{"run-1"}, handled)
	client.AssertExpectations(t)
	// malformed message stays pending
	client.AssertNotCalled(t, "XAck", ctx, StreamMarketAnalysis, "market-scout-watchers", []string{"3-0"})
}

func TestConsumerPollContinuesAfterAckError(t *testing.T) {
	ctx := context.Background()
	client := new(MockStreamClient)

	first := NewAnalysisCompleted("run-1", sampleReport())
	second := NewAnalysisCompleted("run-2", sampleReport())
	client.On("XReadGroup", ctx, mock.Anything).Return([]redis.XStream{{
		Stream: StreamMarketAnalysis,
		Messages: []redis.XMessage{
			{ID: "1-0", Values: streamValues(t, first)},
			{ID: "2-0", Values: streamValues(t, second)},
		},
	}}, nil)
	client.On("XAck", ctx, StreamMarketAnalysis, "market-scout-watchers", []string{"1-0"}).
		Return(errors.New("connection reset"))
	client.On("XAck", ctx, StreamMarketAnalysis, "market-scout-watchers", []string{"2-0"}).Return(nil)

	var handled []string
	c := NewConsumer(client, ConsumerConfig{}, func(ctx context.Context, p *AnalysisCompletedPayload) error {
		handled = append(handled, p.RunID)
		return nil
	}, slog.Default())

	require.NoError(t, c.poll(ctx))
	assert.Equal(t, []string{"run-1", "run-2"}, handled)
	client.AssertExpectations(t)
}

func TestConsumerRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := new(MockStreamClient)

	client.On("XGroupCreateMkStream", ctx, StreamMarketAnalysis, "market-scout-watchers", "0").
		Return(errors.New("BUSYGROUP Consumer Group name already exists"))
	client.On("XReadGroup", ctx, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return([]redis.XStream(nil), redis.Nil)

	c := NewConsumer(client, ConsumerConfig{Block: 10 * time.Millisecond}, func(context.Context, *AnalysisCompletedPayload) error {
		return nil
	}, slog.Default())

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop on context cancellation")
	}
}

func TestConsumerRunFailsOnGroupError(t *testing.T) {
	ctx := context.Background()
	client := new(MockStreamClient)
	client.On("XGroupCreateMkStream", ctx, StreamMarketAnalysis, "market-scout-watchers", "0").
		Return(errors.New("NOAUTH Authentication required"))

	c := NewConsumer(client, ConsumerConfig{}, nil, slog.Default())
	assert.Error(t, c.Run(ctx))
}
